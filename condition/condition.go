package condition

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Condition is a compiled boolean predicate over an attribute environment.
type Condition interface {
	Evaluate(env map[string]interface{}) (bool, error)
	String() string
}

// ExprCondition evaluates an expr-lang program.
type ExprCondition struct {
	source  string
	program *vm.Program
}

// NewExprCondition 编译条件表达式。空表达式返回恒为真的条件
func NewExprCondition(expression string) (Condition, error) {
	if strings.TrimSpace(expression) == "" {
		return alwaysTrue{}, nil
	}
	// 添加自定义字符串函数支持（startsWith、endsWith、contains是内置操作符）
	options := []expr.Option{
		expr.Function("like_match", func(params ...any) (any, error) {
			if len(params) != 2 {
				return false, fmt.Errorf("like_match function requires 2 parameters")
			}
			text, ok1 := params[0].(string)
			pattern, ok2 := params[1].(string)
			if !ok1 || !ok2 {
				return false, fmt.Errorf("like_match function requires string parameters")
			}
			return matchesLikePattern(text, pattern), nil
		}),
		expr.Function("is_null", func(params ...any) (any, error) {
			if len(params) != 1 {
				return false, fmt.Errorf("is_null function requires 1 parameter")
			}
			return params[0] == nil, nil
		}),
		expr.Function("is_not_null", func(params ...any) (any, error) {
			if len(params) != 1 {
				return false, fmt.Errorf("is_not_null function requires 1 parameter")
			}
			return params[0] != nil, nil
		}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	}

	program, err := expr.Compile(expression, options...)
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", expression, err)
	}
	return &ExprCondition{source: expression, program: program}, nil
}

// Evaluate runs the program. Runtime failures such as comparing a null
// attribute with a number are returned as errors.
func (ec *ExprCondition) Evaluate(env map[string]interface{}) (bool, error) {
	result, err := expr.Run(ec.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", ec.source, err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned %T", ec.source, result)
	}
	return b, nil
}

func (ec *ExprCondition) String() string {
	return ec.source
}

type alwaysTrue struct{}

func (alwaysTrue) Evaluate(map[string]interface{}) (bool, error) { return true, nil }
func (alwaysTrue) String() string                                { return "true" }

// matchesLikePattern 实现LIKE模式匹配
// 支持%（匹配任意字符序列）和_（匹配单个字符）
func matchesLikePattern(text, pattern string) bool {
	return likeMatch(text, pattern, 0, 0)
}

// likeMatch 递归实现LIKE匹配算法
func likeMatch(text, pattern string, textIndex, patternIndex int) bool {
	if patternIndex >= len(pattern) {
		return textIndex >= len(text)
	}
	// 文本已结束时，剩余模式只能全是%
	if textIndex >= len(text) {
		for i := patternIndex; i < len(pattern); i++ {
			if pattern[i] != '%' {
				return false
			}
		}
		return true
	}

	switch pattern[patternIndex] {
	case '%':
		for i := textIndex; i <= len(text); i++ {
			if likeMatch(text, pattern, i, patternIndex+1) {
				return true
			}
		}
		return false
	case '_':
		return likeMatch(text, pattern, textIndex+1, patternIndex+1)
	default:
		if text[textIndex] != pattern[patternIndex] {
			return false
		}
		return likeMatch(text, pattern, textIndex+1, patternIndex+1)
	}
}
