/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"fmt"
	"math"

	"github.com/spf13/cast"
)

// Coerce validates values against the definition and converts every value
// to the Go representation of its attribute type:
// string, bool, int32, int64, float32 and float64.
func (d *StreamDefinition) Coerce(values []interface{}) ([]interface{}, error) {
	if len(values) != len(d.Attributes) {
		return nil, &TypeMismatchError{Stream: d.ID, WantArity: len(d.Attributes), GotArity: len(values)}
	}
	out := make([]interface{}, len(values))
	for i, a := range d.Attributes {
		v, err := CoerceValue(a.Type, values[i])
		if err != nil {
			return nil, &TypeMismatchError{
				Stream:    d.ID,
				Attribute: a.Name,
				Expected:  a.Type,
				Value:     values[i],
				WantArity: len(d.Attributes),
				GotArity:  len(values),
			}
		}
		out[i] = v
	}
	return out, nil
}

// CoerceValue converts v to the representation of t. Numbers convert
// between numeric types as long as the value fits; strings and bools are
// never converted from other kinds. nil is accepted for every type.
func CoerceValue(t AttrType, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeInt:
		if i, ok := toWhole(v); ok && i >= math.MinInt32 && i <= math.MaxInt32 {
			return int32(i), nil
		}
	case TypeLong:
		if i, ok := toWhole(v); ok {
			return i, nil
		}
	case TypeFloat:
		if IsNumber(v) {
			f, err := cast.ToFloat64E(v)
			if err == nil && (math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) <= math.MaxFloat32) {
				return float32(f), nil
			}
		}
	case TypeDouble:
		if IsNumber(v) {
			if f, err := cast.ToFloat64E(v); err == nil {
				return f, nil
			}
		}
	default:
		return nil, fmt.Errorf("unsupported attribute type %q", t)
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, t)
}

// IsNumber reports whether v holds a Go numeric value.
func IsNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func toWhole(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float32:
		return floatToWhole(float64(n))
	case float64:
		return floatToWhole(n)
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	if !IsNumber(v) {
		return 0, false
	}
	i, err := cast.ToInt64E(v)
	return i, err == nil
}

func floatToWhole(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
