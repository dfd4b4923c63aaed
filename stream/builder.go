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

package stream

import (
	"fmt"

	"github.com/rulego/streamcep/aggregator"
	"github.com/rulego/streamcep/condition"
	"github.com/rulego/streamcep/logger"
	"github.com/rulego/streamcep/pattern"
	"github.com/rulego/streamcep/scheduler"
	"github.com/rulego/streamcep/types"
	"github.com/rulego/streamcep/window"
)

// Operator ID suffixes. An operator ID is "<query>/<suffix>".
const (
	WindowOperator     = "window"
	PatternOperator    = "pattern"
	AggregatorOperator = "aggregator"
)

// OperatorID names the operator of kind inside query.
func OperatorID(query, kind string) string {
	return query + "/" + kind
}

// BuildOptions carries the runtime services a pipeline uses.
type BuildOptions struct {
	Clock       types.Clock
	Logger      logger.Logger
	MailboxSize int
}

// getter computes one output attribute.
type getter func(e types.Event, m *pattern.Match, agg []interface{}) interface{}

// Build compiles q against the known stream definitions.
func Build(q types.Query, defs map[string]*types.StreamDefinition, opts BuildOptions) (*Pipeline, error) {
	if opts.Clock == nil {
		opts.Clock = types.SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDiscardLogger()
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 64
	}
	p := &Pipeline{
		name:    q.Name,
		output:  q.Output,
		clock:   opts.Clock,
		log:     logger.Named(opts.Logger, q.Name),
		mailbox: NewMailbox(opts.MailboxSize),
		stats:   NewStatsCollector(),
		done:    make(chan struct{}),
	}
	var err error
	switch {
	case q.From != nil:
		err = p.buildSingle(q, defs)
	case q.Pattern != nil:
		err = p.buildPattern(q, defs)
	default:
		err = fmt.Errorf("query %s has no input", q.Name)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) buildSingle(q types.Query, defs map[string]*types.StreamDefinition) error {
	def, ok := defs[q.From.Stream]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownStream, q.From.Stream)
	}
	p.inDef = def
	p.streams = []string{def.ID}

	filter, err := condition.NewExprCondition(q.From.Filter)
	if err != nil {
		return fmt.Errorf("query %s filter: %w", q.Name, err)
	}
	p.filter = filter

	if spec := q.From.Window; spec != nil {
		id := OperatorID(q.Name, WindowOperator)
		if spec.Type == types.WindowTime {
			p.scheduler = scheduler.New(p.clock, p.fireTimer)
		}
		var waker window.Waker
		if p.scheduler != nil {
			waker = window.WakerFunc(p.scheduler.Waker(id))
		}
		if p.window, err = window.CreateWindow(id, *spec, def, waker, p.clock); err != nil {
			return err
		}
	}

	// aggregates
	var fields []aggregator.AggregationField
	for _, item := range q.Select {
		if item.Agg == "" {
			continue
		}
		f := aggregator.AggregationField{AggregateType: item.Agg, InputIndex: -1, OutputAlias: item.Name()}
		if item.Attr != "" {
			idx := def.Index(item.Attr)
			if idx < 0 {
				return fmt.Errorf("query %s: stream %s has no attribute %s", q.Name, def.ID, item.Attr)
			}
			f.InputIndex = idx
			f.InputType = def.Attributes[idx].Type
		}
		fields = append(fields, f)
	}
	if len(fields) > 0 || len(q.GroupBy) > 0 {
		groupBy := make([]int, len(q.GroupBy))
		for i, name := range q.GroupBy {
			if groupBy[i] = def.Index(name); groupBy[i] < 0 {
				return fmt.Errorf("query %s: group by unknown attribute %s", q.Name, name)
			}
		}
		if p.agg, err = aggregator.NewGroup(OperatorID(q.Name, AggregatorOperator), fields, groupBy); err != nil {
			return fmt.Errorf("query %s: %w", q.Name, err)
		}
	}

	// projection; an empty select list passes every attribute through
	outID := outputStreamID(q)
	if len(q.Select) == 0 {
		attrs := make([]types.Attribute, len(def.Attributes))
		copy(attrs, def.Attributes)
		p.outDef = &types.StreamDefinition{ID: outID, Attributes: attrs}
		return nil
	}
	var aggTypes []types.AttrType
	if p.agg != nil {
		aggTypes = p.agg.OutputTypes()
	}
	p.outDef = &types.StreamDefinition{ID: outID}
	aggPos := 0
	for _, item := range q.Select {
		var attrType types.AttrType
		switch {
		case item.Agg != "":
			pos := aggPos
			aggPos++
			attrType = aggTypes[pos]
			p.getters = append(p.getters, func(_ types.Event, _ *pattern.Match, agg []interface{}) interface{} {
				if pos < len(agg) {
					return agg[pos]
				}
				return nil
			})
		case item.Alias != "":
			return fmt.Errorf("query %s: alias %s is only valid in pattern queries", q.Name, item.Alias)
		default:
			idx := def.Index(item.Attr)
			if idx < 0 {
				return fmt.Errorf("query %s: stream %s has no attribute %s", q.Name, def.ID, item.Attr)
			}
			attrType = def.Attributes[idx].Type
			p.getters = append(p.getters, func(e types.Event, _ *pattern.Match, _ []interface{}) interface{} {
				return e.Get(idx)
			})
		}
		p.outDef.Attributes = append(p.outDef.Attributes, types.Attribute{Name: item.Name(), Type: attrType})
	}
	return nil
}

func (p *Pipeline) buildPattern(q types.Query, defs map[string]*types.StreamDefinition) error {
	steps := make([]pattern.Step, len(q.Pattern.Steps))
	stepIndex := make(map[string]int, len(steps))
	for i, s := range q.Pattern.Steps {
		def, ok := defs[s.Stream]
		if !ok {
			return fmt.Errorf("%w: %s", types.ErrUnknownStream, s.Stream)
		}
		filter, err := condition.NewExprCondition(s.Filter)
		if err != nil {
			return fmt.Errorf("query %s step %s filter: %w", q.Name, s.Alias, err)
		}
		lo, hi := s.Bounds()
		steps[i] = pattern.Step{Alias: s.Alias, Stream: s.Stream, Def: def, Filter: filter, Min: lo, Max: hi}
		stepIndex[s.Alias] = i
	}
	machine, err := pattern.NewMachine(OperatorID(q.Name, PatternOperator), steps, q.Pattern.Within.Milliseconds(), q.Pattern.Every)
	if err != nil {
		return err
	}
	p.pattern = machine
	p.streams = machine.Streams()

	p.outDef = &types.StreamDefinition{ID: outputStreamID(q)}
	for _, item := range q.Select {
		if item.Agg != "" {
			return fmt.Errorf("query %s: aggregates are not supported on pattern queries", q.Name)
		}
		step, ok := stepIndex[item.Alias]
		if !ok {
			return fmt.Errorf("query %s: select item %s must reference a pattern alias", q.Name, item.Name())
		}
		def := steps[step].Def
		attr := def.Index(item.Attr)
		if attr < 0 {
			return fmt.Errorf("query %s: stream %s has no attribute %s", q.Name, def.ID, item.Attr)
		}
		index := item.Index
		p.getters = append(p.getters, func(_ types.Event, m *pattern.Match, _ []interface{}) interface{} {
			return m.Value(step, index, attr)
		})
		p.outDef.Attributes = append(p.outDef.Attributes, types.Attribute{Name: item.Name(), Type: def.Attributes[attr].Type})
	}
	return nil
}

func outputStreamID(q types.Query) string {
	if q.InsertInto != "" {
		return q.InsertInto
	}
	return q.Name + "Output"
}
