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
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Unbounded as a pattern step Max removes the upper repetition bound.
	Unbounded = -1
	// LastIndex selects the most recent event captured by a pattern step.
	LastIndex = -1
)

// Window types
const (
	WindowLength = "length"
	WindowTime   = "time"
)

// OutputEvents selects which notifications of a query reach its callbacks.
type OutputEvents string

const (
	CurrentEvents OutputEvents = "current"
	ExpiredEvents OutputEvents = "expired"
	AllEvents     OutputEvents = "all"
)

// Current reports whether insert notifications are emitted. The zero value
// behaves like CurrentEvents.
func (o OutputEvents) Current() bool {
	return o == "" || o == CurrentEvents || o == AllEvents
}

// Expired reports whether remove notifications are emitted.
func (o OutputEvents) Expired() bool {
	return o == ExpiredEvents || o == AllEvents
}

// Plan is a compiled query set: the stream definitions and the queries that
// run against them inside one runtime.
type Plan struct {
	Name    string             `json:"name" yaml:"name"`
	Streams []StreamDefinition `json:"streams" yaml:"streams"`
	Queries []Query            `json:"queries" yaml:"queries"`
}

// Query is one pipeline: an input (single stream or pattern), optional
// aggregation and a projection.
type Query struct {
	Name       string       `json:"name" yaml:"name"`
	From       *SingleInput `json:"from,omitempty" yaml:"from,omitempty"`
	Pattern    *Pattern     `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Select     []SelectItem `json:"select,omitempty" yaml:"select,omitempty"`
	GroupBy    []string     `json:"groupBy,omitempty" yaml:"groupBy,omitempty"`
	Output     OutputEvents `json:"output,omitempty" yaml:"output,omitempty"`
	InsertInto string       `json:"insertInto,omitempty" yaml:"insertInto,omitempty"`
}

// SingleInput reads one stream through an optional filter and window.
type SingleInput struct {
	Stream string      `json:"stream" yaml:"stream"`
	Filter string      `json:"filter,omitempty" yaml:"filter,omitempty"`
	Window *WindowSpec `json:"window,omitempty" yaml:"window,omitempty"`
}

// WindowSpec declares a length(N) or time(D) window.
type WindowSpec struct {
	Type     string        `json:"type" yaml:"type"`
	Length   int           `json:"length,omitempty" yaml:"length,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Pattern is a sequence of steps matched across streams.
type Pattern struct {
	Steps []PatternStep `json:"steps" yaml:"steps"`
	// Within bounds the time between the first and the latest event of a
	// partial match. Zero means no bound.
	Within time.Duration `json:"within,omitempty" yaml:"within,omitempty"`
	// Every starts a new partial match for every event matching the first
	// step. Without it the pattern starts once and stops after its first
	// complete match.
	Every bool `json:"every,omitempty" yaml:"every,omitempty"`
}

// PatternStep matches events of one stream. Min and Max bound how many
// consecutive matches the step takes; both zero means exactly one.
type PatternStep struct {
	Alias  string `json:"alias" yaml:"alias"`
	Stream string `json:"stream" yaml:"stream"`
	Filter string `json:"filter,omitempty" yaml:"filter,omitempty"`
	Min    int    `json:"min,omitempty" yaml:"min,omitempty"`
	Max    int    `json:"max,omitempty" yaml:"max,omitempty"`
}

// Bounds returns the normalized repetition range of the step.
func (s PatternStep) Bounds() (int, int) {
	if s.Min == 0 && s.Max == 0 {
		return 1, 1
	}
	return s.Min, s.Max
}

// SelectItem is one output attribute: either a reference to an input
// attribute or an aggregate over it.
type SelectItem struct {
	As string `json:"as,omitempty" yaml:"as,omitempty"`
	// Attr names the input attribute. It may be empty for count.
	Attr string `json:"attr,omitempty" yaml:"attr,omitempty"`
	// Alias and Index address a pattern step capture: Alias[Index].Attr.
	Alias string `json:"alias,omitempty" yaml:"alias,omitempty"`
	Index int    `json:"index,omitempty" yaml:"index,omitempty"`
	Agg   string `json:"agg,omitempty" yaml:"agg,omitempty"`
}

// Name is the output attribute name.
func (s SelectItem) Name() string {
	switch {
	case s.As != "":
		return s.As
	case s.Agg != "" && s.Attr != "":
		return s.Agg + "_" + s.Attr
	case s.Agg != "":
		return s.Agg
	default:
		return s.Attr
	}
}

// Validate checks the plan structure. Type checking of expressions and
// aggregates happens when a runtime is built from the plan.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan requires a name")
	}
	known := make(map[string]bool, len(p.Streams))
	for i := range p.Streams {
		d := &p.Streams[i]
		if err := d.Validate(); err != nil {
			return err
		}
		if known[d.ID] {
			return fmt.Errorf("stream %s defined twice", d.ID)
		}
		known[d.ID] = true
	}
	names := make(map[string]bool, len(p.Queries))
	for i := range p.Queries {
		q := &p.Queries[i]
		if q.Name == "" {
			return fmt.Errorf("query #%d requires a name", i)
		}
		if names[q.Name] {
			return fmt.Errorf("query %s defined twice", q.Name)
		}
		names[q.Name] = true
		if err := q.validate(known); err != nil {
			return fmt.Errorf("query %s: %w", q.Name, err)
		}
		if q.InsertInto != "" {
			known[q.InsertInto] = true
		}
	}
	return nil
}

func (q *Query) validate(known map[string]bool) error {
	if (q.From == nil) == (q.Pattern == nil) {
		return fmt.Errorf("exactly one of from and pattern is required")
	}
	switch q.Output {
	case "", CurrentEvents, ExpiredEvents, AllEvents:
	default:
		return fmt.Errorf("unknown output events %q", q.Output)
	}
	if q.From != nil {
		if !known[q.From.Stream] {
			return fmt.Errorf("%w: %s", ErrUnknownStream, q.From.Stream)
		}
		if w := q.From.Window; w != nil {
			switch w.Type {
			case WindowLength:
				if w.Length <= 0 {
					return fmt.Errorf("length window requires a positive length, got %d", w.Length)
				}
			case WindowTime:
				if w.Duration < time.Millisecond {
					return fmt.Errorf("time window requires a duration of at least 1ms, got %s", w.Duration)
				}
			default:
				return fmt.Errorf("unsupported window type %q", w.Type)
			}
		}
	}
	if q.Pattern != nil {
		if len(q.Pattern.Steps) == 0 {
			return fmt.Errorf("pattern requires at least one step")
		}
		if q.Pattern.Within < 0 {
			return fmt.Errorf("pattern within must not be negative")
		}
		aliases := make(map[string]bool, len(q.Pattern.Steps))
		for _, s := range q.Pattern.Steps {
			if s.Alias == "" {
				return fmt.Errorf("pattern step on %s requires an alias", s.Stream)
			}
			if aliases[s.Alias] {
				return fmt.Errorf("pattern alias %s used twice", s.Alias)
			}
			aliases[s.Alias] = true
			if !known[s.Stream] {
				return fmt.Errorf("%w: %s", ErrUnknownStream, s.Stream)
			}
			lo, hi := s.Bounds()
			if lo < 1 {
				return fmt.Errorf("pattern step %s requires min >= 1, got %d", s.Alias, lo)
			}
			if hi != Unbounded && hi < lo {
				return fmt.Errorf("pattern step %s has max %d below min %d", s.Alias, hi, lo)
			}
		}
		if len(q.Select) == 0 {
			return fmt.Errorf("pattern query requires a select list")
		}
	}
	outNames := make(map[string]bool, len(q.Select))
	for _, s := range q.Select {
		if s.Attr == "" && s.Agg == "" {
			return fmt.Errorf("select item requires attr or agg")
		}
		n := s.Name()
		if outNames[n] {
			return fmt.Errorf("output attribute %s selected twice", n)
		}
		outNames[n] = true
	}
	return nil
}

// ParsePlan decodes a YAML plan and validates it.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPlan reads a YAML plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}
	return ParsePlan(data)
}
