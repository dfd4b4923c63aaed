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

package pattern

import (
	"errors"
	"fmt"

	"github.com/rulego/streamcep/condition"
	"github.com/rulego/streamcep/types"
	"github.com/rulego/streamcep/utils/codec"
)

// Step is one compiled pattern step.
type Step struct {
	Alias  string
	Stream string
	Def    *types.StreamDefinition
	Filter condition.Condition
	Min    int
	Max    int // types.Unbounded for no upper bound
}

// Match is a completed pattern instance.
type Match struct {
	// Timestamp is the timestamp of the event that completed the match.
	Timestamp int64
	// Captured holds the events taken by each step, in step order.
	Captured [][]types.Event
}

// Value returns attribute attr of the index-th event captured by step.
// types.LastIndex selects the latest one. Missing captures yield nil.
func (m Match) Value(step, index, attr int) interface{} {
	if step < 0 || step >= len(m.Captured) {
		return nil
	}
	events := m.Captured[step]
	if index == types.LastIndex {
		index = len(events) - 1
	}
	if index < 0 || index >= len(events) {
		return nil
	}
	return events[index].Get(attr)
}

// partial is one in-flight match. Captured step slices are never modified
// in place, so forks may share them.
type partial struct {
	lineage  uint64
	step     int
	count    int
	start    int64
	captured [][]types.Event
}

// Machine tracks the partial matches of one pattern query. Partials live in
// an arena of slots; order lists the live slots from oldest to newest.
// A Machine is owned by one pipeline goroutine.
type Machine struct {
	id     string
	steps  []Step
	within int64
	every  bool

	slots       []*partial
	free        []int
	order       []int
	nextLineage uint64
	// completed records that a non-every pattern has matched once.
	completed bool
}

// NewMachine compiles a pattern of steps. within is the bound in
// milliseconds between the first and the latest event of a partial match,
// zero for none. Without every the pattern matches at most once.
func NewMachine(id string, steps []Step, within int64, every bool) (*Machine, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("pattern %s has no steps", id)
	}
	for i, s := range steps {
		if s.Def == nil {
			return nil, fmt.Errorf("pattern %s step %d has no stream definition", id, i)
		}
		if s.Min < 1 || (s.Max != types.Unbounded && s.Max < s.Min) {
			return nil, fmt.Errorf("pattern %s step %s has invalid bounds <%d:%d>", id, s.Alias, s.Min, s.Max)
		}
		if s.Filter == nil {
			steps[i].Filter, _ = condition.NewExprCondition("")
		}
	}
	return &Machine{id: id, steps: steps, within: within, every: every}, nil
}

func (m *Machine) ID() string {
	return m.id
}

// Len returns the number of live partial matches.
func (m *Machine) Len() int {
	return len(m.order)
}

// Streams lists the streams the pattern consumes, without duplicates.
func (m *Machine) Streams() []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range m.steps {
		if !seen[s.Stream] {
			seen[s.Stream] = true
			out = append(out, s.Stream)
		}
	}
	return out
}

// Process feeds an event of stream to every live partial and returns the
// matches it completes. Filter evaluation errors are returned joined; they
// only affect the partial that was being tested.
func (m *Machine) Process(stream string, e types.Event) ([]Match, error) {
	var errs []error
	idle := len(m.order) == 0
	survivors := make([]int, 0, len(m.order)+1)
	var forks []int
	// best completion per lineage, in discovery order
	var completedLineages []uint64
	best := make(map[uint64][][]types.Event)

	complete := func(p *partial, captured [][]types.Event) {
		prev, ok := best[p.lineage]
		if !ok {
			completedLineages = append(completedLineages, p.lineage)
		}
		if !ok || capturedLen(captured) > capturedLen(prev) {
			best[p.lineage] = captured
		}
	}

	for _, i := range m.order {
		p := m.slots[i]
		if m.within > 0 && e.Timestamp-p.start > m.within {
			m.release(i)
			continue
		}
		step := m.steps[p.step]
		if step.Stream != stream {
			survivors = append(survivors, i)
			continue
		}
		ok, err := step.Filter.Evaluate(m.env(p, e))
		if err != nil {
			errs = append(errs, fmt.Errorf("pattern %s step %s: %w", m.id, step.Alias, err))
		}
		if !ok {
			survivors = append(survivors, i)
			continue
		}
		stay, fork, done := m.advance(p, e)
		if done != nil {
			complete(p, done)
		}
		if fork != nil {
			forks = append(forks, m.alloc(fork))
		}
		if stay {
			survivors = append(survivors, i)
		} else {
			m.release(i)
		}
	}

	if m.steps[0].Stream == stream && (m.every || (idle && !m.completed)) {
		p := &partial{lineage: m.nextLineage, start: e.Timestamp, captured: make([][]types.Event, len(m.steps))}
		ok, err := m.steps[0].Filter.Evaluate(m.env(p, e))
		if err != nil {
			errs = append(errs, fmt.Errorf("pattern %s step %s: %w", m.id, m.steps[0].Alias, err))
		}
		if ok {
			m.nextLineage++
			stay, fork, done := m.advance(p, e)
			if done != nil {
				complete(p, done)
			}
			if fork != nil {
				forks = append(forks, m.alloc(fork))
			}
			if stay {
				forks = append(forks, m.alloc(p))
			}
		}
	}

	m.order = append(survivors, forks...)
	if len(completedLineages) == 0 {
		return nil, errors.Join(errs...)
	}

	matches := make([]Match, 0, len(completedLineages))
	finished := make(map[uint64]bool, len(completedLineages))
	for _, lineage := range completedLineages {
		finished[lineage] = true
		matches = append(matches, Match{Timestamp: e.Timestamp, Captured: best[lineage]})
	}
	live := m.order[:0]
	for _, i := range m.order {
		if finished[m.slots[i].lineage] {
			m.release(i)
			continue
		}
		live = append(live, i)
	}
	m.order = live
	if !m.every {
		m.completed = true
	}
	return matches, errors.Join(errs...)
}

// advance applies a matching event to p. It reports whether p stays on its
// step, the forked partial that moves on to the next step, and the captures
// of a completed match.
func (m *Machine) advance(p *partial, e types.Event) (stay bool, fork *partial, done [][]types.Event) {
	step := m.steps[p.step]
	c := p.count + 1
	canAdvance := c >= step.Min
	canStay := step.Max == types.Unbounded || c < step.Max
	captured := withCapture(p.captured, p.step, e.Clone())

	if canAdvance && p.step == len(m.steps)-1 {
		// the lineage ends here, a longer repetition would be discarded
		return false, nil, captured
	}
	if canAdvance {
		fork = &partial{lineage: p.lineage, step: p.step + 1, start: p.start, captured: captured}
	}
	if canStay {
		p.count = c
		p.captured = captured
	}
	return canStay, fork, nil
}

// env exposes the event attributes plus, per alias, the attributes of the
// latest event captured by that step. Event attributes win on conflict.
func (m *Machine) env(p *partial, e types.Event) map[string]interface{} {
	env := make(map[string]interface{})
	for i, s := range m.steps {
		if n := len(p.captured[i]); n > 0 {
			env[s.Alias] = s.Def.Env(p.captured[i][n-1].Data)
		}
	}
	for k, v := range m.steps[p.step].Def.Env(e.Data) {
		env[k] = v
	}
	return env
}

func withCapture(captured [][]types.Event, step int, e types.Event) [][]types.Event {
	out := make([][]types.Event, len(captured))
	copy(out, captured)
	events := make([]types.Event, len(captured[step])+1)
	copy(events, captured[step])
	events[len(events)-1] = e
	out[step] = events
	return out
}

func capturedLen(captured [][]types.Event) int {
	n := 0
	for _, c := range captured {
		n += len(c)
	}
	return n
}

func (m *Machine) alloc(p *partial) int {
	if n := len(m.free); n > 0 {
		i := m.free[n-1]
		m.free = m.free[:n-1]
		m.slots[i] = p
		return i
	}
	m.slots = append(m.slots, p)
	return len(m.slots) - 1
}

func (m *Machine) release(i int) {
	m.slots[i] = nil
	m.free = append(m.free, i)
}

type partialSnapshot struct {
	Lineage  uint64                 `codec:"l"`
	Step     int                    `codec:"s"`
	Count    int                    `codec:"c"`
	Start    int64                  `codec:"t"`
	Captured [][]types.EncodedEvent `codec:"e"`
}

type machineSnapshot struct {
	Partials    []partialSnapshot `codec:"p"`
	NextLineage uint64            `codec:"n"`
	Completed   bool              `codec:"d"`
}

// Snapshot implements types.Stateful. Partials are written oldest first.
func (m *Machine) Snapshot() ([]byte, error) {
	snap := machineSnapshot{
		Partials:    make([]partialSnapshot, len(m.order)),
		NextLineage: m.nextLineage,
		Completed:   m.completed,
	}
	for k, i := range m.order {
		p := m.slots[i]
		ps := partialSnapshot{Lineage: p.lineage, Step: p.step, Count: p.count, Start: p.start,
			Captured: make([][]types.EncodedEvent, len(p.captured))}
		for s, events := range p.captured {
			ps.Captured[s] = make([]types.EncodedEvent, len(events))
			for j, ev := range events {
				ps.Captured[s][j] = types.EncodeEvent(ev)
			}
		}
		snap.Partials[k] = ps
	}
	return codec.Encode(snap)
}

// Restore implements types.Stateful. The arena is rebuilt from scratch.
func (m *Machine) Restore(data []byte) error {
	var snap machineSnapshot
	if err := codec.Decode(data, &snap); err != nil {
		return err
	}
	slots := make([]*partial, len(snap.Partials))
	order := make([]int, len(snap.Partials))
	for k, ps := range snap.Partials {
		if ps.Step < 0 || ps.Step >= len(m.steps) || len(ps.Captured) != len(m.steps) {
			return fmt.Errorf("pattern %s partial %d does not fit %d steps", m.id, k, len(m.steps))
		}
		if ps.Count != len(ps.Captured[ps.Step]) {
			return fmt.Errorf("pattern %s partial %d counts %d captures, holds %d", m.id, k, ps.Count, len(ps.Captured[ps.Step]))
		}
		p := &partial{lineage: ps.Lineage, step: ps.Step, count: ps.Count, start: ps.Start,
			captured: make([][]types.Event, len(m.steps))}
		for s, events := range ps.Captured {
			if s < ps.Step && len(events) == 0 {
				return fmt.Errorf("pattern %s partial %d has no capture for passed step %s", m.id, k, m.steps[s].Alias)
			}
			for _, enc := range events {
				ev, err := types.DecodeEvent(m.steps[s].Def, enc)
				if err != nil {
					return err
				}
				p.captured[s] = append(p.captured[s], ev)
			}
		}
		slots[k] = p
		order[k] = k
	}
	m.slots = slots
	m.order = order
	m.free = nil
	m.nextLineage = snap.NextLineage
	m.completed = snap.Completed
	return nil
}
