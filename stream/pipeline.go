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
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rulego/streamcep/aggregator"
	"github.com/rulego/streamcep/condition"
	"github.com/rulego/streamcep/logger"
	"github.com/rulego/streamcep/pattern"
	"github.com/rulego/streamcep/scheduler"
	"github.com/rulego/streamcep/types"
	"github.com/rulego/streamcep/window"
)

// ErrPipelineStopped is returned for work submitted to a stopped pipeline.
var ErrPipelineStopped = errors.New("pipeline stopped")

// Callback receives the output of one processing step. inEvents holds
// current (inserted) events and removeEvents expired ones; at least one is
// non-empty.
type Callback func(timestamp int64, inEvents, removeEvents []types.Event)

// Pipeline runs one query on its own goroutine. Events, timer wake-ups,
// snapshot and restore requests all pass through the mailbox, so operator
// state is only ever touched by that goroutine.
type Pipeline struct {
	name    string
	streams []string
	output  types.OutputEvents
	clock   types.Clock
	log     logger.Logger

	inDef   *types.StreamDefinition
	filter  condition.Condition
	window  window.Window
	pattern *pattern.Machine
	agg     *aggregator.Group
	getters []getter
	outDef  *types.StreamDefinition

	mailbox   *Mailbox
	scheduler *scheduler.Scheduler
	stats     *StatsCollector

	mu        sync.RWMutex
	callbacks []Callback
	sink      *Junction

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// Name returns the query name.
func (p *Pipeline) Name() string {
	return p.name
}

// Streams lists the input streams the pipeline must be subscribed to.
func (p *Pipeline) Streams() []string {
	return p.streams
}

// OutputDefinition describes the events the pipeline emits.
func (p *Pipeline) OutputDefinition() *types.StreamDefinition {
	return p.outDef
}

// Operators returns the stateful operators in processing order.
func (p *Pipeline) Operators() []types.Stateful {
	var ops []types.Stateful
	if p.window != nil {
		ops = append(ops, p.window)
	}
	if p.pattern != nil {
		ops = append(ops, p.pattern)
	}
	if p.agg != nil {
		ops = append(ops, p.agg)
	}
	return ops
}

// OperatorIDs lists the IDs of Operators.
func (p *Pipeline) OperatorIDs() []string {
	ops := p.Operators()
	ids := make([]string, len(ops))
	for i, op := range ops {
		ids[i] = op.ID()
	}
	return ids
}

// AddCallback registers a query callback.
func (p *Pipeline) AddCallback(cb Callback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, cb)
}

// SetSink makes the pipeline publish its output events to j. The sink sees
// what the output policy admits, removals included for expired and all.
func (p *Pipeline) SetSink(j *Junction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = j
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() map[string]int64 {
	return p.stats.GetBasicStats(p.mailbox.Len())
}

// Receive implements Receiver.
func (p *Pipeline) Receive(stream string, e types.Event) bool {
	return p.mailbox.Push(message{kind: msgEvent, stream: stream, event: e})
}

// Start launches the pipeline goroutine.
func (p *Pipeline) Start() {
	p.startOnce.Do(func() {
		go p.run()
	})
}

// Stop cancels pending timers, lets the goroutine drain what is already
// queued and waits for it to exit. A pipeline that was never started is
// closed without processing.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		if p.scheduler != nil {
			p.scheduler.Stop()
		}
		p.mailbox.Close()
		p.startOnce.Do(func() { close(p.done) })
	})
	<-p.done
}

// Snapshot captures every operator after all previously queued messages
// have been processed.
func (p *Pipeline) Snapshot(ctx context.Context) (map[string][]byte, error) {
	reply := make(chan snapshotReply, 1)
	if !p.mailbox.Push(message{kind: msgSnapshot, snapshotReply: reply}) {
		return nil, fmt.Errorf("snapshot %s: %w", p.name, ErrPipelineStopped)
	}
	select {
	case r := <-reply:
		return r.blobs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Restore replaces the state of every operator with blobs, keyed by
// operator ID, and returns the state it replaced. Both happen in one
// mailbox step, so the returned blobs are a consistent rollback point.
// Either all operators are restored or none is; the error is a
// *types.RestoreError naming the failing operator.
func (p *Pipeline) Restore(ctx context.Context, blobs map[string][]byte) (map[string][]byte, error) {
	reply := make(chan snapshotReply, 1)
	if !p.mailbox.Push(message{kind: msgRestore, blobs: blobs, restoreReply: reply}) {
		return nil, fmt.Errorf("restore %s: %w", p.name, ErrPipelineStopped)
	}
	select {
	case r := <-reply:
		return r.blobs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pipeline) run() {
	defer close(p.done)
	p.log.Debug("pipeline started")
	for {
		msg, ok := p.mailbox.Pop()
		if !ok {
			p.log.Debug("pipeline stopped")
			return
		}
		switch msg.kind {
		case msgEvent:
			p.stats.IncrementInput()
			p.onEvent(msg.stream, msg.event)
		case msgTimer:
			p.onTimer(msg.target, msg.now)
		case msgSnapshot:
			blobs, err := p.snapshot()
			msg.snapshotReply <- snapshotReply{blobs: blobs, err: err}
		case msgRestore:
			backup, err := p.restore(msg.blobs)
			msg.restoreReply <- snapshotReply{blobs: backup, err: err}
		}
	}
}

// fireTimer runs on the scheduler goroutine and only enqueues.
func (p *Pipeline) fireTimer(target string, now int64) {
	p.mailbox.Push(message{kind: msgTimer, target: target, now: now})
}

func (p *Pipeline) onEvent(stream string, e types.Event) {
	if p.pattern != nil {
		matches, err := p.pattern.Process(stream, e)
		if err != nil {
			p.stats.IncrementError()
			p.log.Warn("pattern evaluation failed at %d: %v", e.Timestamp, err)
		}
		if len(matches) == 0 || !p.output.Current() {
			return
		}
		in := make([]types.Event, len(matches))
		for i := range matches {
			in[i] = p.project(types.Event{Timestamp: matches[i].Timestamp}, &matches[i], nil)
		}
		p.deliver(e.Timestamp, in, nil, in)
		return
	}

	ok, err := p.filter.Evaluate(p.inDef.Env(e.Data))
	if err != nil {
		p.stats.IncrementError()
		p.log.Warn("filter %q failed at %d: %v", p.filter.String(), e.Timestamp, err)
		return
	}
	if !ok {
		p.stats.IncrementFiltered()
		return
	}
	if p.window == nil {
		p.emit(e.Timestamp, []types.Notification{{Kind: types.Insert, Event: e}})
		return
	}
	p.emit(e.Timestamp, p.window.Insert(e))
}

func (p *Pipeline) onTimer(target string, now int64) {
	if p.window == nil || p.window.ID() != target {
		p.log.Debug("timer for unknown operator %s ignored", target)
		return
	}
	p.emit(now, p.window.OnTimer(now))
}

// emit runs notifications through the aggregator and the projection, in
// order, and delivers what the output policy admits.
func (p *Pipeline) emit(ts int64, notifications []types.Notification) {
	if len(notifications) == 0 {
		return
	}
	var in, removed, all []types.Event
	for _, n := range notifications {
		var agg []interface{}
		if p.agg != nil {
			var err error
			if agg, err = p.agg.Apply(n); err != nil {
				p.stats.IncrementError()
				p.log.Warn("aggregation failed on %s at %d: %v", n.Kind, n.Event.Timestamp, err)
				continue
			}
			if agg == nil {
				// removal of an insert the aggregator rejected
				continue
			}
		}
		if (n.Kind == types.Insert && !p.output.Current()) || (n.Kind == types.Remove && !p.output.Expired()) {
			continue
		}
		out := p.project(n.Event, nil, agg)
		if n.Kind == types.Insert {
			in = append(in, out)
		} else {
			removed = append(removed, out)
		}
		all = append(all, out)
	}
	p.deliver(ts, in, removed, all)
}

func (p *Pipeline) project(e types.Event, m *pattern.Match, agg []interface{}) types.Event {
	if len(p.getters) == 0 {
		return e
	}
	data := make([]interface{}, len(p.getters))
	for i, g := range p.getters {
		data[i] = g(e, m, agg)
	}
	return types.Event{Timestamp: e.Timestamp, Data: data}
}

func (p *Pipeline) deliver(ts int64, in, removed, all []types.Event) {
	if len(in) == 0 && len(removed) == 0 {
		return
	}
	p.stats.AddOutput(len(all))
	p.mu.RLock()
	callbacks := p.callbacks
	sink := p.sink
	p.mu.RUnlock()

	for _, cb := range callbacks {
		p.invoke(cb, ts, in, removed)
	}
	if sink != nil {
		sink.Publish(all...)
	}
}

func (p *Pipeline) invoke(cb Callback, ts int64, in, removed []types.Event) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("callback panic recovered: %v", r)
		}
	}()
	cb(ts, in, removed)
}

func (p *Pipeline) snapshot() (map[string][]byte, error) {
	ops := p.Operators()
	blobs := make(map[string][]byte, len(ops))
	for _, op := range ops {
		data, err := op.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("snapshot operator %s: %w", op.ID(), err)
		}
		blobs[op.ID()] = data
	}
	return blobs, nil
}

func (p *Pipeline) restore(blobs map[string][]byte) (map[string][]byte, error) {
	ops := p.Operators()
	backup := make(map[string][]byte, len(ops))
	for _, op := range ops {
		data, err := op.Snapshot()
		if err != nil {
			return nil, &types.RestoreError{OperatorID: op.ID(), Err: err}
		}
		backup[op.ID()] = data
	}
	for i, op := range ops {
		data, ok := blobs[op.ID()]
		var err error
		if !ok {
			err = errors.New("no snapshot for operator")
		} else {
			err = op.Restore(data)
		}
		if err != nil {
			for _, prev := range ops[:i] {
				if rerr := prev.Restore(backup[prev.ID()]); rerr != nil {
					p.log.Error("rollback of operator %s failed: %v", prev.ID(), rerr)
				}
			}
			return nil, &types.RestoreError{OperatorID: op.ID(), Err: err}
		}
	}
	p.log.Debug("restored %d operators", len(ops))
	return backup, nil
}
