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

// Package scheduler delivers wake-ups requested by time based operators.
//
// One Scheduler serves one pipeline. Requests are kept in a min-heap and a
// single timer is armed for the earliest one. When it fires, the fire
// callback runs once per distinct target that is due, with the current
// clock reading; the pipeline turns that into a timer message in its
// mailbox so operators only ever run on the pipeline goroutine.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/rulego/streamcep/types"
)

// FireFunc receives a due wake-up for target.
type FireFunc func(target string, now int64)

type request struct {
	at     int64
	target string
	seq    uint64
}

type requestHeap []request

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h requestHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x interface{}) { *h = append(*h, x.(request)) }
func (h *requestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	mu      sync.Mutex
	clock   types.Clock
	fire    FireFunc
	pending requestHeap
	seq     uint64
	timer   *time.Timer
	timerAt int64
	// gen identifies the live timer; a replaced timer whose callback is
	// already running sees a newer gen and returns.
	gen     uint64
	stopped bool
}

// New creates a scheduler reading time from clock.
func New(clock types.Clock, fire FireFunc) *Scheduler {
	return &Scheduler{clock: clock, fire: fire}
}

// NotifyAt requests a wake-up of target at the absolute time at
// (milliseconds). Times in the past fire as soon as possible. Requests
// after Stop are ignored.
func (s *Scheduler) NotifyAt(target string, at int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	heap.Push(&s.pending, request{at: at, target: target, seq: s.seq})
	s.seq++
	s.armLocked()
}

// Waker returns a function requesting wake-ups for target.
func (s *Scheduler) Waker(target string) func(at int64) {
	return func(at int64) {
		s.NotifyAt(target, at)
	}
}

// Pending returns the number of outstanding requests.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

// Stop cancels every outstanding request. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// armLocked makes sure the timer is set for the earliest request.
func (s *Scheduler) armLocked() {
	if s.pending.Len() == 0 {
		return
	}
	next := s.pending[0].at
	if s.timer != nil {
		if s.timerAt <= next {
			return
		}
		s.timer.Stop()
	}
	delay := time.Duration(next-s.clock()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	s.gen++
	gen := s.gen
	s.timerAt = next
	s.timer = time.AfterFunc(delay, func() { s.onTimer(gen) })
}

func (s *Scheduler) onTimer(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	now := s.clock()
	var due []string
	seen := make(map[string]bool)
	for s.pending.Len() > 0 && s.pending[0].at <= now {
		r := heap.Pop(&s.pending).(request)
		if !seen[r.target] {
			seen[r.target] = true
			due = append(due, r.target)
		}
	}
	s.armLocked()
	s.mu.Unlock()

	for _, target := range due {
		s.fire(target, now)
	}
}
