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

package window

import (
	"fmt"
	"math"
	"sort"

	"github.com/rulego/streamcep/types"
	"github.com/rulego/streamcep/utils/codec"
)

type timedEntry struct {
	event    types.Event
	expireAt int64
}

// TimeWindow holds the events of the last duration milliseconds. Entries
// are ordered by expiry time, ties broken by arrival.
type TimeWindow struct {
	id       string
	duration int64
	def      *types.StreamDefinition
	waker    Waker
	clock    types.Clock

	entries []timedEntry
	// armedAt is the last wake-up requested, so the head is armed once.
	armedAt int64
}

// NewTimeWindow creates a sliding time window of duration milliseconds.
func NewTimeWindow(id string, duration int64, def *types.StreamDefinition, waker Waker, clock types.Clock) (*TimeWindow, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("time window %s requires a positive duration, got %dms", id, duration)
	}
	return &TimeWindow{
		id:       id,
		duration: duration,
		def:      def,
		waker:    waker,
		clock:    clock,
		armedAt:  math.MinInt64,
	}, nil
}

func (w *TimeWindow) ID() string {
	return w.id
}

// Insert first expires what is already due, then admits e with expiry
// e.Timestamp + duration.
func (w *TimeWindow) Insert(e types.Event) []types.Notification {
	out := w.expire(w.clock())
	e = e.Clone()
	entry := timedEntry{event: e, expireAt: e.Timestamp + w.duration}
	i := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].expireAt > entry.expireAt
	})
	w.entries = append(w.entries, timedEntry{})
	copy(w.entries[i+1:], w.entries[i:])
	w.entries[i] = entry
	w.arm()
	return append(out, types.Notification{Kind: types.Insert, Event: e})
}

func (w *TimeWindow) OnTimer(now int64) []types.Notification {
	out := w.expire(now)
	w.arm()
	return out
}

// expire removes every entry with expireAt <= now. Removed events carry now
// as their timestamp.
func (w *TimeWindow) expire(now int64) []types.Notification {
	n := 0
	for n < len(w.entries) && w.entries[n].expireAt <= now {
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]types.Notification, n, n+1)
	for i := 0; i < n; i++ {
		e := w.entries[i].event
		e.Timestamp = now
		out[i] = types.Notification{Kind: types.Remove, Event: e}
	}
	w.entries = append(w.entries[:0], w.entries[n:]...)
	return out
}

func (w *TimeWindow) arm() {
	if len(w.entries) == 0 {
		return
	}
	if at := w.entries[0].expireAt; at != w.armedAt {
		w.armedAt = at
		w.waker.Wake(at)
	}
}

func (w *TimeWindow) Events() []types.Event {
	out := make([]types.Event, len(w.entries))
	for i, en := range w.entries {
		out[i] = en.event
	}
	return out
}

func (w *TimeWindow) Len() int {
	return len(w.entries)
}

type timedSnapshot struct {
	Event types.EncodedEvent `codec:"e"`
	// Remaining is the delay until expiry at snapshot time, never negative.
	Remaining int64 `codec:"r"`
}

// Snapshot stores remaining delays rather than absolute expiry times, so a
// restore in a later process keeps each event's time left in the window.
func (w *TimeWindow) Snapshot() ([]byte, error) {
	now := w.clock()
	snap := make([]timedSnapshot, len(w.entries))
	for i, en := range w.entries {
		remaining := en.expireAt - now
		if remaining < 0 {
			remaining = 0
		}
		snap[i] = timedSnapshot{Event: types.EncodeEvent(en.event), Remaining: remaining}
	}
	return codec.Encode(snap)
}

func (w *TimeWindow) Restore(data []byte) error {
	var snap []timedSnapshot
	if err := codec.Decode(data, &snap); err != nil {
		return err
	}
	now := w.clock()
	entries := make([]timedEntry, 0, len(snap))
	for i, s := range snap {
		e, err := types.DecodeEvent(w.def, s.Event)
		if err != nil {
			return err
		}
		if s.Remaining < 0 {
			return fmt.Errorf("snapshot entry %d of window %s has remaining delay %dms", i, w.id, s.Remaining)
		}
		entries = append(entries, timedEntry{event: e, expireAt: now + s.Remaining})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].expireAt < entries[j].expireAt })
	w.entries = entries
	w.armedAt = math.MinInt64
	w.arm()
	return nil
}
