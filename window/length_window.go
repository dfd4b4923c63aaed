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

	"github.com/rulego/streamcep/types"
	"github.com/rulego/streamcep/utils/codec"
	"github.com/rulego/streamcep/utils/queue"
)

// LengthWindow holds the last N events.
type LengthWindow struct {
	id     string
	length int
	def    *types.StreamDefinition
	buffer *queue.Queue[types.Event]
}

// NewLengthWindow creates a window holding at most length events.
func NewLengthWindow(id string, length int, def *types.StreamDefinition) (*LengthWindow, error) {
	if length <= 0 {
		return nil, fmt.Errorf("length window %s requires a positive length, got %d", id, length)
	}
	return &LengthWindow{
		id:     id,
		length: length,
		def:    def,
		buffer: queue.New[types.Event](length),
	}, nil
}

func (w *LengthWindow) ID() string {
	return w.id
}

// Insert evicts the oldest event when the window is full. The removal comes
// first, stamped with the arriving event's timestamp, so an aggregate seen
// with the insert covers exactly the newest N events.
func (w *LengthWindow) Insert(e types.Event) []types.Notification {
	e = e.Clone()
	out := make([]types.Notification, 0, 2)
	if w.buffer.Len() == w.length {
		oldest, _ := w.buffer.Pop()
		oldest.Timestamp = e.Timestamp
		out = append(out, types.Notification{Kind: types.Remove, Event: oldest})
	}
	w.buffer.Push(e)
	return append(out, types.Notification{Kind: types.Insert, Event: e})
}

// OnTimer does nothing; length windows never expire by time.
func (w *LengthWindow) OnTimer(int64) []types.Notification {
	return nil
}

func (w *LengthWindow) Events() []types.Event {
	out := make([]types.Event, w.buffer.Len())
	for i := range out {
		out[i] = w.buffer.At(i)
	}
	return out
}

func (w *LengthWindow) Len() int {
	return w.buffer.Len()
}

type lengthSnapshot struct {
	Events []types.EncodedEvent `codec:"events"`
}

func (w *LengthWindow) Snapshot() ([]byte, error) {
	snap := lengthSnapshot{Events: make([]types.EncodedEvent, w.buffer.Len())}
	for i := range snap.Events {
		snap.Events[i] = types.EncodeEvent(w.buffer.At(i))
	}
	return codec.Encode(snap)
}

func (w *LengthWindow) Restore(data []byte) error {
	var snap lengthSnapshot
	if err := codec.Decode(data, &snap); err != nil {
		return err
	}
	if len(snap.Events) > w.length {
		return fmt.Errorf("snapshot holds %d events, window %s holds at most %d", len(snap.Events), w.id, w.length)
	}
	buffer := queue.New[types.Event](w.length)
	for _, enc := range snap.Events {
		e, err := types.DecodeEvent(w.def, enc)
		if err != nil {
			return err
		}
		buffer.Push(e)
	}
	w.buffer = buffer
	return nil
}
