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
	"sync"

	"github.com/rulego/streamcep/logger"
	"github.com/rulego/streamcep/types"
)

// Receiver consumes the events of a junction.
type Receiver interface {
	// Receive enqueues e; it must not block. It returns false when the
	// receiver no longer accepts events.
	Receive(stream string, e types.Event) bool
}

// StreamCallback observes every event published to a stream.
type StreamCallback func(events []types.Event)

// Junction fans the events of one stream out to its subscribers.
type Junction struct {
	def *types.StreamDefinition
	log logger.Logger

	mu          sync.RWMutex
	subscribers []Receiver
	callbacks   []StreamCallback
}

// NewJunction creates the junction of the stream defined by def.
func NewJunction(def *types.StreamDefinition, log logger.Logger) *Junction {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Junction{def: def, log: log}
}

// Definition returns the stream definition.
func (j *Junction) Definition() *types.StreamDefinition {
	return j.def
}

// Subscribe adds r to the receivers of the stream.
func (j *Junction) Subscribe(r Receiver) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.subscribers = append(j.subscribers, r)
}

// AddCallback registers a stream callback. Callbacks run synchronously on
// the publishing goroutine.
func (j *Junction) AddCallback(cb StreamCallback) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.callbacks = append(j.callbacks, cb)
}

// Publish hands events to every subscriber in order.
func (j *Junction) Publish(events ...types.Event) {
	if len(events) == 0 {
		return
	}
	j.mu.RLock()
	subscribers := j.subscribers
	callbacks := j.callbacks
	j.mu.RUnlock()

	for _, e := range events {
		for _, r := range subscribers {
			if !r.Receive(j.def.ID, e) {
				j.log.Debug("stream %s: subscriber stopped, event at %d dropped", j.def.ID, e.Timestamp)
			}
		}
	}
	for _, cb := range callbacks {
		j.invoke(cb, events)
	}
}

func (j *Junction) invoke(cb StreamCallback, events []types.Event) {
	defer func() {
		if r := recover(); r != nil {
			j.log.Error("stream %s: callback panic recovered: %v", j.def.ID, r)
		}
	}()
	cb(events)
}

// InputHandler validates and publishes events of one stream.
type InputHandler struct {
	junction *Junction
	clock    types.Clock
	gate     func() error
}

// NewInputHandler creates a handle on junction. gate, when set, is checked
// before every send and may reject it.
func NewInputHandler(junction *Junction, clock types.Clock, gate func() error) *InputHandler {
	if clock == nil {
		clock = types.SystemClock
	}
	return &InputHandler{junction: junction, clock: clock, gate: gate}
}

// StreamID returns the stream the handle publishes to.
func (h *InputHandler) StreamID() string {
	return h.junction.def.ID
}

// Send publishes values stamped with the current time.
func (h *InputHandler) Send(values ...interface{}) error {
	return h.SendWithTimestamp(h.clock(), values...)
}

// SendWithTimestamp publishes values with an explicit timestamp in
// milliseconds. Values are coerced to the stream's attribute types; a
// mismatch returns a *types.TypeMismatchError and publishes nothing.
func (h *InputHandler) SendWithTimestamp(ts int64, values ...interface{}) error {
	if h.gate != nil {
		if err := h.gate(); err != nil {
			return err
		}
	}
	data, err := h.junction.def.Coerce(values)
	if err != nil {
		return err
	}
	h.junction.Publish(types.Event{Timestamp: ts, Data: data})
	return nil
}
