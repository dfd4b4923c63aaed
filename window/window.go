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
)

// Window is a stateful operator over the events of one stream. Insert and
// OnTimer return the notifications to pass downstream, removals first.
// A window is owned by one pipeline goroutine and is not safe for
// concurrent use.
type Window interface {
	types.Stateful
	Insert(e types.Event) []types.Notification
	// OnTimer expires the events due at now.
	OnTimer(now int64) []types.Notification
	// Events returns the held events, oldest first.
	Events() []types.Event
	Len() int
}

// Waker receives wake-up requests from time based windows.
type Waker interface {
	Wake(at int64)
}

// WakerFunc adapts a function to Waker.
type WakerFunc func(at int64)

func (f WakerFunc) Wake(at int64) {
	f(at)
}

// CreateWindow builds the window declared by spec for events of def.
func CreateWindow(id string, spec types.WindowSpec, def *types.StreamDefinition, waker Waker, clock types.Clock) (Window, error) {
	switch spec.Type {
	case types.WindowLength:
		return NewLengthWindow(id, spec.Length, def)
	case types.WindowTime:
		if waker == nil || clock == nil {
			return nil, fmt.Errorf("time window %s requires a waker and a clock", id)
		}
		return NewTimeWindow(id, spec.Duration.Milliseconds(), def, waker, clock)
	default:
		return nil, fmt.Errorf("unsupported window type: %s", spec.Type)
	}
}
