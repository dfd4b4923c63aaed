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
	"time"
)

// AttrType is the declared type of a stream attribute.
type AttrType string

const (
	TypeString AttrType = "string"
	TypeBool   AttrType = "bool"
	TypeInt    AttrType = "int"
	TypeLong   AttrType = "long"
	TypeFloat  AttrType = "float"
	TypeDouble AttrType = "double"
)

// Valid reports whether t is one of the supported attribute types.
func (t AttrType) Valid() bool {
	switch t {
	case TypeString, TypeBool, TypeInt, TypeLong, TypeFloat, TypeDouble:
		return true
	}
	return false
}

// IsNumeric reports whether t holds numbers.
func (t AttrType) IsNumeric() bool {
	switch t {
	case TypeInt, TypeLong, TypeFloat, TypeDouble:
		return true
	}
	return false
}

// IsIntegral reports whether t holds whole numbers.
func (t AttrType) IsIntegral() bool {
	return t == TypeInt || t == TypeLong
}

// Attribute is one named, typed column of a stream.
type Attribute struct {
	Name string   `json:"name" yaml:"name"`
	Type AttrType `json:"type" yaml:"type"`
}

// StreamDefinition is the ordered schema of a stream. It is immutable once a
// runtime has been built from it.
type StreamDefinition struct {
	ID         string      `json:"id" yaml:"id"`
	Attributes []Attribute `json:"attributes" yaml:"attributes"`
}

// Index returns the position of the named attribute, or -1.
func (d *StreamDefinition) Index(name string) int {
	for i, a := range d.Attributes {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Type returns the type of the named attribute.
func (d *StreamDefinition) Type(name string) (AttrType, bool) {
	if i := d.Index(name); i >= 0 {
		return d.Attributes[i].Type, true
	}
	return "", false
}

// Validate checks names and types of the definition.
func (d *StreamDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("stream definition requires an id")
	}
	if len(d.Attributes) == 0 {
		return fmt.Errorf("stream %s defines no attributes", d.ID)
	}
	seen := make(map[string]struct{}, len(d.Attributes))
	for _, a := range d.Attributes {
		if a.Name == "" {
			return fmt.Errorf("stream %s has an unnamed attribute", d.ID)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("stream %s defines attribute %s twice", d.ID, a.Name)
		}
		seen[a.Name] = struct{}{}
		if !a.Type.Valid() {
			return fmt.Errorf("stream %s attribute %s has unsupported type %q", d.ID, a.Name, a.Type)
		}
	}
	return nil
}

// Equal reports whether two definitions have the same attribute names and types.
func (d *StreamDefinition) Equal(o *StreamDefinition) bool {
	if len(d.Attributes) != len(o.Attributes) {
		return false
	}
	for i := range d.Attributes {
		if d.Attributes[i] != o.Attributes[i] {
			return false
		}
	}
	return true
}

// Env exposes event data keyed by attribute name, the shape expected by
// expression conditions.
func (d *StreamDefinition) Env(data []interface{}) map[string]interface{} {
	env := make(map[string]interface{}, len(d.Attributes))
	for i, a := range d.Attributes {
		if i < len(data) {
			env[a.Name] = data[i]
		}
	}
	return env
}

// Event is one immutable data point of a stream. Operators that hold an
// event beyond the current step keep a Clone.
type Event struct {
	Timestamp int64         `json:"timestamp"`
	Data      []interface{} `json:"data"`
}

// NewEvent creates an event with the given millisecond timestamp.
func NewEvent(ts int64, data ...interface{}) Event {
	return Event{Timestamp: ts, Data: data}
}

// Clone copies the data slice so the clone shares nothing mutable with e.
func (e Event) Clone() Event {
	data := make([]interface{}, len(e.Data))
	copy(data, e.Data)
	return Event{Timestamp: e.Timestamp, Data: data}
}

// Get returns the i-th attribute value, nil when out of range.
func (e Event) Get(i int) interface{} {
	if i < 0 || i >= len(e.Data) {
		return nil
	}
	return e.Data[i]
}

func (e Event) String() string {
	return fmt.Sprintf("Event{timestamp=%d, data=%v}", e.Timestamp, e.Data)
}

// Kind distinguishes insert notifications from remove (expiry) notifications.
type Kind int8

const (
	Insert Kind = iota
	Remove
)

func (k Kind) String() string {
	if k == Remove {
		return "remove"
	}
	return "insert"
}

// Notification is an event moving downstream from a window, tagged with
// whether it entered or left the window.
type Notification struct {
	Kind  Kind
	Event Event
}

// Stateful is the capability set shared by every operator whose state is
// captured by persistence: windows, pattern machines and aggregators.
type Stateful interface {
	// ID is unique within a runtime and stable across instances built
	// from the same plan.
	ID() string
	// Snapshot serializes the full mutable state.
	Snapshot() ([]byte, error)
	// Restore replaces the whole state with data. On error the previous
	// state is kept.
	Restore(data []byte) error
}

// Clock returns the current time in milliseconds.
type Clock func() int64

// SystemClock is the wall clock in epoch milliseconds.
func SystemClock() int64 {
	return time.Now().UnixMilli()
}
