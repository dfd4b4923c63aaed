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

import "fmt"

// Value is the snapshot form of one attribute value. Exactly one payload
// field is meaningful, chosen by the attribute type of the owning stream.
type Value struct {
	Null bool    `codec:"n,omitempty"`
	S    string  `codec:"s,omitempty"`
	B    bool    `codec:"b,omitempty"`
	I    int64   `codec:"i,omitempty"`
	F    float64 `codec:"f,omitempty"`
}

// EncodedEvent is the snapshot form of an Event.
type EncodedEvent struct {
	Timestamp int64   `codec:"t"`
	Values    []Value `codec:"v"`
}

// EncodeEvent converts e into its snapshot form.
func EncodeEvent(e Event) EncodedEvent {
	values := make([]Value, len(e.Data))
	for i, v := range e.Data {
		switch x := v.(type) {
		case nil:
			values[i] = Value{Null: true}
		case string:
			values[i] = Value{S: x}
		case bool:
			values[i] = Value{B: x}
		case int32:
			values[i] = Value{I: int64(x)}
		case int64:
			values[i] = Value{I: x}
		case float32:
			values[i] = Value{F: float64(x)}
		case float64:
			values[i] = Value{F: x}
		default:
			values[i] = Value{S: fmt.Sprint(x)}
		}
	}
	return EncodedEvent{Timestamp: e.Timestamp, Values: values}
}

// DecodeEvent rebuilds an event of stream d from its snapshot form.
func DecodeEvent(d *StreamDefinition, enc EncodedEvent) (Event, error) {
	if len(enc.Values) != len(d.Attributes) {
		return Event{}, fmt.Errorf("snapshot event has %d values, stream %s has %d attributes",
			len(enc.Values), d.ID, len(d.Attributes))
	}
	data := make([]interface{}, len(enc.Values))
	for i, v := range enc.Values {
		if v.Null {
			continue
		}
		switch d.Attributes[i].Type {
		case TypeString:
			data[i] = v.S
		case TypeBool:
			data[i] = v.B
		case TypeInt:
			data[i] = int32(v.I)
		case TypeLong:
			data[i] = v.I
		case TypeFloat:
			data[i] = float32(v.F)
		case TypeDouble:
			data[i] = v.F
		default:
			return Event{}, fmt.Errorf("stream %s attribute %s has unsupported type %q",
				d.ID, d.Attributes[i].Name, d.Attributes[i].Type)
		}
	}
	return Event{Timestamp: enc.Timestamp, Data: data}, nil
}
