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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoPersistenceStore is returned by persist and restore calls on a
	// runtime that has no store configured.
	ErrNoPersistenceStore = errors.New("no persistence store configured")
	// ErrRevisionNotFound means the store holds no revision for the runtime.
	ErrRevisionNotFound = errors.New("revision not found")
	// ErrRuntimeNotRunning is returned when an operation is invalid in the
	// current lifecycle state.
	ErrRuntimeNotRunning = errors.New("runtime is not running")
	ErrUnknownStream     = errors.New("unknown stream")
	ErrUnknownQuery      = errors.New("unknown query")
)

// TypeMismatchError rejects input whose arity or attribute types disagree
// with the stream definition.
type TypeMismatchError struct {
	Stream    string
	Attribute string
	Expected  AttrType
	Value     interface{}
	WantArity int
	GotArity  int
}

func (e *TypeMismatchError) Error() string {
	if e.WantArity != e.GotArity {
		return fmt.Sprintf("type mismatch: stream %s expects %d attributes, got %d", e.Stream, e.WantArity, e.GotArity)
	}
	return fmt.Sprintf("type mismatch: stream %s attribute %s expects %s, got %T(%v)",
		e.Stream, e.Attribute, e.Expected, e.Value, e.Value)
}

// RestoreError reports a missing or corrupt revision or operator blob.
type RestoreError struct {
	Revision   string
	OperatorID string
	Err        error
}

func (e *RestoreError) Error() string {
	var b strings.Builder
	b.WriteString("restore failed")
	if e.Revision != "" {
		b.WriteString(" for revision ")
		b.WriteString(e.Revision)
	}
	if e.OperatorID != "" {
		b.WriteString(" at operator ")
		b.WriteString(e.OperatorID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}

// AggregationError is confined to a single notification; the accumulator
// is left as it was before the failing call.
type AggregationError struct {
	Function string
	Value    interface{}
	Err      error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation %s failed on %T(%v): %v", e.Function, e.Value, e.Value, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}
