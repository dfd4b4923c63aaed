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

	"github.com/rulego/streamcep/types"
	"github.com/rulego/streamcep/utils/queue"
)

type msgKind int8

const (
	msgEvent msgKind = iota
	msgTimer
	msgSnapshot
	msgRestore
)

// snapshotReply answers a snapshot with the captured blobs and a restore
// with the state it replaced.
type snapshotReply struct {
	blobs map[string][]byte
	err   error
}

// message is one unit of work for a pipeline goroutine.
type message struct {
	kind   msgKind
	stream string
	event  types.Event
	// timer
	target string
	now    int64
	// snapshot and restore
	blobs         map[string][]byte
	snapshotReply chan snapshotReply
	restoreReply  chan snapshotReply
}

// Mailbox is an unbounded FIFO with many producers and one consumer.
// Push never blocks.
type Mailbox struct {
	mu     sync.Mutex
	q      *queue.Queue[message]
	signal chan struct{}
	closed bool
}

// NewMailbox creates a mailbox with an initial capacity of size.
func NewMailbox(size int) *Mailbox {
	return &Mailbox{
		q:      queue.New[message](size),
		signal: make(chan struct{}, 1),
	}
}

// Push enqueues m. It returns false once the mailbox is closed.
func (mb *Mailbox) Push(m message) bool {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return false
	}
	mb.q.Push(m)
	mb.mu.Unlock()
	mb.notify()
	return true
}

// Pop blocks until a message is available. After Close it keeps returning
// the queued messages and then reports false.
func (mb *Mailbox) Pop() (message, bool) {
	for {
		mb.mu.Lock()
		if m, ok := mb.q.Pop(); ok {
			mb.mu.Unlock()
			return m, true
		}
		closed := mb.closed
		mb.mu.Unlock()
		if closed {
			return message{}, false
		}
		<-mb.signal
	}
}

// Len returns the number of queued messages.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.q.Len()
}

// Close rejects further pushes. It is safe to call more than once.
func (mb *Mailbox) Close() {
	mb.mu.Lock()
	mb.closed = true
	mb.mu.Unlock()
	mb.notify()
}

func (mb *Mailbox) notify() {
	select {
	case mb.signal <- struct{}{}:
	default:
	}
}
