// Copyright 2025 The GameManager Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridge

import (
	"sync"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

// CommandQueueCapacity is the bounded inbound command queue's size (§5:
// "on the order of 1024 entries").
const CommandQueueCapacity = 1024

// CommandQueue is the bounded MPSC queue from the IPC thread to the sim
// thread. Push is safe for concurrent callers (multiple IPC readers are
// not expected, but the bound holds regardless); DrainInto runs only on the
// sim thread.
type CommandQueue struct {
	ch chan Command
}

// NewCommandQueue creates a CommandQueue at CommandQueueCapacity.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{ch: make(chan Command, CommandQueueCapacity)}
}

// Push enqueues a command, rejecting it with a backpressure error if the
// queue is full (§5, §7).
func (q *CommandQueue) Push(cmd Command) error {
	select {
	case q.ch <- cmd:
		return nil
	default:
		return gmerrors.New(gmerrors.KindBackpressure, "inbound command queue is full", map[string]any{"queued": CommandQueueCapacity})
	}
}

// DrainInto pops every command currently queued, in FIFO order, calling fn
// for each. It never blocks: it stops as soon as the queue is empty. Run
// from the sim thread once per frame.
func (q *CommandQueue) DrainInto(fn func(Command)) {
	for {
		select {
		case cmd := <-q.ch:
			fn(cmd)
		default:
			return
		}
	}
}

// EventQueue is the unbounded MPSC queue from the sim thread to the IPC
// thread. Same-kind coalescing events (currently just "update") are
// collapsed to the most recent pending instance instead of growing
// unboundedly under backpressure from a slow IPC writer.
type EventQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []Event
	pending map[EventKind]int // index into items for a coalescable kind's current slot, if still undrained
	closed  bool
}

// NewEventQueue creates an empty EventQueue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{pending: make(map[EventKind]int)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues an event. An event of a coalescable kind that still has an
// undrained instance in the queue replaces that instance in place, keeping
// its position, instead of being appended.
func (q *EventQueue) Push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if coalescingEvents[e.Type] {
		if idx, ok := q.pending[e.Type]; ok {
			q.items[idx] = e
			q.cond.Signal()
			return
		}
	}
	q.items = append(q.items, e)
	if coalescingEvents[e.Type] {
		q.pending[e.Type] = len(q.items) - 1
	}
	q.cond.Signal()
}

// Drain blocks until at least one event is available (or the queue is
// closed), then returns every event queued so far in FIFO order.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	out := q.items
	q.items = nil
	q.pending = make(map[EventKind]int)
	return out
}

// Close unblocks any in-progress Drain and causes further Push calls to be
// silently dropped; events already queued are still returned by Drain. The
// release path calls it right after queueing the final release event.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
