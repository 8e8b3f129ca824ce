// Copyright 2026 The Chalkos Authors.
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

// Package waiter provides the kernel's wait queues. A waiter enqueues an
// Entry to be notified when an event of interest happens; sleeps can be
// cancelled, in which case the sleeping thread unwinds with EINTR.
package waiter

import (
	"chalkos.dev/chalkos/pkg/errors/kerrno"
	"chalkos.dev/chalkos/pkg/sync"
)

// EventMask represents the events a waiter can wait on.
type EventMask uint16

// Events that waiters can wait on.
const (
	EventIn  EventMask = 0x01
	EventOut EventMask = 0x04
	EventHUp EventMask = 0x10
)

// Entry represents a single waiter on a queue. An Entry may be in at most
// one queue at a time.
type Entry struct {
	mask EventMask
	ch   chan struct{}
}

// NewEntry returns an Entry ready to be registered on a queue. The returned
// channel receives one token per notification.
func NewEntry() (*Entry, chan struct{}) {
	e := &Entry{ch: make(chan struct{}, 1)}
	return e, e.ch
}

func (e *Entry) notify() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

// Queue is a wait queue. The zero value is an empty queue ready for use.
type Queue struct {
	mu      sync.Mutex
	entries map[*Entry]struct{}
}

// EventRegister adds a waiter to the queue; the waiter is notified when at
// least one of the events in mask happens.
func (q *Queue) EventRegister(e *Entry, mask EventMask) {
	q.mu.Lock()
	e.mask = mask
	if q.entries == nil {
		q.entries = make(map[*Entry]struct{})
	}
	q.entries[e] = struct{}{}
	q.mu.Unlock()
}

// EventUnregister removes a waiter previously added with EventRegister.
func (q *Queue) EventUnregister(e *Entry) {
	q.mu.Lock()
	delete(q.entries, e)
	q.mu.Unlock()
}

// Notify wakes all waiters whose masks intersect the notification mask.
func (q *Queue) Notify(mask EventMask) {
	q.mu.Lock()
	for e := range q.entries {
		if mask&e.mask != 0 {
			e.notify()
		}
	}
	q.mu.Unlock()
}

// IsEmpty returns whether the queue has no waiters.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) == 0
}

// CancellableSleep blocks the caller on q until Notify wakes it or cancel
// fires. mu must be held on entry; it is released for the duration of the
// sleep and reacquired before return, so the caller's invariants hold on
// both sides. Returns nil on wakeup and EINTR on cancellation.
func (q *Queue) CancellableSleep(mu *sync.Mutex, cancel <-chan struct{}) error {
	e, ch := NewEntry()
	q.EventRegister(e, EventIn)
	mu.Unlock()

	var err error
	select {
	case <-ch:
	case <-cancel:
		err = kerrno.EINTR
	}

	q.EventUnregister(e)
	mu.Lock()
	return err
}

// Sleep is CancellableSleep without a cancellation channel.
func (q *Queue) Sleep(mu *sync.Mutex) {
	q.CancellableSleep(mu, nil)
}
