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

package waiter

import (
	"testing"
	"time"

	"chalkos.dev/chalkos/pkg/errors/kerrno"
	"chalkos.dev/chalkos/pkg/sync"
)

func TestNotifyWakesMatchingMask(t *testing.T) {
	var q Queue
	in, inCh := NewEntry()
	out, outCh := NewEntry()
	q.EventRegister(in, EventIn)
	q.EventRegister(out, EventOut)
	defer q.EventUnregister(in)
	defer q.EventUnregister(out)

	q.Notify(EventIn)
	select {
	case <-inCh:
	default:
		t.Error("EventIn waiter not notified")
	}
	select {
	case <-outCh:
		t.Error("EventOut waiter notified by EventIn")
	default:
	}
}

func TestCancellableSleepWakeup(t *testing.T) {
	var q Queue
	var mu sync.Mutex

	res := make(chan error, 1)
	mu.Lock()
	go func() {
		defer mu.Unlock()
		res <- q.CancellableSleep(&mu, nil)
	}()

	// Wait until the sleeper has released the lock.
	for q.IsEmpty() {
		time.Sleep(time.Millisecond)
	}
	q.Notify(EventIn)
	select {
	case err := <-res:
		if err != nil {
			t.Fatalf("CancellableSleep = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sleeper not woken")
	}
}

func TestCancellableSleepCancel(t *testing.T) {
	var q Queue
	var mu sync.Mutex
	cancel := make(chan struct{})

	res := make(chan error, 1)
	mu.Lock()
	go func() {
		defer mu.Unlock()
		res <- q.CancellableSleep(&mu, cancel)
	}()
	for q.IsEmpty() {
		time.Sleep(time.Millisecond)
	}
	close(cancel)
	select {
	case err := <-res:
		if err != kerrno.EINTR {
			t.Fatalf("CancellableSleep = %v, want EINTR", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled sleeper not woken")
	}

	if !q.IsEmpty() {
		t.Error("cancelled entry still registered")
	}
}
