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

package tty

import (
	"io"

	"chalkos.dev/chalkos/pkg/sync"
)

// WriterTerminal adapts an io.Writer into a Terminal, for attaching a TTY
// to a host stream.
type WriterTerminal struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterTerminal returns a Terminal writing to w.
func NewWriterTerminal(w io.Writer) *WriterTerminal {
	return &WriterTerminal{w: w}
}

// Echo implements Terminal.Echo.
func (t *WriterTerminal) Echo(b []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.w.Write(b)
}

// RecordingTerminal is a Terminal that remembers everything echoed to it.
// The terminal emulator tests and the driver tests read it back.
type RecordingTerminal struct {
	mu  sync.Mutex
	out []byte
}

// Echo implements Terminal.Echo.
func (t *RecordingTerminal) Echo(b []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.out = append(t.out, b...)
}

// Bytes returns a copy of everything echoed so far.
func (t *RecordingTerminal) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.out...)
}

// Reset discards the recording.
func (t *RecordingTerminal) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.out = nil
}
