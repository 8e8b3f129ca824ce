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
	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/vfs"
)

// TTY is a terminal character device. Keyboard input feeds its line
// discipline; reads through the VFS consume cooked lines; writes go to
// the terminal.
type TTY struct {
	ldisc *Ldisc
	term  Terminal
}

// NewTTY returns a TTY echoing and writing to term.
func NewTTY(term Terminal) *TTY {
	return &TTY{ldisc: NewLdisc(term), term: term}
}

// Register registers the TTY in the VFS device registry under id.
func (t *TTY) Register(id chalk.DevID) {
	vfs.RegisterCharDevice(id, t)
}

// Ldisc returns the TTY's line discipline, for the keyboard ISR.
func (t *TTY) Ldisc() *Ldisc { return t.ldisc }

// InputByte feeds one keyboard byte to the line discipline, as the
// keyboard interrupt handler would.
func (t *TTY) InputByte(c byte) {
	t.ldisc.KeyPressed(c)
}

// Read implements vfs.CharDevice.Read: block until a cooked line is
// available, then consume up to len(buf) bytes of it. The position is
// ignored; terminals have no seek semantics.
func (t *TTY) Read(ctx *vfs.Context, pos int64, buf []byte) (int, error) {
	l := t.ldisc
	l.mu.Lock()
	defer l.mu.Unlock()
	var cancel <-chan struct{}
	if ctx != nil {
		cancel = ctx.Cancel
	}
	if err := l.waitReadLocked(cancel); err != nil {
		return 0, err
	}
	return l.readLocked(buf), nil
}

// Write implements vfs.CharDevice.Write: bytes go straight to the
// terminal.
func (t *TTY) Write(ctx *vfs.Context, pos int64, buf []byte) (int, error) {
	if t.term != nil {
		t.term.Echo(buf)
	}
	return len(buf), nil
}
