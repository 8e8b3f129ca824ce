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

// Package tty implements the terminal driver: a line discipline cooking
// keyboard input into lines, and the TTY character device that delivers
// them to readers through the VFS.
package tty

import (
	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/sync"
	"chalkos.dev/chalkos/pkg/waiter"
)

// Terminal is the echo sink of a line discipline: the screen the user is
// typing at.
type Terminal interface {
	// Echo writes bytes to the terminal.
	Echo(b []byte)
}

// Ldisc is a line discipline: a fixed circular byte buffer with three
// cursors. Bytes in [tail, cooked) are committed lines available to
// readers; bytes in [cooked, head) are the line still being edited. The
// writer keeps one slot in reserve so a newline can always land; full is
// set only when a newline commits the buffer's final slot.
//
// Cursor invariant: tail <=c cooked <=c head in circular order on the
// buffer size.
type Ldisc struct {
	mu sync.Mutex

	buf    [chalk.LdiscBufferSize]byte
	tail   int
	cooked int
	head   int
	full   bool

	readQueue waiter.Queue

	term Terminal
}

// NewLdisc returns a line discipline echoing to term, which may be nil.
func NewLdisc(term Terminal) *Ldisc {
	return &Ldisc{term: term}
}

func inc(x int) int {
	if x == chalk.LdiscBufferSize-1 {
		return 0
	}
	return x + 1
}

func dec(x int) int {
	if x == 0 {
		return chalk.LdiscBufferSize - 1
	}
	return x - 1
}

func (l *Ldisc) echo(b []byte) {
	if l.term != nil {
		l.term.Echo(b)
	}
}

// KeyPressed feeds one input character from the keyboard. Printable
// characters are stored and echoed; newline and EOT commit the current
// line and wake readers; ETX discards the uncooked line, committing a
// blank one; backspace erases within the uncooked line. When only the
// reserved newline slot remains, anything but a newline, ETX, or
// backspace is discarded.
func (l *Ldisc) KeyPressed(c byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.full && c != chalk.ETX && c != chalk.BS {
		return
	}
	if l.head == dec(l.tail) {
		switch c {
		case '\n':
			l.full = true
		case chalk.BS, chalk.ETX:
		default:
			return
		}
	}

	switch c {
	case '\n':
		l.buf[l.head] = c
		l.head = inc(l.head)
		l.cooked = l.head
		l.readQueue.Notify(waiter.EventIn)
		l.echo([]byte{'\n'})
	case chalk.EOT:
		l.buf[l.head] = c
		l.head = inc(l.head)
		l.cooked = l.head
		l.readQueue.Notify(waiter.EventIn)
	case chalk.ETX:
		// Turn the uncooked input into one cooked blank line.
		l.head = inc(l.cooked)
		l.buf[dec(l.head)] = '\n'
		l.cooked = l.head
		l.readQueue.Notify(waiter.EventIn)
	case chalk.BS:
		if l.head == l.cooked {
			return
		}
		l.head = dec(l.head)
		l.echo([]byte{chalk.BS})
	default:
		l.buf[l.head] = c
		l.head = inc(l.head)
		l.echo([]byte{c})
	}
}

// WaitRead blocks until cooked data is available, sleeping on the read
// queue. The sleep is cancellable; on cancellation EINTR propagates
// without disturbing the buffer.
func (l *Ldisc) WaitRead(cancel <-chan struct{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waitReadLocked(cancel)
}

func (l *Ldisc) waitReadLocked(cancel <-chan struct{}) error {
	for l.cooked == l.tail {
		if l.full {
			return nil
		}
		if err := l.readQueue.CancellableSleep(&l.mu, cancel); err != nil {
			return err
		}
	}
	return nil
}

// Read copies cooked bytes into buf: up to len(buf) bytes, stopping after
// a copied newline, or at an EOT, which is consumed but excluded from the
// count. Returns the number of bytes read.
func (l *Ldisc) Read(buf []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked(buf)
}

func (l *Ldisc) readLocked(buf []byte) int {
	it := l.tail
	n := 0
	for it != l.cooked || l.full {
		c := l.buf[it]
		if c == chalk.EOT {
			l.tail = inc(it)
			l.full = false
			return n
		}
		if n == len(buf) {
			l.tail = it
			return n
		}
		buf[n] = c
		n++
		it = inc(it)
		if l.full {
			l.full = false
		}
		if c == '\n' {
			break
		}
	}
	l.tail = it
	return n
}

// CurrentLineRaw copies the uncooked portion of the buffer, [cooked,
// head), into s, returning the count. The terminal emulator uses it for
// screen redraw.
func (l *Ldisc) CurrentLineRaw(s []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for it := l.cooked; it != l.head && n < len(s); it = inc(it) {
		s[n] = l.buf[it]
		n++
	}
	return n
}

// HasCooked returns whether a reader would not block.
func (l *Ldisc) HasCooked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cooked != l.tail || l.full
}
