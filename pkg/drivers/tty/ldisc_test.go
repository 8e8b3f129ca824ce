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
	"bytes"
	"testing"
	"time"

	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/errors/kerrno"
)

func feed(l *Ldisc, s string) {
	for i := 0; i < len(s); i++ {
		l.KeyPressed(s[i])
	}
}

// circularLE returns whether a <= b <= c in circular order on the buffer
// size.
func circularLE(a, b, c int) bool {
	n := chalk.LdiscBufferSize
	return (b-a+n)%n <= (c-a+n)%n
}

func checkCursorInvariant(t *testing.T, l *Ldisc) {
	t.Helper()
	if !circularLE(l.tail, l.cooked, l.head) {
		t.Fatalf("cursor invariant violated: tail=%d cooked=%d head=%d", l.tail, l.cooked, l.head)
	}
}

func TestNewlineCommit(t *testing.T) {
	term := &RecordingTerminal{}
	l := NewLdisc(term)

	woke := make(chan error, 1)
	go func() {
		woke <- l.WaitRead(nil)
	}()
	// Give the reader time to block.
	time.Sleep(10 * time.Millisecond)

	feed(l, "t\n")
	select {
	case err := <-woke:
		if err != nil {
			t.Fatalf("WaitRead returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader not woken by newline")
	}

	checkCursorInvariant(t, l)
	if l.cooked != l.head {
		t.Errorf("cooked=%d head=%d, want equal after newline", l.cooked, l.head)
	}
	if l.head != l.tail+2 {
		t.Errorf("head=%d, want tail+2=%d", l.head, l.tail+2)
	}

	buf := make([]byte, 10)
	if n := l.Read(buf); n != 2 || string(buf[:2]) != "t\n" {
		t.Errorf("Read = %d %q, want 2 %q", n, buf[:2], "t\n")
	}
	if got := term.Bytes(); !bytes.Contains(got, []byte("t\n")) {
		t.Errorf("echo = %q, want to contain %q", got, "t\n")
	}
}

func TestBackspace(t *testing.T) {
	term := &RecordingTerminal{}
	l := NewLdisc(term)
	feed(l, "ab")
	l.KeyPressed(chalk.BS)
	l.KeyPressed('\n')

	buf := make([]byte, 10)
	if n := l.Read(buf); n != 2 || string(buf[:2]) != "a\n" {
		t.Errorf("Read = %d %q, want 2 %q", n, buf[:2], "a\n")
	}
	if got := term.Bytes(); !bytes.Contains(got, []byte{chalk.BS}) {
		t.Errorf("echo = %q, want a backspace", got)
	}
}

func TestBackspaceAtLineStart(t *testing.T) {
	l := NewLdisc(nil)
	l.KeyPressed(chalk.BS)
	if l.head != l.cooked {
		t.Errorf("head moved on backspace with nothing to erase")
	}
	checkCursorInvariant(t, l)
}

func TestETX(t *testing.T) {
	l := NewLdisc(nil)
	feed(l, "ab")
	l.KeyPressed(chalk.ETX)
	checkCursorInvariant(t, l)

	// The pre-ETX bytes are discarded; the reader sees one blank line.
	buf := make([]byte, 10)
	if n := l.Read(buf); n != 1 || buf[0] != '\n' {
		t.Fatalf("Read after ETX = %d %q, want 1 %q", n, buf[:n], "\n")
	}

	feed(l, "x\n")
	if n := l.Read(buf); n != 2 || string(buf[:2]) != "x\n" {
		t.Errorf("Read = %d %q, want 2 %q", n, buf[:2], "x\n")
	}
}

func TestEOT(t *testing.T) {
	l := NewLdisc(nil)
	feed(l, "abc")
	l.KeyPressed(chalk.EOT)

	buf := make([]byte, 100)
	if n := l.Read(buf); n != 3 || string(buf[:3]) != "abc" {
		t.Errorf("Read = %d %q, want 3 %q", n, buf[:3], "abc")
	}
	// The EOT was consumed along with the line.
	if l.HasCooked() {
		t.Errorf("cooked data remains after EOT consumed")
	}
	checkCursorInvariant(t, l)
}

func TestOverflowReservesNewlineSlot(t *testing.T) {
	l := NewLdisc(nil)
	for i := 0; i < chalk.LdiscBufferSize*4; i++ {
		l.KeyPressed('x')
	}
	if want := chalk.LdiscBufferSize - 1; l.head != want {
		t.Errorf("head = %d, want %d", l.head, want)
	}
	if l.buf[chalk.LdiscBufferSize-1] != 0 {
		t.Errorf("reserved slot was written: %q", l.buf[chalk.LdiscBufferSize-1])
	}
	checkCursorInvariant(t, l)

	// The newline still lands, filling the buffer completely.
	l.KeyPressed('\n')
	if !l.full {
		t.Fatal("full not set when newline takes the last slot")
	}
	if l.head != l.tail || l.cooked != l.head {
		t.Errorf("tail=%d cooked=%d head=%d, want all equal when full", l.tail, l.cooked, l.head)
	}

	buf := make([]byte, 2*chalk.LdiscBufferSize)
	n := l.Read(buf)
	if want := chalk.LdiscBufferSize; n != want {
		t.Errorf("Read = %d, want %d", n, want)
	}
	if buf[n-1] != '\n' {
		t.Errorf("last byte = %q, want newline", buf[n-1])
	}
	if l.full {
		t.Error("full not cleared by read")
	}
}

func TestWrapAround(t *testing.T) {
	l := NewLdisc(nil)
	start := chalk.LdiscBufferSize - 10
	l.tail = start
	l.cooked = start
	l.head = start

	feed(l, "abcdefghijklmnopqrst") // 20 bytes, wraps past zero
	if want := (start + 20) % chalk.LdiscBufferSize; l.head != want {
		t.Errorf("head = %d, want %d", l.head, want)
	}
	checkCursorInvariant(t, l)

	raw := make([]byte, chalk.LdiscBufferSize)
	if n := l.CurrentLineRaw(raw); n != 20 || string(raw[:n]) != "abcdefghijklmnopqrst" {
		t.Errorf("CurrentLineRaw = %d %q", n, raw[:n])
	}

	l.KeyPressed('\n')
	buf := make([]byte, 64)
	if n := l.Read(buf); n != 21 || string(buf[:n]) != "abcdefghijklmnopqrst\n" {
		t.Errorf("Read = %d %q", n, buf[:n])
	}
	checkCursorInvariant(t, l)
}

func TestCancellableWait(t *testing.T) {
	l := NewLdisc(nil)
	feed(l, "partial") // uncooked, not readable

	cancel := make(chan struct{})
	res := make(chan error, 1)
	go func() {
		res <- l.WaitRead(cancel)
	}()
	time.Sleep(10 * time.Millisecond)
	close(cancel)

	select {
	case err := <-res:
		if err != kerrno.EINTR {
			t.Fatalf("WaitRead = %v, want EINTR", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled sleeper did not return")
	}

	// Buffer state is intact: the uncooked line survives cancellation.
	raw := make([]byte, 64)
	if n := l.CurrentLineRaw(raw); string(raw[:n]) != "partial" {
		t.Errorf("CurrentLineRaw = %q, want %q", raw[:n], "partial")
	}
}

func TestReadStopsAtCount(t *testing.T) {
	l := NewLdisc(nil)
	feed(l, "abcdef\n")
	buf := make([]byte, 3)
	if n := l.Read(buf); n != 3 || string(buf) != "abc" {
		t.Fatalf("Read = %d %q, want 3 %q", n, buf, "abc")
	}
	rest := make([]byte, 10)
	if n := l.Read(rest); n != 4 || string(rest[:4]) != "def\n" {
		t.Errorf("Read = %d %q, want 4 %q", n, rest[:4], "def\n")
	}
}

func TestMultipleReadersDisjointLines(t *testing.T) {
	l := NewLdisc(nil)
	feed(l, "one\ntwo\n")
	a := make([]byte, 16)
	b := make([]byte, 16)
	na := l.Read(a)
	nb := l.Read(b)
	if string(a[:na]) != "one\n" || string(b[:nb]) != "two\n" {
		t.Errorf("reads = %q, %q; want %q, %q", a[:na], b[:nb], "one\n", "two\n")
	}
}
