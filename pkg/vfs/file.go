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

package vfs

import (
	"sync/atomic"

	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/errors/kerrno"
	"chalkos.dev/chalkos/pkg/sync"
)

// FMode are the access-mode flags of an open file.
type FMode int

// Access modes.
const (
	FModeRead FMode = 1 << iota
	FModeWrite
	FModeAppend
)

// File is the state shared by all descriptors that refer to one open of a
// vnode: the vnode, the byte position, and the access mode.
type File struct {
	vnode *Vnode

	// Pos is the file position. It is updated by the syscall layer only
	// on success, by exactly the number of bytes reported.
	Pos int64

	// Mode is the access mode set at open.
	Mode FMode

	refs atomic.Int64
}

// NewFile returns a File with one reference, taking ownership of the
// caller's reference on vn.
func NewFile(vn *Vnode, mode FMode) *File {
	f := &File{vnode: vn, Mode: mode}
	f.refs.Store(1)
	return f
}

// Vnode returns the file's vnode, borrowed.
func (f *File) Vnode() *Vnode { return f.vnode }

// IncRef adds a reference; descriptors created by dup share the file.
func (f *File) IncRef() {
	if f.refs.Add(1) <= 1 {
		panic("file resurrected after close")
	}
}

// DecRef drops a reference; at zero the vnode reference is released.
func (f *File) DecRef() {
	switch refs := f.refs.Add(-1); {
	case refs < 0:
		panic("file refcount underflow")
	case refs == 0:
		f.vnode.DecRef()
	}
}

// FDTable is a process's descriptor table: a fixed-size mapping from
// descriptor to open file, with unused slots empty.
type FDTable struct {
	mu    sync.Mutex
	files [chalk.NFiles]*File
}

// NewFDTable returns an empty descriptor table.
func NewFDTable() *FDTable {
	return &FDTable{}
}

// Get returns the file at fd with a new reference, or nil if fd is out of
// range or empty.
func (t *FDTable) Get(fd int) *File {
	if fd < 0 || fd >= chalk.NFiles {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	f := t.files[fd]
	if f != nil {
		f.IncRef()
	}
	return f
}

// Install places f in slot fd, taking ownership of the caller's reference.
// Any previous file in the slot is released.
func (t *FDTable) Install(fd int, f *File) {
	t.mu.Lock()
	old := t.files[fd]
	t.files[fd] = f
	t.mu.Unlock()
	if old != nil {
		old.DecRef()
	}
}

// NewFD allocates the lowest free descriptor and installs f in it, taking
// ownership of the caller's reference. Returns EMFILE-like ENOMEM when the
// table is full.
func (t *FDTable) NewFD(f *File) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd := range t.files {
		if t.files[fd] == nil {
			t.files[fd] = f
			return fd, nil
		}
	}
	return 0, kerrno.ENOMEM
}

// Remove clears slot fd and returns the file that occupied it, ownership
// transferred to the caller. Returns nil if the slot was empty or out of
// range.
func (t *FDTable) Remove(fd int) *File {
	if fd < 0 || fd >= chalk.NFiles {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	f := t.files[fd]
	t.files[fd] = nil
	return f
}

// Fork returns a copy of the table sharing every open file.
func (t *FDTable) Fork() *FDTable {
	nt := NewFDTable()
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, f := range t.files {
		if f != nil {
			f.IncRef()
			nt.files[fd] = f
		}
	}
	return nt
}

// CloseAll releases every open file, as on process exit.
func (t *FDTable) CloseAll() {
	t.mu.Lock()
	files := t.files
	t.files = [chalk.NFiles]*File{}
	t.mu.Unlock()
	for _, f := range files {
		if f != nil {
			f.DecRef()
		}
	}
}

// FSContext is a process's filesystem context: its current working
// directory.
type FSContext struct {
	mu  sync.Mutex
	cwd *Vnode
}

// NewFSContext returns a context rooted at cwd, taking ownership of the
// caller's reference.
func NewFSContext(cwd *Vnode) *FSContext {
	return &FSContext{cwd: cwd}
}

// Cwd returns the working directory with a new reference.
func (c *FSContext) Cwd() *Vnode {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cwd.IncRef()
	return c.cwd
}

// SetCwd swaps the working directory, taking ownership of the caller's
// reference on vn and releasing the previous directory.
func (c *FSContext) SetCwd(vn *Vnode) {
	c.mu.Lock()
	old := c.cwd
	c.cwd = vn
	c.mu.Unlock()
	old.DecRef()
}

// Fork returns a context sharing the same working directory, with its own
// reference.
func (c *FSContext) Fork() *FSContext {
	return NewFSContext(c.Cwd())
}

// Release drops the context's directory reference on process exit.
func (c *FSContext) Release() {
	c.mu.Lock()
	cwd := c.cwd
	c.cwd = nil
	c.mu.Unlock()
	if cwd != nil {
		cwd.DecRef()
	}
}

// Context carries the per-thread state the syscall layer needs: the
// descriptor table, the filesystem context, and the thread's cancellation
// channel, which fires when the thread is cancelled while sleeping.
type Context struct {
	Cancel <-chan struct{}
	Files  *FDTable
	FS     *FSContext
}
