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

// Package vfs implements the virtual filesystem: reference-counted vnodes
// with per-variant operation sets, open file state and descriptor tables,
// the pathname resolver, and the file syscalls.
package vfs

import (
	"sync/atomic"

	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/mm"
	"chalkos.dev/chalkos/pkg/sync"
)

// FileSystem is implemented by concrete filesystems mounted under the VFS.
type FileSystem interface {
	// Root returns the filesystem's root directory with a new reference.
	Root() *Vnode

	// ReleaseVnode returns a vnode whose reference count has reached
	// zero to the filesystem.
	ReleaseVnode(vn *Vnode)
}

// VnodeImpl is the operation set of a vnode. Variants (directory, regular
// file, character device) populate the capabilities that apply to them and
// embed the package's default stubs for the rest.
//
// Unless noted otherwise, the vnode's mutex is held across every call.
type VnodeImpl interface {
	// Read reads from the file at pos into buf.
	Read(ctx *Context, pos int64, buf []byte) (int, error)

	// Write writes buf to the file at pos.
	Write(ctx *Context, pos int64, buf []byte) (int, error)

	// Mmap returns a memory object through which the file's pages are
	// mapped. The returned object carries a reference for the caller.
	Mmap() (mm.Mobj, error)

	// Lookup finds name in the directory. The result is returned with a
	// reference and unlocked, except that looking up "." returns the
	// directory itself, which remains locked.
	Lookup(name string) (*Vnode, error)

	// Mknod creates a child with the given mode and device id, returned
	// referenced and unlocked.
	Mknod(name string, mode chalk.FileMode, devid chalk.DevID) (*Vnode, error)

	// Mkdir creates a child directory, returned referenced and unlocked.
	Mkdir(name string) (*Vnode, error)

	// Rmdir removes the empty child directory name.
	Rmdir(name string) error

	// Link makes name an additional hard link to target. target's mutex
	// is also held, by the LockInOrder discipline.
	Link(name string, target *Vnode) error

	// Unlink removes the non-directory entry name.
	Unlink(name string) error

	// Rename moves oldname from this directory to newname in newdir.
	// Both directory mutexes are held.
	Rename(oldname string, newdir *Vnode, newname string) error

	// Readdir fills d with the entry at byte offset pos in the directory
	// stream and returns the number of bytes consumed, 0 at the end.
	Readdir(pos int64, d *chalk.Dirent) (int, error)

	// Stat fills buf.
	Stat(buf *chalk.Stat) error
}

// Vnode is the in-memory handle for an inode, keyed by (filesystem, inode
// id). The mutex protects the length and all operation calls; the
// reference count reaching zero returns the vnode to its filesystem.
type Vnode struct {
	fs    FileSystem
	ino   uint64
	mode  chalk.FileMode
	devid chalk.DevID

	mu   sync.Mutex
	refs atomic.Int64

	// length is the file's byte length. Protected by mu.
	length int64

	// mobj is the page cache for regular files. Immutable after
	// creation.
	mobj mm.Mobj

	impl VnodeImpl
}

// NewVnode returns a vnode with one reference.
func NewVnode(fs FileSystem, ino uint64, mode chalk.FileMode, devid chalk.DevID, impl VnodeImpl) *Vnode {
	vn := &Vnode{
		fs:    fs,
		ino:   ino,
		mode:  mode,
		devid: devid,
		impl:  impl,
	}
	vn.refs.Store(1)
	return vn
}

// SetImpl installs the operation set. Used by filesystems whose impl needs
// a pointer back to the vnode.
func (vn *Vnode) SetImpl(impl VnodeImpl) { vn.impl = impl }

// SetMobj installs the page cache object for a regular file.
func (vn *Vnode) SetMobj(obj mm.Mobj) { vn.mobj = obj }

// Mobj returns the vnode's page cache object, nil for non-regular files.
func (vn *Vnode) Mobj() mm.Mobj { return vn.mobj }

// Ino returns the inode id.
func (vn *Vnode) Ino() uint64 { return vn.ino }

// Mode returns the mode bits.
func (vn *Vnode) Mode() chalk.FileMode { return vn.mode }

// DevID returns the device id for device vnodes.
func (vn *Vnode) DevID() chalk.DevID { return vn.devid }

// FS returns the owning filesystem.
func (vn *Vnode) FS() FileSystem { return vn.fs }

// Impl returns the operation set.
func (vn *Vnode) Impl() VnodeImpl { return vn.impl }

// Lock acquires the vnode mutex.
func (vn *Vnode) Lock() { vn.mu.Lock() }

// Unlock releases the vnode mutex.
func (vn *Vnode) Unlock() { vn.mu.Unlock() }

// Length returns the byte length. The vnode must be locked.
func (vn *Vnode) Length() int64 { return vn.length }

// SetLength updates the byte length. The vnode must be locked.
func (vn *Vnode) SetLength(n int64) { vn.length = n }

// IncRef adds a reference.
func (vn *Vnode) IncRef() {
	if vn.refs.Add(1) <= 1 {
		panic("vnode resurrected after release")
	}
}

// DecRef drops a reference; at zero the vnode is returned to its
// filesystem. The vnode must not be locked.
func (vn *Vnode) DecRef() {
	switch refs := vn.refs.Add(-1); {
	case refs < 0:
		panic("vnode refcount underflow")
	case refs == 0:
		if vn.mobj != nil {
			vn.mobj.DecRef()
		}
		vn.fs.ReleaseVnode(vn)
	}
}

// PutLocked unlocks the vnode and drops a reference.
func (vn *Vnode) PutLocked() {
	vn.Unlock()
	vn.DecRef()
}

// Refs returns the current reference count.
func (vn *Vnode) Refs() int64 { return vn.refs.Load() }

// LockInOrder locks a and b ancestor-first: the vnode with the smaller
// inode id is locked first, and a == b is locked once.
func LockInOrder(a, b *Vnode) {
	switch {
	case a == b:
		a.Lock()
	case a.ino < b.ino:
		a.Lock()
		b.Lock()
	default:
		b.Lock()
		a.Lock()
	}
}

// UnlockInOrder undoes LockInOrder.
func UnlockInOrder(a, b *Vnode) {
	if a == b {
		a.Unlock()
		return
	}
	a.Unlock()
	b.Unlock()
}
