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
	"strings"

	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/errors/kerrno"
	"chalkos.dev/chalkos/pkg/sync"
)

// VFS binds pathnames to vnodes, starting from a mounted root filesystem.
// It also owns the global rename lock serializing cross-directory renames.
type VFS struct {
	root *Vnode

	renameMu sync.Mutex
}

// New returns a VFS rooted at fs's root directory.
func New(fs FileSystem) *VFS {
	return &VFS{root: fs.Root()}
}

// Root returns the root directory with a new reference.
func (v *VFS) Root() *Vnode {
	v.root.IncRef()
	return v.root
}

// Release drops the VFS's root reference on shutdown.
func (v *VFS) Release() {
	v.root.DecRef()
}

// tokenize splits off the next path component, skipping any leading run of
// slashes. It returns the component and the remainder of the path; a
// returned empty token means the path held no further components, whether
// the remainder was exhausted or all slashes.
func tokenize(path string) (token, rest string) {
	path = strings.TrimLeft(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], path[i:]
	}
	return path, ""
}

// Lookup finds name in dir. dir must be locked. A zero-length name returns
// dir itself with a new reference. The result is referenced and unlocked,
// except that "." returns dir, which stays locked.
//
// ENOTDIR if dir is not a directory.
func (v *VFS) Lookup(dir *Vnode, name string) (*Vnode, error) {
	if !dir.Mode().IsDir() {
		return nil, kerrno.ENOTDIR
	}
	if len(name) == 0 {
		dir.IncRef()
		return dir, nil
	}
	return dir.Impl().Lookup(name)
}

// Dir resolves all but the last component of path, starting at the VFS
// root if path is absolute and at base otherwise. It returns the directory
// that would contain the basename, referenced and unlocked, along with the
// basename. Runs of slashes and trailing slashes are ignored; a path of
// only slashes resolves to the starting directory with an empty basename.
//
// EINVAL for an empty path; lookup errors propagate. Locking is
// hand-over-hand: the previous directory is unlocked and released before
// the next is locked, which is safe because the walker always holds a
// reference to the current directory.
func (v *VFS) Dir(base *Vnode, path string) (*Vnode, string, error) {
	if path == "" {
		return nil, "", kerrno.EINVAL
	}
	cur := base
	if path[0] == '/' {
		cur = v.root
	}
	cur.IncRef()

	token, rest := tokenize(path)
	for {
		next, nrest := tokenize(rest)
		if next == "" {
			return cur, token, nil
		}
		cur.Lock()
		found, err := v.Lookup(cur, token)
		if err != nil {
			cur.PutLocked()
			return nil, "", err
		}
		if found == cur {
			// "." came back as the directory itself, locked, with
			// an extra reference.
			cur.DecRef()
			cur.Unlock()
		} else {
			cur.PutLocked()
			cur = found
		}
		token, rest = next, nrest
	}
}

// Open resolves path relative to base, creating the basename via the
// parent's Mknod when O_CREAT is set and the entry is absent. The result
// is returned referenced and unlocked.
//
// ENAMETOOLONG if the basename exceeds NameLen; ENOTDIR if path ends in a
// slash but resolves to a regular file; Dir and Lookup errors propagate.
func (v *VFS) Open(base *Vnode, path string, oflags int, mode chalk.FileMode, devid chalk.DevID) (*Vnode, error) {
	if strings.Trim(path, "/") == "" && path != "" {
		return v.Root(), nil
	}
	parent, name, err := v.Dir(base, path)
	if err != nil {
		return nil, err
	}
	if len(name) > chalk.NameLen {
		parent.DecRef()
		return nil, kerrno.ENAMETOOLONG
	}
	parent.Lock()
	vn, err := v.Lookup(parent, name)
	if err == kerrno.ENOENT && oflags&chalk.OCreat != 0 {
		vn, err = parent.Impl().Mknod(name, mode, devid)
		parent.PutLocked()
		return vn, err
	}
	if err != nil {
		parent.PutLocked()
		return nil, err
	}
	if vn == parent {
		parent.DecRef()
		parent.Unlock()
	} else {
		parent.PutLocked()
	}
	if !vn.Mode().IsDir() && strings.HasSuffix(path, "/") {
		vn.DecRef()
		return nil, kerrno.ENOTDIR
	}
	return vn, nil
}

// Resolve is Open with O_RDONLY and no creation.
func (v *VFS) Resolve(base *Vnode, path string) (*Vnode, error) {
	return v.Open(base, path, chalk.ORdonly, 0, 0)
}
