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
	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/errors/kerrno"
	"chalkos.dev/chalkos/pkg/mm"
)

// NotDirectoryVnode provides the directory operations for vnode variants
// that are not directories. Embed it to fill the unsupported capabilities.
type NotDirectoryVnode struct{}

// Lookup implements VnodeImpl.Lookup.
func (NotDirectoryVnode) Lookup(string) (*Vnode, error) { return nil, kerrno.ENOTDIR }

// Mknod implements VnodeImpl.Mknod.
func (NotDirectoryVnode) Mknod(string, chalk.FileMode, chalk.DevID) (*Vnode, error) {
	return nil, kerrno.ENOTDIR
}

// Mkdir implements VnodeImpl.Mkdir.
func (NotDirectoryVnode) Mkdir(string) (*Vnode, error) { return nil, kerrno.ENOTDIR }

// Rmdir implements VnodeImpl.Rmdir.
func (NotDirectoryVnode) Rmdir(string) error { return kerrno.ENOTDIR }

// Link implements VnodeImpl.Link.
func (NotDirectoryVnode) Link(string, *Vnode) error { return kerrno.ENOTDIR }

// Unlink implements VnodeImpl.Unlink.
func (NotDirectoryVnode) Unlink(string) error { return kerrno.ENOTDIR }

// Rename implements VnodeImpl.Rename.
func (NotDirectoryVnode) Rename(string, *Vnode, string) error { return kerrno.ENOTDIR }

// Readdir implements VnodeImpl.Readdir.
func (NotDirectoryVnode) Readdir(int64, *chalk.Dirent) (int, error) { return 0, kerrno.ENOTDIR }

// DirectoryVnode provides the data operations for directory vnodes, which
// cannot be read or written as byte streams.
type DirectoryVnode struct{}

// Read implements VnodeImpl.Read.
func (DirectoryVnode) Read(*Context, int64, []byte) (int, error) { return 0, kerrno.EISDIR }

// Write implements VnodeImpl.Write.
func (DirectoryVnode) Write(*Context, int64, []byte) (int, error) { return 0, kerrno.EISDIR }

// NoMmapVnode is embedded by variants whose pages cannot be mapped.
type NoMmapVnode struct{}

// Mmap implements VnodeImpl.Mmap.
func (NoMmapVnode) Mmap() (mm.Mobj, error) { return nil, kerrno.ENODEV }
