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

// Package memdev provides the null and zero character devices, the
// reference drivers for the VFS device path.
package memdev

import (
	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/mm"
	"chalkos.dev/chalkos/pkg/vfs"
)

// Null is the null device: reads return nothing, writes succeed whole.
// It exposes no mmap.
type Null struct{}

// Read implements vfs.CharDevice.Read.
func (Null) Read(ctx *vfs.Context, pos int64, buf []byte) (int, error) {
	return 0, nil
}

// Write implements vfs.CharDevice.Write.
func (Null) Write(ctx *vfs.Context, pos int64, buf []byte) (int, error) {
	return len(buf), nil
}

// Zero is the zero device: reads fill with zero bytes, writes succeed
// whole, and mappings are backed by fresh anonymous memory.
type Zero struct{}

// Read implements vfs.CharDevice.Read.
func (Zero) Read(ctx *vfs.Context, pos int64, buf []byte) (int, error) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}

// Write implements vfs.CharDevice.Write.
func (Zero) Write(ctx *vfs.Context, pos int64, buf []byte) (int, error) {
	return len(buf), nil
}

// Mmap implements vfs.MappableCharDevice.Mmap. A mapping of the zero
// device cannot share the device's (nonexistent) pages, so each mapping
// gets its own anonymous object.
func (Zero) Mmap() (mm.Mobj, error) {
	obj := mm.NewAnon()
	obj.Unlock()
	return obj, nil
}

// Register registers the null and zero devices in the VFS device
// registry.
func Register() {
	vfs.RegisterCharDevice(chalk.MemNullDevID, Null{})
	vfs.RegisterCharDevice(chalk.MemZeroDevID, Zero{})
}
