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
	"chalkos.dev/chalkos/pkg/sync"
)

// CharDevice is a character device driver. A device vnode delegates its
// data operations to the driver registered under its device id.
type CharDevice interface {
	// Read reads from the device. Blocking devices honor ctx.Cancel.
	Read(ctx *Context, pos int64, buf []byte) (int, error)

	// Write writes to the device.
	Write(ctx *Context, pos int64, buf []byte) (int, error)
}

// MappableCharDevice is a CharDevice whose pages can be memory-mapped.
type MappableCharDevice interface {
	CharDevice

	// Mmap returns the memory object backing a new mapping of the
	// device, referenced for the caller.
	Mmap() (mm.Mobj, error)
}

var chardevs struct {
	mu   sync.Mutex
	devs map[chalk.DevID]CharDevice
}

// RegisterCharDevice registers dev under id. A later registration
// replaces an earlier one; the console TTY is rebound this way at boot.
func RegisterCharDevice(id chalk.DevID, dev CharDevice) {
	chardevs.mu.Lock()
	defer chardevs.mu.Unlock()
	if chardevs.devs == nil {
		chardevs.devs = make(map[chalk.DevID]CharDevice)
	}
	chardevs.devs[id] = dev
}

// GetCharDevice returns the driver registered under id, or nil.
func GetCharDevice(id chalk.DevID) CharDevice {
	chardevs.mu.Lock()
	defer chardevs.mu.Unlock()
	return chardevs.devs[id]
}

// CharDeviceVnode is the operation set of a character-device vnode. It
// holds the resolved driver and forwards data operations to it.
type CharDeviceVnode struct {
	NotDirectoryVnode

	dev CharDevice
}

// NewCharDeviceVnode resolves devid in the registry. ENODEV if no driver
// is registered.
func NewCharDeviceVnode(devid chalk.DevID) (*CharDeviceVnode, error) {
	dev := GetCharDevice(devid)
	if dev == nil {
		return nil, kerrno.ENODEV
	}
	return &CharDeviceVnode{dev: dev}, nil
}

// Read implements VnodeImpl.Read.
func (d *CharDeviceVnode) Read(ctx *Context, pos int64, buf []byte) (int, error) {
	return d.dev.Read(ctx, pos, buf)
}

// Write implements VnodeImpl.Write.
func (d *CharDeviceVnode) Write(ctx *Context, pos int64, buf []byte) (int, error) {
	return d.dev.Write(ctx, pos, buf)
}

// Mmap implements VnodeImpl.Mmap. Only devices that advertise mappability
// support it.
func (d *CharDeviceVnode) Mmap() (mm.Mobj, error) {
	if m, ok := d.dev.(MappableCharDevice); ok {
		return m.Mmap()
	}
	return nil, kerrno.ENODEV
}

// Stat implements VnodeImpl.Stat for device vnodes lacking a filesystem
// stat of their own; concrete filesystems usually override it.
func (d *CharDeviceVnode) Stat(buf *chalk.Stat) error {
	return kerrno.EINVAL
}
