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

package vm

import (
	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/errors/kerrno"
	"chalkos.dev/chalkos/pkg/vfs"
)

// Mmap implements the mmap(2) syscall over an address space: validate,
// then place the mapping via VMMap.Map and flush stale translations for
// the chosen range. f is nil for anonymous mappings. Returns the start
// address of the mapped area.
//
// EINVAL for a non-positive length, unaligned offset, unaligned address
// with MapFixed, or flags naming neither MapPrivate nor MapShared; EBADF
// when a file mapping lacks an open file; EACCES when the file is not open
// for reading, a shared writable mapping lacks write mode, or the file is
// append-only and the mapping writable.
func Mmap(m *VMMap, f *vfs.File, addr uintptr, length int, prot, flags int, off int64) (uintptr, error) {
	if length <= 0 || off < 0 {
		return 0, kerrno.EINVAL
	}
	if flags&(chalk.MapPrivate|chalk.MapShared) == 0 {
		return 0, kerrno.EINVAL
	}
	if !chalk.PageAligned(uintptr(off)) {
		return 0, kerrno.EINVAL
	}
	if flags&chalk.MapFixed != 0 && !chalk.PageAligned(addr) {
		return 0, kerrno.EINVAL
	}

	var file *vfs.Vnode
	if flags&chalk.MapAnon == 0 {
		if f == nil {
			return 0, kerrno.EBADF
		}
		if f.Mode&vfs.FModeRead == 0 {
			return 0, kerrno.EACCES
		}
		if f.Mode&vfs.FModeAppend != 0 && prot&chalk.ProtWrite != 0 {
			return 0, kerrno.EACCES
		}
		if flags&chalk.MapShared != 0 && prot&chalk.ProtWrite != 0 && f.Mode&vfs.FModeWrite == 0 {
			return 0, kerrno.EACCES
		}
		file = f.Vnode()
	}

	lopage := chalk.AddrToPN(addr)
	npages := chalk.AddrToPN(chalk.PageAlignUp(addr+uintptr(length))) - lopage
	area, err := m.Map(file, lopage, npages, prot, flags, off, DirHiLo)
	if err != nil {
		return 0, err
	}
	m.pt.FlushTLBRange(area.Start, area.End)
	return chalk.PNToAddr(area.Start), nil
}

// Munmap implements the munmap(2) syscall.
//
// EINVAL for an unaligned address, zero length, or a range outside the
// user address space.
func Munmap(m *VMMap, addr uintptr, length int) error {
	if !chalk.PageAligned(addr) || length <= 0 {
		return kerrno.EINVAL
	}
	end := addr + uintptr(length)
	if addr < chalk.UserMemLow || end > chalk.UserMemHigh || end < addr {
		return kerrno.EINVAL
	}
	lopage := chalk.AddrToPN(addr)
	npages := chalk.AddrToPN(chalk.PageAlignUp(end)) - lopage
	return m.Remove(lopage, npages)
}
