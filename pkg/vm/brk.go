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
)

// Brk moves the process break to addr and returns the new break. The heap
// is at most one private anonymous vmarea spanning the pages from the
// aligned-up starting break to the aligned-up addr; it is created, grown,
// or shrunk as addr moves. addr zero queries the current break. The
// starting break need not be page-aligned: its partial page belongs to the
// data region, so the heap area begins at the next page boundary.
//
// ENOMEM when addr lies below the starting break or beyond the user
// address space, or when growth would collide with another mapping.
func Brk(m *VMMap, startBrk, curBrk, addr uintptr) (uintptr, error) {
	if addr == 0 {
		return curBrk, nil
	}
	if addr > chalk.UserMemHigh || addr < startBrk {
		return 0, kerrno.ENOMEM
	}

	lopage := chalk.AddrToPN(chalk.PageAlignUp(startBrk))
	endpage := chalk.AddrToPN(chalk.PageAlignUp(addr))

	if endpage <= lopage {
		// The break stays within the data region's partial page; any
		// previously created heap pages are released.
		if heap := m.Lookup(lopage); heap != nil {
			if err := m.Remove(lopage, heap.End-lopage); err != nil {
				return 0, err
			}
		}
		return addr, nil
	}

	heap := m.Lookup(lopage)
	switch {
	case heap == nil:
		if !m.IsRangeEmpty(lopage, endpage-lopage) {
			return 0, kerrno.ENOMEM
		}
		if _, err := m.Map(nil, lopage, endpage-lopage,
			chalk.ProtRead|chalk.ProtWrite,
			chalk.MapPrivate|chalk.MapAnon|chalk.MapFixed,
			0, DirHiLo); err != nil {
			return 0, err
		}
	case endpage > heap.End:
		if !m.IsRangeEmpty(heap.End, endpage-heap.End) {
			return 0, kerrno.ENOMEM
		}
		grow(m, heap, endpage)
	case endpage < heap.End:
		if err := m.Remove(endpage, heap.End-endpage); err != nil {
			return 0, err
		}
	}
	return addr, nil
}

func grow(m *VMMap, heap *VMArea, endpage uint64) {
	m.mu.Lock()
	heap.End = endpage
	m.mu.Unlock()
}
