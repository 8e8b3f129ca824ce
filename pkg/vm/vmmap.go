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

// Package vm implements per-process address spaces: ordered maps of
// vmareas over memory objects, the page-fault resolver that materializes
// translations from them, the heap break, and the mmap entry points.
package vm

import (
	"fmt"
	"strings"

	"github.com/google/btree"

	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/errors/kerrno"
	"chalkos.dev/chalkos/pkg/log"
	"chalkos.dev/chalkos/pkg/mm"
	"chalkos.dev/chalkos/pkg/sync"
	"chalkos.dev/chalkos/pkg/vfs"
)

// Direction selects where find_range places a new mapping.
type Direction int

// Search directions.
const (
	// DirLoHi takes the lowest fitting gap.
	DirLoHi Direction = iota

	// DirHiLo takes the highest fitting gap.
	DirHiLo
)

// VMArea is a half-open page interval [Start, End) bound to a memory
// object: page pn of the area maps to object page Off + (pn - Start).
// Areas within one map are disjoint and ordered by Start.
type VMArea struct {
	Start uint64
	End   uint64
	Off   uint64

	Prot  int
	Flags int

	// Obj is the backing object; the area owns one reference.
	Obj mm.Mobj
}

func (a *VMArea) contains(vfn uint64) bool {
	return a.Start <= vfn && vfn < a.End
}

// objPage translates an area page number to an object page number.
func (a *VMArea) objPage(vfn uint64) uint64 {
	return a.Off + (vfn - a.Start)
}

// VMMap is an ordered set of vmareas plus the pagetable translations are
// installed into. Created at process creation, cloned at fork, destroyed
// after thread exit.
type VMMap struct {
	mu    sync.Mutex
	areas *btree.BTreeG[*VMArea]
	pt    *mm.PageTable
}

func newAreaTree() *btree.BTreeG[*VMArea] {
	return btree.NewG[*VMArea](8, func(a, b *VMArea) bool { return a.Start < b.Start })
}

// NewVMMap returns an empty address-space map over pt.
func NewVMMap(pt *mm.PageTable) *VMMap {
	return &VMMap{areas: newAreaTree(), pt: pt}
}

// PageTable returns the map's pagetable.
func (m *VMMap) PageTable() *mm.PageTable { return m.pt }

// Destroy releases every area and its object reference.
func (m *VMMap) Destroy() {
	m.mu.Lock()
	var areas []*VMArea
	m.areas.Ascend(func(a *VMArea) bool { areas = append(areas, a); return true })
	m.areas = newAreaTree()
	m.mu.Unlock()
	for _, a := range areas {
		a.Obj.DecRef()
	}
}

// Insert adds an area, asserting it does not overlap an existing one.
func (m *VMMap) Insert(a *VMArea) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(a)
}

func (m *VMMap) insertLocked(a *VMArea) {
	if a.Start >= a.End {
		panic("inserting empty vmarea")
	}
	if !m.rangeEmptyLocked(a.Start, a.End-a.Start) {
		panic(fmt.Sprintf("vmarea [%d, %d) overlaps an existing mapping", a.Start, a.End))
	}
	m.areas.ReplaceOrInsert(a)
}

// Lookup returns the area containing page number vfn, or nil.
func (m *VMMap) Lookup(vfn uint64) *VMArea {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(vfn)
}

func (m *VMMap) lookupLocked(vfn uint64) *VMArea {
	var found *VMArea
	m.areas.DescendLessOrEqual(&VMArea{Start: vfn}, func(a *VMArea) bool {
		if a.contains(vfn) {
			found = a
		}
		return false
	})
	return found
}

// IsRangeEmpty returns whether no area intersects [startvfn, startvfn+n).
func (m *VMMap) IsRangeEmpty(startvfn, n uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rangeEmptyLocked(startvfn, n)
}

func (m *VMMap) rangeEmptyLocked(startvfn, n uint64) bool {
	end := startvfn + n
	empty := true
	m.areas.AscendGreaterOrEqual(&VMArea{Start: 0}, func(a *VMArea) bool {
		if a.Start >= end {
			return false
		}
		if a.End > startvfn {
			empty = false
			return false
		}
		return true
	})
	return empty
}

// FindRange finds npages consecutive free pages within the user page
// range, first-fit from the bottom (DirLoHi) or the top (DirHiLo).
// Returns -1 when no such gap exists.
func (m *VMMap) FindRange(npages uint64, dir Direction) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	type gap struct{ lo, hi uint64 }
	var gaps []gap
	prev := chalk.UserMemLowPN
	m.areas.Ascend(func(a *VMArea) bool {
		lo, hi := a.Start, a.End
		if hi <= chalk.UserMemLowPN || lo >= chalk.UserMemHighPN {
			return true
		}
		if lo > prev {
			gaps = append(gaps, gap{prev, lo})
		}
		if hi > prev {
			prev = hi
		}
		return true
	})
	if prev < chalk.UserMemHighPN {
		gaps = append(gaps, gap{prev, chalk.UserMemHighPN})
	}

	if dir == DirLoHi {
		for _, g := range gaps {
			if g.hi-g.lo >= npages {
				return int64(g.lo)
			}
		}
		return -1
	}
	for i := len(gaps) - 1; i >= 0; i-- {
		if g := gaps[i]; g.hi-g.lo >= npages {
			return int64(g.hi - npages)
		}
	}
	return -1
}

// Map inserts a mapping of npages pages. With lopage zero a free range is
// chosen in the given direction; otherwise the mapping is placed at
// lopage, and with MapFixed any overlapping mappings are removed first.
// A nil file maps anonymous memory; otherwise the vnode's mmap operation
// supplies the backing object. MapPrivate wraps the object in a fresh
// shadow so stores stay local to this address space.
//
// ENOMEM when no free range exists; vnode mmap and Remove errors
// propagate. offBytes must be page-aligned (the syscall layer rejects the
// rest).
func (m *VMMap) Map(file *vfs.Vnode, lopage, npages uint64, prot, flags int, offBytes int64, dir Direction) (*VMArea, error) {
	start := lopage
	if lopage == 0 {
		found := m.FindRange(npages, dir)
		if found < 0 {
			return nil, kerrno.ENOMEM
		}
		start = uint64(found)
	}

	area := &VMArea{
		Start: start,
		End:   start + npages,
		Off:   uint64(offBytes) >> chalk.PageShift,
		Prot:  prot,
		Flags: flags,
	}

	var obj mm.Mobj
	if file == nil {
		anon := mm.NewAnon()
		anon.Unlock()
		obj = anon
	} else {
		file.Lock()
		var err error
		obj, err = file.Impl().Mmap()
		file.Unlock()
		if err != nil {
			return nil, err
		}
	}

	if flags&chalk.MapPrivate != 0 {
		shadow := mm.NewShadow(obj)
		shadow.Unlock()
		obj.DecRef()
		obj = shadow
	}
	area.Obj = obj

	if flags&chalk.MapFixed != 0 && lopage != 0 {
		if err := m.Remove(lopage, npages); err != nil {
			obj.DecRef()
			return nil, err
		}
	}
	m.Insert(area)
	log.Debugf("vm: mapped [%#x, %#x) prot %#x flags %#x", area.Start, area.End, prot, flags)
	return area, nil
}

// Remove unmaps [lopage, lopage+npages). An area wholly inside the range
// is dropped; one overlapped at either edge is trimmed; one strictly
// containing the range is split in two, the right half referencing the
// same object at the advanced offset. Removed page subranges are unmapped
// from the pagetable and their TLB entries flushed.
//
// Remove always returns nil; allocating the split's second area has no
// failure path.
func (m *VMMap) Remove(lopage, npages uint64) error {
	if npages == 0 {
		return nil
	}
	end := lopage + npages

	m.mu.Lock()
	var affected []*VMArea
	m.areas.Ascend(func(a *VMArea) bool {
		if a.Start >= end {
			return false
		}
		if a.End > lopage {
			affected = append(affected, a)
		}
		return true
	})

	var released []mm.Mobj
	for _, a := range affected {
		switch {
		case a.Start < lopage && a.End > end:
			// Split: truncate the original and add the tail.
			tail := &VMArea{
				Start: end,
				End:   a.End,
				Off:   a.Off + (end - a.Start),
				Prot:  a.Prot,
				Flags: a.Flags,
				Obj:   a.Obj,
			}
			tail.Obj.IncRef()
			a.End = lopage
			m.areas.ReplaceOrInsert(tail)
		case a.Start >= lopage && a.End > end:
			m.areas.Delete(a)
			a.Off += end - a.Start
			a.Start = end
			m.areas.ReplaceOrInsert(a)
		case a.Start < lopage && a.End <= end:
			a.End = lopage
		default:
			m.areas.Delete(a)
			released = append(released, a.Obj)
		}
		m.pt.UnmapRange(lopage, end)
		m.pt.FlushTLBRange(lopage, end)
	}
	m.mu.Unlock()

	for _, obj := range released {
		obj.DecRef()
	}
	return nil
}

// Clone builds the child address space for fork over childPt. Shared
// areas share the source object; for each private area a pair of shadows
// over the source's current object is created, one replacing the parent
// area's object and one installed in the child, so that post-fork stores
// on either side land in that side's shadow.
func (m *VMMap) Clone(childPt *mm.PageTable) *VMMap {
	child := NewVMMap(childPt)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.areas.Ascend(func(a *VMArea) bool {
		na := &VMArea{
			Start: a.Start,
			End:   a.End,
			Off:   a.Off,
			Prot:  a.Prot,
			Flags: a.Flags,
		}
		if a.Flags&chalk.MapShared != 0 {
			a.Obj.IncRef()
			na.Obj = a.Obj
		} else {
			childShadow := mm.NewShadow(a.Obj)
			childShadow.Unlock()
			parentShadow := mm.NewShadow(a.Obj)
			parentShadow.Unlock()
			a.Obj.DecRef()
			a.Obj = parentShadow
			na.Obj = childShadow
		}
		child.areas.ReplaceOrInsert(na)
		return true
	})
	return child
}

// Collapse shortens the shadow chains of every private area, typically
// after a child exits and intermediate shadows become singly referenced.
func (m *VMMap) Collapse() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areas.Ascend(func(a *VMArea) bool {
		if s, isShadow := a.Obj.(*mm.Shadow); isShadow {
			s.Lock()
			s.Collapse()
			s.Unlock()
		}
		return true
	})
}

// Read copies count bytes at vaddr in the address space into buf,
// faulting pages in for read as needed. vaddr need not be page-aligned.
//
// EFAULT for an unmapped page; object errors propagate.
func (m *VMMap) Read(vaddr uintptr, buf []byte) error {
	copied := 0
	for copied < len(buf) {
		addr := vaddr + uintptr(copied)
		area := m.Lookup(chalk.AddrToPN(addr))
		if area == nil {
			return kerrno.EFAULT
		}
		obj := area.Obj
		obj.Lock()
		pf, err := obj.GetPframe(area.objPage(chalk.AddrToPN(addr)), false)
		obj.Unlock()
		if err != nil {
			return err
		}
		off := chalk.PageOffset(addr)
		copied += copy(buf[copied:], pf.Data[off:])
		pf.Release()
	}
	return nil
}

// Write copies buf into the address space at vaddr, faulting pages in for
// write and dirtying them.
//
// EFAULT for an unmapped page; object errors propagate.
func (m *VMMap) Write(vaddr uintptr, buf []byte) error {
	written := 0
	for written < len(buf) {
		addr := vaddr + uintptr(written)
		area := m.Lookup(chalk.AddrToPN(addr))
		if area == nil {
			return kerrno.EFAULT
		}
		obj := area.Obj
		obj.Lock()
		pf, err := obj.GetPframe(area.objPage(chalk.AddrToPN(addr)), true)
		obj.Unlock()
		if err != nil {
			return err
		}
		off := chalk.PageOffset(addr)
		written += copy(pf.Data[off:], buf[written:])
		pf.SetDirty()
		pf.Release()
	}
	return nil
}

// Areas returns a snapshot of the map's areas in ascending order.
func (m *VMMap) Areas() []*VMArea {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*VMArea, 0, m.areas.Len())
	m.areas.Ascend(func(a *VMArea) bool { out = append(out, a); return true })
	return out
}

// MappingInfo renders the map in a form suitable for debugging output.
func (m *VMMap) MappingInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%18s %5s %7s %11s %23s\n", "VADDR RANGE", "PROT", "FLAGS", "OFFSET", "VFN RANGE")
	for _, a := range m.Areas() {
		prot := []byte("---")
		if a.Prot&chalk.ProtRead != 0 {
			prot[0] = 'r'
		}
		if a.Prot&chalk.ProtWrite != 0 {
			prot[1] = 'w'
		}
		if a.Prot&chalk.ProtExec != 0 {
			prot[2] = 'x'
		}
		share := "PRIVATE"
		if a.Flags&chalk.MapShared != 0 {
			share = " SHARED"
		}
		fmt.Fprintf(&b, "%#8x-%#8x  %s  %7s %#9x %#9x-%#9x\n",
			chalk.PNToAddr(a.Start), chalk.PNToAddr(a.End), prot, share, a.Off, a.Start, a.End)
	}
	return b.String()
}
