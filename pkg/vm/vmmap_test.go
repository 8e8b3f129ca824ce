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

package vm_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/errors/kerrno"
	"chalkos.dev/chalkos/pkg/mm"
	"chalkos.dev/chalkos/pkg/vm"
)

func newMap() *vm.VMMap {
	return vm.NewVMMap(mm.NewPageTable())
}

func mustMap(t *testing.T, m *vm.VMMap, lopage, npages uint64) *vm.VMArea {
	t.Helper()
	area, err := m.Map(nil, lopage, npages, chalk.ProtRead|chalk.ProtWrite,
		chalk.MapPrivate|chalk.MapAnon, 0, vm.DirHiLo)
	if err != nil {
		t.Fatalf("Map(%d, %d): %v", lopage, npages, err)
	}
	return area
}

func checkDisjoint(t *testing.T, m *vm.VMMap) {
	t.Helper()
	areas := m.Areas()
	for i := 1; i < len(areas); i++ {
		if areas[i-1].End > areas[i].Start {
			t.Fatalf("areas overlap: [%d,%d) and [%d,%d)",
				areas[i-1].Start, areas[i-1].End, areas[i].Start, areas[i].End)
		}
	}
}

func TestFindRangeDirections(t *testing.T) {
	m := newMap()
	if got := m.FindRange(16, vm.DirLoHi); got != int64(chalk.UserMemLowPN) {
		t.Errorf("FindRange(16, LOHI) = %d, want %d", got, chalk.UserMemLowPN)
	}
	if got := m.FindRange(16, vm.DirHiLo); got != int64(chalk.UserMemHighPN-16) {
		t.Errorf("FindRange(16, HILO) = %d, want %d", got, chalk.UserMemHighPN-16)
	}
}

func TestFindRangeSkipsMappings(t *testing.T) {
	m := newMap()
	mustMap(t, m, chalk.UserMemLowPN, 4)
	if got := m.FindRange(4, vm.DirLoHi); got != int64(chalk.UserMemLowPN+4) {
		t.Errorf("FindRange = %d, want %d", got, chalk.UserMemLowPN+4)
	}
	if got := m.FindRange(chalk.UserMemHighPN-chalk.UserMemLowPN, vm.DirLoHi); got != -1 {
		t.Errorf("FindRange for the whole space = %d, want -1", got)
	}
}

func TestRemoveSplit(t *testing.T) {
	m := newMap()
	s := chalk.UserMemLowPN + 64
	mustMap(t, m, s, 32)
	if err := m.Remove(s+8, 16); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	checkDisjoint(t, m)

	areas := m.Areas()
	if len(areas) != 2 {
		t.Fatalf("got %d areas, want 2", len(areas))
	}
	type extent struct{ Start, End, Off uint64 }
	got := []extent{
		{areas[0].Start, areas[0].End, areas[0].Off},
		{areas[1].Start, areas[1].End, areas[1].Off},
	}
	want := []extent{
		{s, s + 8, 0},
		{s + 24, s + 32, 24},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("split areas mismatch (-want +got):\n%s", diff)
	}

	// The halves share one object.
	if areas[0].Obj != areas[1].Obj {
		t.Errorf("split halves reference different objects")
	}
}

func TestRemoveEdgeOverlaps(t *testing.T) {
	m := newMap()
	s := chalk.UserMemLowPN + 128
	mustMap(t, m, s, 16)

	// Left overlap trims the end.
	if err := m.Remove(s+12, 8); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	areas := m.Areas()
	if len(areas) != 1 || areas[0].End != s+12 {
		t.Fatalf("left overlap: areas = %+v", areas)
	}

	// Right overlap raises the start and advances the offset.
	if err := m.Remove(s-4, 8); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	areas = m.Areas()
	if len(areas) != 1 || areas[0].Start != s+4 || areas[0].Off != 4 {
		t.Fatalf("right overlap: areas = %+v", areas)
	}

	// Covering removal empties the map.
	if err := m.Remove(s, 16); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if areas = m.Areas(); len(areas) != 0 {
		t.Fatalf("covering removal left %d areas", len(areas))
	}
	checkDisjoint(t, m)
}

func TestMapFixedReplaces(t *testing.T) {
	m := newMap()
	s := chalk.UserMemLowPN + 200
	mustMap(t, m, s, 8)
	area, err := m.Map(nil, s+4, 8, chalk.ProtRead,
		chalk.MapPrivate|chalk.MapAnon|chalk.MapFixed, 0, vm.DirHiLo)
	if err != nil {
		t.Fatalf("Map fixed: %v", err)
	}
	checkDisjoint(t, m)
	if area.Start != s+4 || area.End != s+12 {
		t.Errorf("fixed mapping at [%d,%d), want [%d,%d)", area.Start, area.End, s+4, s+12)
	}
}

func TestReadAfterWrite(t *testing.T) {
	m := newMap()
	area, err := m.Map(nil, 0, 4, chalk.ProtRead|chalk.ProtWrite,
		chalk.MapPrivate|chalk.MapAnon, 0, vm.DirLoHi)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	addr := chalk.PNToAddr(area.Start) + 100

	msg := []byte("the quick brown fox")
	if err := m.Write(addr, msg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]byte, len(msg))
	if err := m.Read(addr, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("Read = %q, want %q", got, msg)
	}
}

func TestReadWriteCrossesPages(t *testing.T) {
	m := newMap()
	area := mustMap(t, m, chalk.UserMemLowPN, 2)
	addr := chalk.PNToAddr(area.Start) + chalk.PageSize - 8

	msg := []byte("spans the boundary")
	if err := m.Write(addr, msg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]byte, len(msg))
	if err := m.Read(addr, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("Read = %q, want %q", got, msg)
	}
}

func TestReadUnmapped(t *testing.T) {
	m := newMap()
	buf := make([]byte, 8)
	if err := m.Read(chalk.UserMemLow, buf); err != kerrno.EFAULT {
		t.Errorf("Read of unmapped page = %v, want EFAULT", err)
	}
}

func TestCloneCopyOnWrite(t *testing.T) {
	parent := newMap()
	area := mustMap(t, parent, chalk.UserMemLowPN, 1)
	addr := chalk.PNToAddr(area.Start)

	if err := parent.Write(addr, []byte{'X'}); err != nil {
		t.Fatalf("parent Write: %v", err)
	}
	child := parent.Clone(mm.NewPageTable())
	defer child.Destroy()

	if err := parent.Write(addr, []byte{'Y'}); err != nil {
		t.Fatalf("parent post-fork Write: %v", err)
	}

	got := make([]byte, 1)
	if err := child.Read(addr, got); err != nil {
		t.Fatalf("child Read: %v", err)
	}
	if got[0] != 'X' {
		t.Errorf("child read %q, want %q", got[0], byte('X'))
	}
	if err := parent.Read(addr, got); err != nil {
		t.Fatalf("parent Read: %v", err)
	}
	if got[0] != 'Y' {
		t.Errorf("parent read %q, want %q", got[0], byte('Y'))
	}
}

func TestCloneSharedMapping(t *testing.T) {
	parent := newMap()
	area, err := parent.Map(nil, chalk.UserMemLowPN, 1,
		chalk.ProtRead|chalk.ProtWrite, chalk.MapShared|chalk.MapAnon, 0, vm.DirHiLo)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	addr := chalk.PNToAddr(area.Start)

	child := parent.Clone(mm.NewPageTable())
	defer child.Destroy()

	if err := parent.Write(addr, []byte{'S'}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]byte, 1)
	if err := child.Read(addr, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got[0] != 'S' {
		t.Errorf("shared mapping: child read %q, want %q", got[0], byte('S'))
	}
}

func TestDisjointnessUnderChurn(t *testing.T) {
	m := newMap()
	base := chalk.UserMemLowPN
	mustMap(t, m, base, 64)
	if err := m.Remove(base+10, 10); err != nil {
		t.Fatal(err)
	}
	mustMap(t, m, base+12, 4)
	if err := m.Remove(base+30, 40); err != nil {
		t.Fatal(err)
	}
	mustMap(t, m, base+32, 8)
	checkDisjoint(t, m)
}

func TestHandleFault(t *testing.T) {
	m := newMap()
	area := mustMap(t, m, chalk.UserMemLowPN, 2)
	addr := chalk.PNToAddr(area.Start) + 10

	if err := vm.HandleFault(m, addr, vm.FaultUser); err != nil {
		t.Fatalf("read fault: %v", err)
	}
	pte, ok := m.PageTable().Lookup(chalk.AddrToPN(addr))
	if !ok {
		t.Fatal("no PTE installed by read fault")
	}
	if pte.Flags&mm.PTWrite != 0 {
		t.Error("read fault installed a writable PTE")
	}

	if err := vm.HandleFault(m, addr, vm.FaultUser|vm.FaultWrite); err != nil {
		t.Fatalf("write fault: %v", err)
	}
	pte, _ = m.PageTable().Lookup(chalk.AddrToPN(addr))
	if pte.Flags&mm.PTWrite == 0 {
		t.Error("write fault installed a read-only PTE")
	}
}

func TestHandleFaultRejections(t *testing.T) {
	m := newMap()
	area, err := m.Map(nil, chalk.UserMemLowPN, 1, chalk.ProtRead,
		chalk.MapPrivate|chalk.MapAnon, 0, vm.DirHiLo)
	if err != nil {
		t.Fatal(err)
	}
	addr := chalk.PNToAddr(area.Start)

	for _, tc := range []struct {
		name  string
		vaddr uintptr
		cause uint32
	}{
		{"below user space", chalk.UserMemLow - chalk.PageSize, vm.FaultUser},
		{"unmapped", addr + 64*chalk.PageSize, vm.FaultUser},
		{"write to read-only", addr, vm.FaultUser | vm.FaultWrite},
		{"exec of data", addr, vm.FaultUser | vm.FaultExec},
	} {
		if err := vm.HandleFault(m, tc.vaddr, tc.cause); err != kerrno.EFAULT {
			t.Errorf("%s: HandleFault = %v, want EFAULT", tc.name, err)
		}
	}

	none, err := m.Map(nil, chalk.UserMemLowPN+8, 1, chalk.ProtNone,
		chalk.MapPrivate|chalk.MapAnon, 0, vm.DirHiLo)
	if err != nil {
		t.Fatal(err)
	}
	if err := vm.HandleFault(m, chalk.PNToAddr(none.Start), vm.FaultUser); err != kerrno.EFAULT {
		t.Errorf("PROT_NONE fault = %v, want EFAULT", err)
	}
}

func TestBrk(t *testing.T) {
	m := newMap()
	startBrk := chalk.UserMemLow + 64*chalk.PageSize
	cur := startBrk

	// Setting the break to itself is a no-op.
	got, err := vm.Brk(m, startBrk, cur, startBrk)
	if err != nil || got != startBrk {
		t.Fatalf("Brk(start) = %#x, %v", got, err)
	}
	if len(m.Areas()) != 0 {
		t.Fatalf("no-op brk created areas")
	}

	// Growing by one page creates exactly one heap area.
	got, err = vm.Brk(m, startBrk, cur, startBrk+chalk.PageSize)
	if err != nil {
		t.Fatalf("Brk grow: %v", err)
	}
	cur = got
	areas := m.Areas()
	if len(areas) != 1 {
		t.Fatalf("got %d areas, want 1", len(areas))
	}
	heap := areas[0]
	if heap.Start != chalk.AddrToPN(startBrk) || heap.End != heap.Start+1 {
		t.Errorf("heap at [%d,%d), want one page at %d", heap.Start, heap.End, chalk.AddrToPN(startBrk))
	}
	if heap.Flags&chalk.MapPrivate == 0 || heap.Prot != chalk.ProtRead|chalk.ProtWrite {
		t.Errorf("heap prot/flags = %#x/%#x", heap.Prot, heap.Flags)
	}

	// The heap is usable memory.
	if err := m.Write(startBrk, []byte("heap bytes")); err != nil {
		t.Errorf("write to heap: %v", err)
	}

	// Shrinking back releases it.
	got, err = vm.Brk(m, startBrk, cur, startBrk)
	if err != nil {
		t.Fatalf("Brk shrink: %v", err)
	}
	cur = got
	if len(m.Areas()) != 0 {
		t.Errorf("shrink left %d areas", len(m.Areas()))
	}

	// Out-of-range requests fail.
	if _, err := vm.Brk(m, startBrk, cur, chalk.UserMemHigh+1); err != kerrno.ENOMEM {
		t.Errorf("Brk beyond user space = %v, want ENOMEM", err)
	}
	if _, err := vm.Brk(m, startBrk, cur, startBrk-1); err != kerrno.ENOMEM {
		t.Errorf("Brk below start = %v, want ENOMEM", err)
	}

	// Query form returns the current break.
	if got, err := vm.Brk(m, startBrk, cur, 0); err != nil || got != cur {
		t.Errorf("Brk(0) = %#x, %v; want %#x", got, err, cur)
	}
}

func TestBrkCollision(t *testing.T) {
	m := newMap()
	startBrk := chalk.UserMemLow + 64*chalk.PageSize
	mustMap(t, m, chalk.AddrToPN(startBrk)+2, 2)

	if _, err := vm.Brk(m, startBrk, startBrk, startBrk+4*chalk.PageSize); err != kerrno.ENOMEM {
		t.Errorf("Brk into mapping = %v, want ENOMEM", err)
	}
}

func TestMunmapValidation(t *testing.T) {
	m := newMap()
	if err := vm.Munmap(m, chalk.UserMemLow+1, chalk.PageSize); err != kerrno.EINVAL {
		t.Errorf("unaligned addr = %v, want EINVAL", err)
	}
	if err := vm.Munmap(m, chalk.UserMemLow, 0); err != kerrno.EINVAL {
		t.Errorf("zero length = %v, want EINVAL", err)
	}
	if err := vm.Munmap(m, chalk.UserMemHigh-chalk.PageSize, 2*chalk.PageSize); err != kerrno.EINVAL {
		t.Errorf("out of range = %v, want EINVAL", err)
	}
}

func TestMmapValidation(t *testing.T) {
	m := newMap()
	if _, err := vm.Mmap(m, nil, 0, 0, chalk.ProtRead, chalk.MapPrivate|chalk.MapAnon, 0); err != kerrno.EINVAL {
		t.Errorf("zero length = %v, want EINVAL", err)
	}
	if _, err := vm.Mmap(m, nil, 0, chalk.PageSize, chalk.ProtRead, chalk.MapAnon, 0); err != kerrno.EINVAL {
		t.Errorf("no sharing flag = %v, want EINVAL", err)
	}
	if _, err := vm.Mmap(m, nil, 0, chalk.PageSize, chalk.ProtRead, chalk.MapPrivate, 0); err != kerrno.EBADF {
		t.Errorf("file mapping without file = %v, want EBADF", err)
	}
	if _, err := vm.Mmap(m, nil, 0, chalk.PageSize, chalk.ProtRead, chalk.MapPrivate|chalk.MapAnon, 3); err != kerrno.EINVAL {
		t.Errorf("unaligned offset = %v, want EINVAL", err)
	}
}
