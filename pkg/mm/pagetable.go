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

package mm

import (
	"chalkos.dev/chalkos/pkg/sync"
)

// PTE flag bits.
const (
	PTPresent = 1 << 0
	PTWrite   = 1 << 1
	PTUser    = 1 << 2
)

// PTE is a single simulated pagetable entry. The frame pointer stands in
// for the physical address a hardware pagetable would hold.
type PTE struct {
	Frame *Pframe
	Flags uint32
}

// PageTable simulates a per-address-space pagetable plus its TLB. The VM
// layer installs entries on page faults and removes them on unmap; the
// flush counters let tests assert shootdown behavior.
type PageTable struct {
	mu      sync.Mutex
	entries map[uint64]PTE

	tlbPageFlushes uint64
	tlbFullFlushes uint64
}

// NewPageTable returns an empty pagetable.
func NewPageTable() *PageTable {
	return &PageTable{entries: make(map[uint64]PTE)}
}

// Map installs a translation for page number vfn.
func (pt *PageTable) Map(vfn uint64, frame *Pframe, flags uint32) {
	pt.mu.Lock()
	pt.entries[vfn] = PTE{Frame: frame, Flags: flags}
	pt.mu.Unlock()
}

// Lookup returns the entry for vfn, if present.
func (pt *PageTable) Lookup(vfn uint64) (PTE, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pte, ok := pt.entries[vfn]
	return pte, ok
}

// UnmapRange removes translations for page numbers in [lo, hi).
func (pt *PageTable) UnmapRange(lo, hi uint64) {
	pt.mu.Lock()
	for vfn := range pt.entries {
		if vfn >= lo && vfn < hi {
			delete(pt.entries, vfn)
		}
	}
	pt.mu.Unlock()
}

// FlushTLB invalidates the cached translation for one page.
func (pt *PageTable) FlushTLB(vfn uint64) {
	pt.mu.Lock()
	pt.tlbPageFlushes++
	pt.mu.Unlock()
}

// FlushTLBRange invalidates cached translations for [lo, hi).
func (pt *PageTable) FlushTLBRange(lo, hi uint64) {
	pt.mu.Lock()
	pt.tlbPageFlushes += hi - lo
	pt.mu.Unlock()
}

// FlushTLBAll invalidates all cached translations.
func (pt *PageTable) FlushTLBAll() {
	pt.mu.Lock()
	pt.tlbFullFlushes++
	pt.mu.Unlock()
}

// Mapped returns the number of installed translations.
func (pt *PageTable) Mapped() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return len(pt.entries)
}
