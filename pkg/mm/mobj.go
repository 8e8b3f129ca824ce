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

// Package mm implements the kernel's memory objects: page-producing
// entities with a cache of page frames, reference counting, and the
// copy-on-write shadow objects layered over them. It also provides the
// simulated pagetable and TLB the VM layer installs translations into.
package mm

import (
	"sync/atomic"

	"chalkos.dev/chalkos/pkg/log"
	"chalkos.dev/chalkos/pkg/sync"
)

// Type tags a memory object variant.
type Type int

// Memory object variants.
const (
	TypeVnode Type = iota
	TypeAnon
	TypeShadow
	TypeDevice
)

// Mobj is a page-producing memory object. The object's lock protects both
// the frame cache and the operations; callers hold it across GetPframe and
// FindPframe. The refcount reaches zero only while the object is unlocked,
// at which point the object flushes its dirty frames and destroys itself.
type Mobj interface {
	// Type returns the variant tag.
	Type() Type

	// Lock and Unlock acquire the object's mutex.
	Lock()
	Unlock()

	// IncRef adds a reference.
	IncRef()

	// DecRef drops a reference, destroying the object when the count
	// reaches zero. The object must not be locked.
	DecRef()

	// GetPframe returns the frame for pagenum, locked and pinned. When
	// forwrite is set the returned frame is writable without further
	// copying. The object's lock must be held.
	GetPframe(pagenum uint64, forwrite bool) (*Pframe, error)

	// FindPframe returns the frame for pagenum if it is resident, locked
	// and pinned, or nil. The object's lock must be held.
	FindPframe(pagenum uint64) *Pframe

	// FillPframe populates a freshly created empty frame.
	FillPframe(pf *Pframe) error

	// FlushPframe writes a dirty frame back to backing store.
	FlushPframe(pf *Pframe) error

	// destroy releases the object's resources once the refcount has
	// reached zero. Dirty frames have already been flushed.
	destroy()
}

// Base supplies the shared state and default operation paths of a memory
// object. Concrete variants embed it and call Init with themselves.
type Base struct {
	typ  Type
	mu   sync.Mutex
	refs atomic.Int64

	// frames is the page cache, indexed by page number. Protected by mu.
	frames map[uint64]*Pframe

	// impl is the concrete variant, for dispatching FillPframe and
	// FlushPframe from the default paths.
	impl Mobj
}

// Init initializes a Base with refcount 1.
func (b *Base) Init(typ Type, impl Mobj) {
	b.typ = typ
	b.impl = impl
	b.frames = make(map[uint64]*Pframe)
	b.refs.Store(1)
}

// Type implements Mobj.Type.
func (b *Base) Type() Type { return b.typ }

// Lock implements Mobj.Lock.
func (b *Base) Lock() { b.mu.Lock() }

// Unlock implements Mobj.Unlock.
func (b *Base) Unlock() { b.mu.Unlock() }

// IncRef implements Mobj.IncRef.
func (b *Base) IncRef() {
	if b.refs.Add(1) <= 1 {
		panic("mobj resurrected after destruction")
	}
}

// DecRef implements Mobj.DecRef.
func (b *Base) DecRef() {
	switch refs := b.refs.Add(-1); {
	case refs < 0:
		panic("mobj refcount underflow")
	case refs == 0:
		b.mu.Lock()
		b.flushAll()
		b.mu.Unlock()
		b.impl.destroy()
	}
}

// Refs returns the current reference count.
func (b *Base) Refs() int64 { return b.refs.Load() }

// flushAll flushes every dirty frame and drops the cache. b.mu must be
// held.
func (b *Base) flushAll() {
	for _, pf := range b.frames {
		pf.mu.Lock()
		if pf.dirty {
			if err := b.impl.FlushPframe(pf); err != nil {
				log.Warningf("mm: dropping dirty page %d: %v", pf.pagenum, err)
			}
			pf.dirty = false
		}
		pf.mu.Unlock()
	}
	b.frames = nil
}

// FindPframe implements Mobj.FindPframe.
func (b *Base) FindPframe(pagenum uint64) *Pframe {
	pf, ok := b.frames[pagenum]
	if !ok {
		return nil
	}
	pf.mu.Lock()
	pf.pincount++
	return pf
}

// GetPframe implements the default Mobj.GetPframe: return the cached frame,
// or allocate an empty one and fill it via the variant's FillPframe.
func (b *Base) GetPframe(pagenum uint64, forwrite bool) (*Pframe, error) {
	if pf := b.FindPframe(pagenum); pf != nil {
		return pf, nil
	}
	pf := newPframe(pagenum)
	pf.mu.Lock()
	pf.pincount++
	b.frames[pagenum] = pf
	if err := b.impl.FillPframe(pf); err != nil {
		delete(b.frames, pagenum)
		pf.pincount--
		pf.mu.Unlock()
		return nil, err
	}
	return pf, nil
}

// InvalidateFrames discards every cached frame without flushing, as on
// truncation. The object must be locked.
func (b *Base) InvalidateFrames() {
	b.frames = make(map[uint64]*Pframe)
}

// Resident returns the number of cached frames. The object must be locked.
func (b *Base) Resident() int {
	return len(b.frames)
}

// stealFrame removes the frame for pagenum from the cache without flushing
// it, for migration into another object. b.mu must be held.
func (b *Base) stealFrame(pagenum uint64) *Pframe {
	pf, ok := b.frames[pagenum]
	if !ok {
		return nil
	}
	delete(b.frames, pagenum)
	return pf
}

// adoptFrame inserts a migrated frame into the cache. b.mu must be held.
func (b *Base) adoptFrame(pf *Pframe) {
	b.frames[pf.pagenum] = pf
}

// residentPages returns the page numbers with resident frames. b.mu must
// be held.
func (b *Base) residentPages() []uint64 {
	pns := make([]uint64, 0, len(b.frames))
	for pn := range b.frames {
		pns = append(pns, pn)
	}
	return pns
}
