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
	"chalkos.dev/chalkos/pkg/abi/chalk"
)

// Shadow is a copy-on-write overlay over another memory object. Its own
// frame cache holds only pages that have diverged from its parent chain.
// Chains always terminate in a non-shadow bottom object, cached on every
// link for O(1) access; cycles are impossible by construction since a
// shadow is created only referring to an existing object.
type Shadow struct {
	Base

	// shadowed is the immediate parent in the chain, itself possibly a
	// shadow.
	shadowed Mobj

	// bottom is the non-shadow object terminating the chain.
	bottom Mobj
}

// NewShadow returns a shadow over the given object, locked, with
// refcount 1. Both the parent and the chain bottom gain a reference.
func NewShadow(shadowed Mobj) *Shadow {
	s := &Shadow{shadowed: shadowed}
	if sh, ok := shadowed.(*Shadow); ok {
		s.bottom = sh.bottom
	} else {
		s.bottom = shadowed
	}
	if s.bottom.Type() == TypeShadow {
		panic("shadow chain bottom is a shadow")
	}
	s.Init(TypeShadow, s)
	s.shadowed.IncRef()
	s.bottom.IncRef()
	s.Lock()
	return s
}

// Bottom returns the non-shadow object terminating s's chain.
func (s *Shadow) Bottom() Mobj { return s.bottom }

// Shadowed returns s's immediate parent.
func (s *Shadow) Shadowed() Mobj { return s.shadowed }

// GetPframe implements Mobj.GetPframe.
//
// For a write, the frame must live in s's own cache so the write does not
// leak into objects shared with other address spaces; the default path
// allocates it there and FillPframe populates it from the chain. For a
// read, any resident copy along the chain yields correct bytes, so walk
// the chain iteratively and fall through to the bottom object on a full
// miss.
func (s *Shadow) GetPframe(pagenum uint64, forwrite bool) (*Pframe, error) {
	if forwrite {
		return s.Base.GetPframe(pagenum, true)
	}
	if pf := s.FindPframe(pagenum); pf != nil {
		return pf, nil
	}
	cur := s.shadowed
	for cur.Type() == TypeShadow {
		cur.Lock()
		pf := cur.FindPframe(pagenum)
		cur.Unlock()
		if pf != nil {
			return pf, nil
		}
		cur = cur.(*Shadow).shadowed
	}
	s.bottom.Lock()
	defer s.bottom.Unlock()
	return s.bottom.GetPframe(pagenum, false)
}

// FillPframe implements Mobj.FillPframe: copy the nearest resident version
// of the page, starting at s's parent and falling through to the bottom.
func (s *Shadow) FillPframe(pf *Pframe) error {
	cur := s.shadowed
	for cur.Type() == TypeShadow {
		cur.Lock()
		src := cur.FindPframe(pf.pagenum)
		cur.Unlock()
		if src != nil {
			copy(pf.Data, src.Data[:chalk.PageSize])
			src.Release()
			return nil
		}
		cur = cur.(*Shadow).shadowed
	}
	s.bottom.Lock()
	src, err := s.bottom.GetPframe(pf.pagenum, false)
	s.bottom.Unlock()
	if err != nil {
		return err
	}
	copy(pf.Data, src.Data[:chalk.PageSize])
	src.Release()
	return nil
}

// FlushPframe implements Mobj.FlushPframe. Shadows never back to disk.
func (s *Shadow) FlushPframe(pf *Pframe) error {
	return nil
}

func (s *Shadow) destroy() {
	s.shadowed.DecRef()
	s.bottom.DecRef()
}

// Collapse shortens s's chain as far as possible. Each immediate parent
// that is a singly-referenced shadow has its diverged frames migrated into
// s (frames s already holds win, being strictly newer) and is then
// released, which destroys it. s must be locked; intermediate links must
// have refcount 1.
func (s *Shadow) Collapse() {
	for s.shadowed.Type() == TypeShadow {
		parent := s.shadowed.(*Shadow)
		if parent.Refs() != 1 {
			break
		}
		parent.Lock()
		for _, pn := range parent.residentPages() {
			pf := parent.stealFrame(pn)
			if _, have := s.frames[pn]; !have {
				s.adoptFrame(pf)
			}
		}
		next := parent.shadowed
		next.IncRef()
		parent.Unlock()

		s.shadowed.DecRef()
		s.shadowed = next
	}
	if s.shadowed.Type() != TypeShadow && s.shadowed != s.bottom {
		panic("collapsed shadow chain does not terminate at bottom")
	}
}
