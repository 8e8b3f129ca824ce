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

// Anon is an anonymous memory object: demand-zero pages with no backing
// store. It also backs ramfs regular files and the zero device's mappings.
type Anon struct {
	Base
}

// NewAnon returns a new anonymous object, locked, with refcount 1.
func NewAnon() *Anon {
	a := &Anon{}
	a.Init(TypeAnon, a)
	a.Lock()
	return a
}

// FillPframe implements Mobj.FillPframe. Frames start zeroed.
func (a *Anon) FillPframe(pf *Pframe) error {
	return nil
}

// FlushPframe implements Mobj.FlushPframe. Anonymous pages have no backing
// store.
func (a *Anon) FlushPframe(pf *Pframe) error {
	return nil
}

func (a *Anon) destroy() {}
