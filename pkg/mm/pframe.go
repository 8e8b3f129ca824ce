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
	"chalkos.dev/chalkos/pkg/sync"
)

// Pframe is a cached page belonging to exactly one memory object at a given
// page number. The frame's lock is held during fill and flush, and by the
// holder returned from GetPframe until Release.
type Pframe struct {
	// pagenum is the page number of this frame within its object.
	pagenum uint64

	// Data is the page contents. Its address stands in for the frame's
	// kernel virtual address.
	Data []byte

	mu sync.Mutex

	// dirty is set when the contents have been modified since the last
	// flush. Protected by mu.
	dirty bool

	// pincount is the number of holders that have the frame pinned.
	// Protected by mu.
	pincount int
}

func newPframe(pagenum uint64) *Pframe {
	return &Pframe{
		pagenum: pagenum,
		Data:    make([]byte, chalk.PageSize),
	}
}

// Pagenum returns the frame's page number within its object.
func (pf *Pframe) Pagenum() uint64 { return pf.pagenum }

// Dirty returns whether the frame has unflushed modifications.
func (pf *Pframe) Dirty() bool { return pf.dirty }

// SetDirty marks the frame as modified. The frame must be held.
func (pf *Pframe) SetDirty() { pf.dirty = true }

// Release unpins and unlocks a frame returned by GetPframe. Every GetPframe
// pairs with exactly one Release.
func (pf *Pframe) Release() {
	pf.pincount--
	if pf.pincount < 0 {
		panic("pframe released more times than acquired")
	}
	pf.mu.Unlock()
}
