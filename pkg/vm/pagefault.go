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
	"chalkos.dev/chalkos/pkg/log"
	"chalkos.dev/chalkos/pkg/mm"
)

// Fault cause bits.
const (
	FaultUser  = 1 << 0
	FaultWrite = 1 << 1
	FaultExec  = 1 << 2
)

// HandleFault resolves a user page fault at vaddr: validate the address
// and the faulting access against the containing area's protection,
// request the page from the area's object (for write when the fault was a
// write), and install the translation with a per-page TLB flush.
//
// EFAULT when the address is unmapped, outside the user range, or the
// protection does not admit the access; the caller terminates the process.
// Object errors surface as EFAULT as well.
func HandleFault(m *VMMap, vaddr uintptr, cause uint32) error {
	log.Debugf("vm: fault at %#x cause %#x", vaddr, cause)
	if vaddr < chalk.UserMemLow || vaddr >= chalk.UserMemHigh {
		return kerrno.EFAULT
	}
	vfn := chalk.AddrToPN(vaddr)
	area := m.Lookup(vfn)
	if area == nil {
		return kerrno.EFAULT
	}
	switch {
	case area.Prot == chalk.ProtNone:
		return kerrno.EFAULT
	case cause&FaultWrite != 0 && area.Prot&chalk.ProtWrite == 0:
		return kerrno.EFAULT
	case cause&FaultExec != 0 && area.Prot&chalk.ProtExec == 0:
		return kerrno.EFAULT
	case cause&(FaultWrite|FaultExec) == 0 && area.Prot&chalk.ProtRead == 0:
		return kerrno.EFAULT
	}

	forwrite := cause&FaultWrite != 0
	obj := area.Obj
	obj.Lock()
	pf, err := obj.GetPframe(area.objPage(vfn), forwrite)
	obj.Unlock()
	if err != nil {
		return kerrno.EFAULT
	}

	flags := uint32(mm.PTPresent | mm.PTUser)
	if forwrite {
		flags |= mm.PTWrite
	}
	m.pt.Map(vfn, pf, flags)
	pf.Release()
	m.pt.FlushTLB(vfn)
	return nil
}
