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

package chalk

// Protection bits for mmap(2) and vmareas.
const (
	ProtNone  = 0x0
	ProtRead  = 0x1
	ProtWrite = 0x2
	ProtExec  = 0x4
)

// Sharing flags for mmap(2) and vmareas.
const (
	MapShared  = 0x1
	MapPrivate = 0x2
	MapFixed   = 0x4
	MapAnon    = 0x8
)

// MapFailed is the address returned by a failed mmap in userland; the kernel
// only ever reports errors through errnos, but the constant keeps the two
// sides in agreement.
const MapFailed = ^uintptr(0)
