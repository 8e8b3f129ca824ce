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

// Open flags, as passed to open(2).
const (
	ORdonly = 0x0
	OWronly = 0x1
	ORdwr   = 0x2

	OCreat  = 0x100
	OTrunc  = 0x200
	OAppend = 0x400
)

// FileMode describes the type and permission bits of a file, in the
// traditional mode-word layout.
type FileMode uint32

// File type bits.
const (
	SIFMT  FileMode = 0xf000
	SIFCHR FileMode = 0x2000
	SIFDIR FileMode = 0x4000
	SIFBLK FileMode = 0x6000
	SIFREG FileMode = 0x8000
)

// IsDir returns true if m describes a directory.
func (m FileMode) IsDir() bool { return m&SIFMT == SIFDIR }

// IsRegular returns true if m describes a regular file.
func (m FileMode) IsRegular() bool { return m&SIFMT == SIFREG }

// IsChr returns true if m describes a character device.
func (m FileMode) IsChr() bool { return m&SIFMT == SIFCHR }

// IsBlk returns true if m describes a block device.
func (m FileMode) IsBlk() bool { return m&SIFMT == SIFBLK }

// Seek whence values.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// Stat is the result of the stat(2) family. Fields are filled in by each
// vnode's stat operation.
type Stat struct {
	Ino     uint64
	Mode    FileMode
	Nlink   uint32
	Size    int64
	Blocks  int64
	DevID   DevID
	RdevID  DevID
}

// Dirent is a single directory entry as returned by getdent(2).
type Dirent struct {
	Ino  uint64
	Name string
}

// DirentSize is the wire size getdent(2) reports per entry: the inode id
// plus a zero-terminated name of at most NameLen bytes, padded.
const DirentSize = 8 + NameLen + 4
