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

// Package ramfs provides the in-memory filesystem the kernel mounts as its
// root: directories hold their entries in ordered trees, regular files keep
// their bytes in anonymous memory objects, and device nodes delegate to the
// registered drivers.
package ramfs

import (
	"sync/atomic"

	"github.com/google/btree"

	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/errors/kerrno"
	"chalkos.dev/chalkos/pkg/mm"
	"chalkos.dev/chalkos/pkg/vfs"
)

// Filesystem is an in-memory filesystem. Directory entries own references
// to their children, so a vnode stays alive exactly as long as its longest
// holder: an entry, a descriptor table, or a cwd slot.
type Filesystem struct {
	nextIno atomic.Uint64
	root    *vfs.Vnode
}

// New returns a filesystem with an empty root directory.
func New() *Filesystem {
	fs := &Filesystem{}
	fs.root = fs.newDir(nil)
	return fs
}

// Root implements vfs.FileSystem.Root.
func (fs *Filesystem) Root() *vfs.Vnode {
	fs.root.IncRef()
	return fs.root
}

// ReleaseVnode implements vfs.FileSystem.ReleaseVnode. Unreferenced ramfs
// vnodes have already been unlinked from every directory, so there is
// nothing left to return.
func (fs *Filesystem) ReleaseVnode(vn *vfs.Vnode) {}

func (fs *Filesystem) inoAlloc() uint64 {
	return fs.nextIno.Add(1)
}

// newDir creates a directory vnode. parent is nil for the root, which is
// its own parent.
func (fs *Filesystem) newDir(parent *vfs.Vnode) *vfs.Vnode {
	d := &dirNode{
		fs:      fs,
		entries: btree.NewG[dirent](8, func(a, b dirent) bool { return a.name < b.name }),
	}
	vn := vfs.NewVnode(fs, fs.inoAlloc(), chalk.SIFDIR, 0, d)
	d.vn = vn
	if parent == nil {
		parent = vn
	}
	d.parent = parent
	d.nlink = 1
	return vn
}

func (fs *Filesystem) newRegular() *vfs.Vnode {
	r := &regNode{fs: fs, nlink: 1}
	vn := vfs.NewVnode(fs, fs.inoAlloc(), chalk.SIFREG, 0, r)
	obj := mm.NewAnon()
	obj.Unlock()
	vn.SetMobj(obj)
	r.vn = vn
	return vn
}

func (fs *Filesystem) newDevice(mode chalk.FileMode, devid chalk.DevID) (*vfs.Vnode, error) {
	impl, err := vfs.NewCharDeviceVnode(devid)
	if err != nil {
		return nil, err
	}
	d := &deviceNode{CharDeviceVnode: impl, fs: fs, nlink: 1}
	vn := vfs.NewVnode(fs, fs.inoAlloc(), mode, devid, d)
	d.vn = vn
	return vn, nil
}

// dirent is a single directory entry; the child reference is owned by the
// entry.
type dirent struct {
	name string
	vn   *vfs.Vnode
}

// dirNode implements vfs.VnodeImpl for directories.
type dirNode struct {
	vfs.DirectoryVnode
	vfs.NoMmapVnode

	fs *Filesystem
	vn *vfs.Vnode

	// parent backs "..". Not counted: the parent outlives this directory
	// because the parent's entry owns it.
	parent *vfs.Vnode

	entries *btree.BTreeG[dirent]
	nlink   uint32
}

// Lookup implements vfs.VnodeImpl.Lookup.
func (d *dirNode) Lookup(name string) (*vfs.Vnode, error) {
	switch name {
	case ".":
		d.vn.IncRef()
		return d.vn, nil
	case "..":
		d.parent.IncRef()
		return d.parent, nil
	}
	ent, ok := d.entries.Get(dirent{name: name})
	if !ok {
		return nil, kerrno.ENOENT
	}
	ent.vn.IncRef()
	return ent.vn, nil
}

func (d *dirNode) insert(name string, vn *vfs.Vnode) {
	vn.IncRef()
	d.entries.ReplaceOrInsert(dirent{name: name, vn: vn})
}

// Mknod implements vfs.VnodeImpl.Mknod.
func (d *dirNode) Mknod(name string, mode chalk.FileMode, devid chalk.DevID) (*vfs.Vnode, error) {
	if _, exists := d.entries.Get(dirent{name: name}); exists {
		return nil, kerrno.EEXIST
	}
	var vn *vfs.Vnode
	var err error
	switch {
	case mode.IsRegular():
		vn = d.fs.newRegular()
	case mode.IsChr() || mode.IsBlk():
		vn, err = d.fs.newDevice(mode, devid)
		if err != nil {
			return nil, err
		}
	default:
		return nil, kerrno.EINVAL
	}
	d.insert(name, vn)
	return vn, nil
}

// Mkdir implements vfs.VnodeImpl.Mkdir.
func (d *dirNode) Mkdir(name string) (*vfs.Vnode, error) {
	if _, exists := d.entries.Get(dirent{name: name}); exists {
		return nil, kerrno.EEXIST
	}
	vn := d.fs.newDir(d.vn)
	d.insert(name, vn)
	d.nlink++
	return vn, nil
}

// Rmdir implements vfs.VnodeImpl.Rmdir.
func (d *dirNode) Rmdir(name string) error {
	ent, ok := d.entries.Get(dirent{name: name})
	if !ok {
		return kerrno.ENOENT
	}
	if !ent.vn.Mode().IsDir() {
		return kerrno.ENOTDIR
	}
	child := ent.vn.Impl().(*dirNode)
	if child.entries.Len() != 0 {
		return kerrno.ENOTEMPTY
	}
	d.entries.Delete(ent)
	d.nlink--
	ent.vn.DecRef()
	return nil
}

// Link implements vfs.VnodeImpl.Link.
func (d *dirNode) Link(name string, target *vfs.Vnode) error {
	if _, exists := d.entries.Get(dirent{name: name}); exists {
		return kerrno.EEXIST
	}
	d.insert(name, target)
	if ln, ok := target.Impl().(linkable); ok {
		ln.addLink()
	}
	return nil
}

// Unlink implements vfs.VnodeImpl.Unlink.
func (d *dirNode) Unlink(name string) error {
	ent, ok := d.entries.Get(dirent{name: name})
	if !ok {
		return kerrno.ENOENT
	}
	if ent.vn.Mode().IsDir() {
		return kerrno.EPERM
	}
	d.entries.Delete(ent)
	if ln, ok := ent.vn.Impl().(linkable); ok {
		ln.dropLink()
	}
	ent.vn.DecRef()
	return nil
}

// Rename implements vfs.VnodeImpl.Rename. Directories cannot be renamed;
// an existing non-directory target is replaced.
func (d *dirNode) Rename(oldname string, newdirVn *vfs.Vnode, newname string) error {
	ent, ok := d.entries.Get(dirent{name: oldname})
	if !ok {
		return kerrno.ENOENT
	}
	if ent.vn.Mode().IsDir() {
		return kerrno.EPERM
	}
	newdir, ok := newdirVn.Impl().(*dirNode)
	if !ok {
		return kerrno.ENOTDIR
	}
	if old, exists := newdir.entries.Get(dirent{name: newname}); exists {
		if old.vn.Mode().IsDir() {
			return kerrno.EISDIR
		}
		newdir.entries.Delete(old)
		if ln, ok := old.vn.Impl().(linkable); ok {
			ln.dropLink()
		}
		old.vn.DecRef()
	}
	d.entries.Delete(ent)
	// The entry's reference moves from d to newdir.
	newdir.entries.ReplaceOrInsert(dirent{name: newname, vn: ent.vn})
	return nil
}

// Readdir implements vfs.VnodeImpl.Readdir. The directory stream is "."
// and ".." followed by the entries in name order, each consuming
// DirentSize bytes of position.
func (d *dirNode) Readdir(pos int64, out *chalk.Dirent) (int, error) {
	if pos < 0 || pos%chalk.DirentSize != 0 {
		return 0, kerrno.EINVAL
	}
	idx := int(pos / chalk.DirentSize)
	switch idx {
	case 0:
		out.Ino = d.vn.Ino()
		out.Name = "."
		return chalk.DirentSize, nil
	case 1:
		out.Ino = d.parent.Ino()
		out.Name = ".."
		return chalk.DirentSize, nil
	}
	idx -= 2
	if idx >= d.entries.Len() {
		return 0, nil
	}
	i := 0
	found := false
	d.entries.Ascend(func(ent dirent) bool {
		if i == idx {
			out.Ino = ent.vn.Ino()
			out.Name = ent.name
			found = true
			return false
		}
		i++
		return true
	})
	if !found {
		return 0, nil
	}
	return chalk.DirentSize, nil
}

// Stat implements vfs.VnodeImpl.Stat.
func (d *dirNode) Stat(buf *chalk.Stat) error {
	buf.Ino = d.vn.Ino()
	buf.Mode = d.vn.Mode()
	buf.Nlink = d.nlink
	buf.Size = int64(d.entries.Len()+2) * chalk.DirentSize
	return nil
}

// linkable is implemented by nodes that track their hard-link count.
type linkable interface {
	addLink()
	dropLink()
}

// regNode implements vfs.VnodeImpl for regular files. File bytes live in
// the vnode's anonymous memory object; the length lives on the vnode.
type regNode struct {
	vfs.NotDirectoryVnode

	fs    *Filesystem
	vn    *vfs.Vnode
	nlink uint32
}

func (r *regNode) addLink()  { r.nlink++ }
func (r *regNode) dropLink() { r.nlink-- }

// Read implements vfs.VnodeImpl.Read.
func (r *regNode) Read(ctx *vfs.Context, pos int64, buf []byte) (int, error) {
	length := r.vn.Length()
	if pos >= length || len(buf) == 0 {
		return 0, nil
	}
	if max := length - pos; int64(len(buf)) > max {
		buf = buf[:max]
	}
	obj := r.vn.Mobj()
	obj.Lock()
	defer obj.Unlock()
	copied := 0
	for copied < len(buf) {
		addr := uintptr(pos) + uintptr(copied)
		pf, err := obj.GetPframe(chalk.AddrToPN(addr), false)
		if err != nil {
			if copied > 0 {
				return copied, nil
			}
			return 0, err
		}
		off := chalk.PageOffset(addr)
		copied += copy(buf[copied:], pf.Data[off:])
		pf.Release()
	}
	return copied, nil
}

// Write implements vfs.VnodeImpl.Write.
func (r *regNode) Write(ctx *vfs.Context, pos int64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	obj := r.vn.Mobj()
	obj.Lock()
	defer obj.Unlock()
	written := 0
	for written < len(buf) {
		addr := uintptr(pos) + uintptr(written)
		pf, err := obj.GetPframe(chalk.AddrToPN(addr), true)
		if err != nil {
			if written > 0 {
				break
			}
			return 0, err
		}
		off := chalk.PageOffset(addr)
		written += copy(pf.Data[off:], buf[written:])
		pf.SetDirty()
		pf.Release()
	}
	if end := pos + int64(written); end > r.vn.Length() {
		r.vn.SetLength(end)
	}
	return written, nil
}

// Mmap implements vfs.VnodeImpl.Mmap: mappings share the file's page
// cache.
func (r *regNode) Mmap() (mm.Mobj, error) {
	obj := r.vn.Mobj()
	obj.IncRef()
	return obj, nil
}

// Truncate implements vfs.TruncatableVnode.
func (r *regNode) Truncate() error {
	obj := r.vn.Mobj()
	obj.Lock()
	obj.(*mm.Anon).InvalidateFrames()
	obj.Unlock()
	r.vn.SetLength(0)
	return nil
}

// Stat implements vfs.VnodeImpl.Stat.
func (r *regNode) Stat(buf *chalk.Stat) error {
	buf.Ino = r.vn.Ino()
	buf.Mode = r.vn.Mode()
	buf.Nlink = r.nlink
	buf.Size = r.vn.Length()
	obj := r.vn.Mobj()
	obj.Lock()
	buf.Blocks = int64(obj.(*mm.Anon).Resident())
	obj.Unlock()
	return nil
}

// deviceNode implements vfs.VnodeImpl for device files, forwarding data
// operations to the registered driver.
type deviceNode struct {
	*vfs.CharDeviceVnode

	fs    *Filesystem
	vn    *vfs.Vnode
	nlink uint32
}

func (d *deviceNode) addLink()  { d.nlink++ }
func (d *deviceNode) dropLink() { d.nlink-- }

// Stat implements vfs.VnodeImpl.Stat.
func (d *deviceNode) Stat(buf *chalk.Stat) error {
	buf.Ino = d.vn.Ino()
	buf.Mode = d.vn.Mode()
	buf.Nlink = d.nlink
	buf.RdevID = d.vn.DevID()
	return nil
}
