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

package vfs

import (
	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/errors/kerrno"
)

// TruncatableVnode is implemented by regular-file vnodes that support
// O_TRUNC.
type TruncatableVnode interface {
	// Truncate discards the file's contents. The vnode is locked.
	Truncate() error
}

// OpenFile implements open(2): resolve (or create) the path and bind it to
// the lowest free descriptor.
func (v *VFS) OpenFile(ctx *Context, path string, oflags int, mode chalk.FileMode) (int, error) {
	var fmode FMode
	switch oflags & 0x3 {
	case chalk.ORdonly:
		fmode = FModeRead
	case chalk.OWronly:
		fmode = FModeWrite
	case chalk.ORdwr:
		fmode = FModeRead | FModeWrite
	default:
		return 0, kerrno.EINVAL
	}
	if oflags&chalk.OAppend != 0 {
		fmode |= FModeAppend
	}
	if oflags&chalk.OCreat != 0 && mode&chalk.SIFMT == 0 {
		mode |= chalk.SIFREG
	}

	cwd := ctx.FS.Cwd()
	defer cwd.DecRef()
	vn, err := v.Open(cwd, path, oflags, mode, 0)
	if err != nil {
		return 0, err
	}
	if vn.Mode().IsDir() && fmode&FModeWrite != 0 {
		vn.DecRef()
		return 0, kerrno.EISDIR
	}
	if oflags&chalk.OTrunc != 0 && vn.Mode().IsRegular() && fmode&FModeWrite != 0 {
		vn.Lock()
		if tr, ok := vn.Impl().(TruncatableVnode); ok {
			if err := tr.Truncate(); err != nil {
				vn.PutLocked()
				return 0, err
			}
		}
		vn.Unlock()
	}

	f := NewFile(vn, fmode)
	fd, err := ctx.Files.NewFD(f)
	if err != nil {
		f.DecRef()
		return 0, err
	}
	return fd, nil
}

// Read implements read(2).
//
// EBADF if fd is invalid or not open for reading; EISDIR for directories.
func (v *VFS) Read(ctx *Context, fd int, buf []byte) (int, error) {
	f := ctx.Files.Get(fd)
	if f == nil {
		return 0, kerrno.EBADF
	}
	defer f.DecRef()

	vn := f.Vnode()
	vn.Lock()
	if vn.Mode().IsDir() {
		vn.Unlock()
		return 0, kerrno.EISDIR
	}
	if f.Mode&FModeRead == 0 {
		vn.Unlock()
		return 0, kerrno.EBADF
	}
	n, err := vn.Impl().Read(ctx, f.Pos, buf)
	vn.Unlock()
	if err != nil {
		return 0, err
	}
	f.Pos += int64(n)
	return n, nil
}

// Write implements write(2). With FModeAppend the position is reset to the
// vnode's length before every write.
//
// EBADF if fd is invalid or not open for writing.
func (v *VFS) Write(ctx *Context, fd int, buf []byte) (int, error) {
	f := ctx.Files.Get(fd)
	if f == nil {
		return 0, kerrno.EBADF
	}
	defer f.DecRef()

	if f.Mode&FModeWrite == 0 {
		return 0, kerrno.EBADF
	}
	vn := f.Vnode()
	vn.Lock()
	if f.Mode&FModeAppend != 0 {
		f.Pos = vn.Length()
	}
	n, err := vn.Impl().Write(ctx, f.Pos, buf)
	vn.Unlock()
	if err != nil {
		return 0, err
	}
	f.Pos += int64(n)
	return n, nil
}

// Close implements close(2).
func (v *VFS) Close(ctx *Context, fd int) error {
	f := ctx.Files.Remove(fd)
	if f == nil {
		return kerrno.EBADF
	}
	f.DecRef()
	return nil
}

// Dup implements dup(2): share the file under the lowest free descriptor.
func (v *VFS) Dup(ctx *Context, fd int) (int, error) {
	f := ctx.Files.Get(fd)
	if f == nil {
		return 0, kerrno.EBADF
	}
	nfd, err := ctx.Files.NewFD(f)
	if err != nil {
		f.DecRef()
		return 0, err
	}
	return nfd, nil
}

// Dup2 implements dup2(2). Duplicating a descriptor onto itself is a
// no-op; otherwise the target is closed first and then shares the file.
func (v *VFS) Dup2(ctx *Context, ofd, nfd int) (int, error) {
	if nfd < 0 || nfd >= chalk.NFiles {
		return 0, kerrno.EBADF
	}
	f := ctx.Files.Get(ofd)
	if f == nil {
		return 0, kerrno.EBADF
	}
	if ofd == nfd {
		f.DecRef()
		return nfd, nil
	}
	ctx.Files.Install(nfd, f)
	return nfd, nil
}

// Mknod implements mknod(2).
//
// EINVAL unless mode is a character device, block device, or regular file.
func (v *VFS) Mknod(ctx *Context, path string, mode chalk.FileMode, devid chalk.DevID) error {
	if !mode.IsChr() && !mode.IsBlk() && !mode.IsRegular() {
		return kerrno.EINVAL
	}
	cwd := ctx.FS.Cwd()
	defer cwd.DecRef()
	vn, err := v.Open(cwd, path, chalk.OCreat, mode, devid)
	if err != nil {
		return err
	}
	vn.DecRef()
	return nil
}

// Mkdir implements mkdir(2). The parent's mkdir operation runs only after
// a lookup confirms the name is absent.
func (v *VFS) Mkdir(ctx *Context, path string) error {
	cwd := ctx.FS.Cwd()
	defer cwd.DecRef()
	parent, name, err := v.Dir(cwd, path)
	if err != nil {
		return err
	}
	if len(name) > chalk.NameLen {
		parent.DecRef()
		return kerrno.ENAMETOOLONG
	}
	parent.Lock()
	existing, err := v.Lookup(parent, name)
	if err == nil {
		if existing == parent {
			parent.DecRef()
		} else {
			existing.DecRef()
		}
		parent.PutLocked()
		return kerrno.EEXIST
	}
	if err != kerrno.ENOENT {
		parent.PutLocked()
		return err
	}
	created, err := parent.Impl().Mkdir(name)
	parent.PutLocked()
	if err != nil {
		return err
	}
	created.DecRef()
	return nil
}

// Rmdir implements rmdir(2). The "." and ".." checks apply to the basename
// token returned by Dir, not to the raw path tail.
//
// EINVAL for ".", ENOTEMPTY for "..".
func (v *VFS) Rmdir(ctx *Context, path string) error {
	cwd := ctx.FS.Cwd()
	defer cwd.DecRef()
	parent, name, err := v.Dir(cwd, path)
	if err != nil {
		return err
	}
	switch name {
	case ".":
		parent.DecRef()
		return kerrno.EINVAL
	case "..":
		parent.DecRef()
		return kerrno.ENOTEMPTY
	}
	parent.Lock()
	err = parent.Impl().Rmdir(name)
	parent.PutLocked()
	return err
}

// Unlink implements unlink(2).
//
// EPERM if the entry is a directory.
func (v *VFS) Unlink(ctx *Context, path string) error {
	cwd := ctx.FS.Cwd()
	defer cwd.DecRef()
	parent, name, err := v.Dir(cwd, path)
	if err != nil {
		return err
	}
	parent.Lock()
	found, err := v.Lookup(parent, name)
	if err != nil {
		parent.PutLocked()
		return err
	}
	if found.Mode().IsDir() {
		if found == parent {
			parent.DecRef()
		} else {
			found.DecRef()
		}
		parent.PutLocked()
		return kerrno.EPERM
	}
	err = parent.Impl().Unlink(name)
	found.DecRef()
	parent.PutLocked()
	return err
}

// Link implements link(2): newpath becomes an additional hard link to the
// file at oldpath. The target and the new parent are locked ancestor-first.
//
// EPERM if oldpath is a directory.
func (v *VFS) Link(ctx *Context, oldpath, newpath string) error {
	cwd := ctx.FS.Cwd()
	defer cwd.DecRef()
	target, err := v.Resolve(cwd, oldpath)
	if err != nil {
		return err
	}
	if target.Mode().IsDir() {
		target.DecRef()
		return kerrno.EPERM
	}
	parent, name, err := v.Dir(cwd, newpath)
	if err != nil {
		target.DecRef()
		return err
	}
	if len(name) > chalk.NameLen {
		target.DecRef()
		parent.DecRef()
		return kerrno.ENAMETOOLONG
	}
	if !parent.Mode().IsDir() {
		target.DecRef()
		parent.DecRef()
		return kerrno.ENOTDIR
	}
	LockInOrder(target, parent)
	err = parent.Impl().Link(name, target)
	UnlockInOrder(target, parent)
	target.DecRef()
	parent.DecRef()
	return err
}

// Rename implements rename(2). Both parents are locked ancestor-first, and
// the global rename mutex serializes renames that cross directories.
func (v *VFS) Rename(ctx *Context, oldpath, newpath string) error {
	cwd := ctx.FS.Cwd()
	defer cwd.DecRef()
	olddir, oldname, err := v.Dir(cwd, oldpath)
	if err != nil {
		return err
	}
	if !olddir.Mode().IsDir() {
		olddir.DecRef()
		return kerrno.ENOTDIR
	}
	newdir, newname, err := v.Dir(cwd, newpath)
	if err != nil {
		olddir.DecRef()
		return err
	}
	if !newdir.Mode().IsDir() {
		olddir.DecRef()
		newdir.DecRef()
		return kerrno.ENOTDIR
	}
	if len(newname) > chalk.NameLen {
		olddir.DecRef()
		newdir.DecRef()
		return kerrno.ENAMETOOLONG
	}
	if olddir != newdir {
		v.renameMu.Lock()
		defer v.renameMu.Unlock()
	}
	LockInOrder(olddir, newdir)
	err = olddir.Impl().Rename(oldname, newdir, newname)
	UnlockInOrder(olddir, newdir)
	olddir.DecRef()
	newdir.DecRef()
	return err
}

// Chdir implements chdir(2): swap the process's working directory.
//
// ENOTDIR if path does not resolve to a directory.
func (v *VFS) Chdir(ctx *Context, path string) error {
	cwd := ctx.FS.Cwd()
	defer cwd.DecRef()
	vn, err := v.Resolve(cwd, path)
	if err != nil {
		return err
	}
	if !vn.Mode().IsDir() {
		vn.DecRef()
		return kerrno.ENOTDIR
	}
	ctx.FS.SetCwd(vn)
	return nil
}

// Getdent implements getdent(2): fill d with the next directory entry and
// return DirentSize, or 0 at the end of the directory. The file position
// advances by however many bytes the filesystem's readdir consumed.
func (v *VFS) Getdent(ctx *Context, fd int, d *chalk.Dirent) (int, error) {
	f := ctx.Files.Get(fd)
	if f == nil {
		return 0, kerrno.EBADF
	}
	defer f.DecRef()

	vn := f.Vnode()
	if !vn.Mode().IsDir() {
		return 0, kerrno.ENOTDIR
	}
	vn.Lock()
	n, err := vn.Impl().Readdir(f.Pos, d)
	vn.Unlock()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	f.Pos += int64(n)
	return chalk.DirentSize, nil
}

// Lseek implements lseek(2).
//
// EINVAL for an unknown whence or a negative resulting position.
func (v *VFS) Lseek(ctx *Context, fd int, offset int64, whence int) (int64, error) {
	f := ctx.Files.Get(fd)
	if f == nil {
		return 0, kerrno.EBADF
	}
	defer f.DecRef()

	switch whence {
	case chalk.SeekSet:
		if offset < 0 {
			return 0, kerrno.EINVAL
		}
		f.Pos = offset
	case chalk.SeekCur:
		if f.Pos+offset < 0 {
			return 0, kerrno.EINVAL
		}
		f.Pos += offset
	case chalk.SeekEnd:
		vn := f.Vnode()
		vn.Lock()
		length := vn.Length()
		vn.Unlock()
		if length+offset < 0 {
			return 0, kerrno.EINVAL
		}
		f.Pos = length + offset
	default:
		return 0, kerrno.EINVAL
	}
	return f.Pos, nil
}

// Stat implements stat(2).
func (v *VFS) Stat(ctx *Context, path string, buf *chalk.Stat) error {
	cwd := ctx.FS.Cwd()
	defer cwd.DecRef()
	vn, err := v.Resolve(cwd, path)
	if err != nil {
		return err
	}
	vn.Lock()
	err = vn.Impl().Stat(buf)
	vn.PutLocked()
	return err
}
