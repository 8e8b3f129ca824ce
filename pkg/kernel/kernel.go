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

// Package kernel ties the subsystems together: tasks with their address
// spaces, descriptor tables and filesystem contexts, fork and exit, and
// the boot sequence that mounts the root filesystem and populates /dev.
package kernel

import (
	"sync/atomic"

	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/drivers/memdev"
	"chalkos.dev/chalkos/pkg/drivers/tty"
	"chalkos.dev/chalkos/pkg/log"
	"chalkos.dev/chalkos/pkg/sync"
	"chalkos.dev/chalkos/pkg/vfs"
	"chalkos.dev/chalkos/pkg/vfs/ramfs"
)

// Kernel is one kernel instance: a mounted VFS plus the task table.
type Kernel struct {
	vfs *vfs.VFS

	mu      sync.Mutex
	tasks   map[int64]*Task
	nextTID atomic.Int64
}

// New returns a kernel with fs mounted as its root.
func New(fs vfs.FileSystem) *Kernel {
	return &Kernel{
		vfs:   vfs.New(fs),
		tasks: make(map[int64]*Task),
	}
}

// VFS returns the kernel's virtual filesystem.
func (k *Kernel) VFS() *vfs.VFS { return k.vfs }

// Tasks returns a snapshot of the live tasks.
func (k *Kernel) Tasks() []*Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*Task, 0, len(k.tasks))
	for _, t := range k.tasks {
		out = append(out, t)
	}
	return out
}

func (k *Kernel) registerTask(t *Task) {
	k.mu.Lock()
	k.tasks[t.tid] = t
	k.mu.Unlock()
}

func (k *Kernel) unregisterTask(t *Task) {
	k.mu.Lock()
	delete(k.tasks, t.tid)
	k.mu.Unlock()
}

// Boot constructs a kernel over a fresh ramfs root: registers the memory
// devices and a console TTY echoing to term, and creates /dev with the
// standard nodes. Returns the kernel, the console TTY, and the init task.
func Boot(term tty.Terminal) (*Kernel, *tty.TTY, *Task, error) {
	memdev.Register()
	console := tty.NewTTY(term)
	console.Register(chalk.TTY0DevID)

	k := New(ramfs.New())
	t := k.NewInitTask()

	ctx := t.SyscallContext()
	if err := k.vfs.Mkdir(ctx, "/dev"); err != nil {
		return nil, nil, nil, err
	}
	for _, dev := range []struct {
		path string
		id   chalk.DevID
	}{
		{"/dev/null", chalk.MemNullDevID},
		{"/dev/zero", chalk.MemZeroDevID},
		{"/dev/tty0", chalk.TTY0DevID},
	} {
		if err := k.vfs.Mknod(ctx, dev.path, chalk.SIFCHR, dev.id); err != nil {
			return nil, nil, nil, err
		}
	}
	log.Infof("kernel: booted, root mounted, %d devices", 3)
	return k, console, t, nil
}
