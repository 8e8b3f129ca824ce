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

package kernel

import (
	"sync/atomic"

	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/errors/kerrno"
	"chalkos.dev/chalkos/pkg/log"
	"chalkos.dev/chalkos/pkg/mm"
	"chalkos.dev/chalkos/pkg/sync"
	"chalkos.dev/chalkos/pkg/vfs"
	"chalkos.dev/chalkos/pkg/vm"
)

// TaskState is a task's lifecycle state.
type TaskState int32

// Task states.
const (
	TaskCreated TaskState = iota
	TaskRunning
	TaskExited
)

// Task is a kernel thread and the process state it runs with: address
// space, descriptor table, filesystem context, and heap bounds. Syscall
// handlers receive the task explicitly; there is no ambient current-task
// global.
type Task struct {
	k      *Kernel
	tid    int64
	parent *Task

	state atomic.Int32

	// cancelCh fires when the task is cancelled; cancellable sleeps
	// select on it.
	cancelCh   chan struct{}
	cancelOnce sync.Once
	cancelled  atomic.Bool

	// done closes when the task exits.
	done       chan struct{}
	exitStatus int

	mu       sync.Mutex
	children map[int64]*Task
	exited   []*Task
	childCv  *sync.Cond

	// Files, FS and MM are the per-process resources released at exit.
	Files *vfs.FDTable
	FS    *vfs.FSContext
	MM    *vm.VMMap

	pt *mm.PageTable

	// startBrk and brk delimit the heap; startBrk is fixed by the
	// loader, brk moves.
	startBrk uintptr
	brk      uintptr
}

func (k *Kernel) newTask(parent *Task) *Task {
	t := &Task{
		k:        k,
		tid:      k.nextTID.Add(1),
		parent:   parent,
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
		children: make(map[int64]*Task),
		pt:       mm.NewPageTable(),
	}
	t.childCv = sync.NewCond(&t.mu)
	k.registerTask(t)
	return t
}

// NewInitTask creates the first task: empty address space, empty
// descriptor table, cwd at the root.
func (k *Kernel) NewInitTask() *Task {
	t := k.newTask(nil)
	t.MM = vm.NewVMMap(t.pt)
	t.Files = vfs.NewFDTable()
	t.FS = vfs.NewFSContext(k.vfs.Root())
	return t
}

// TID returns the task id.
func (t *Task) TID() int64 { return t.tid }

// State returns the task's lifecycle state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// PageTable returns the task's pagetable.
func (t *Task) PageTable() *mm.PageTable { return t.pt }

// SyscallContext returns the context the syscall layer operates on.
func (t *Task) SyscallContext() *vfs.Context {
	return &vfs.Context{
		Cancel: t.cancelCh,
		Files:  t.Files,
		FS:     t.FS,
	}
}

// SetBrkRegion fixes the starting break, as the loader does after placing
// the data segment.
func (t *Task) SetBrkRegion(start uintptr) {
	t.startBrk = start
	t.brk = start
}

// Brk implements the brk(2) syscall for this task.
func (t *Task) Brk(addr uintptr) (uintptr, error) {
	newBrk, err := vm.Brk(t.MM, t.startBrk, t.brk, addr)
	if err != nil {
		return 0, err
	}
	t.brk = newBrk
	return newBrk, nil
}

// Mmap implements the mmap(2) syscall for this task.
func (t *Task) Mmap(addr uintptr, length int, prot, flags, fd int, off int64) (uintptr, error) {
	var f *vfs.File
	if flags&chalk.MapAnon == 0 {
		if f = t.Files.Get(fd); f == nil {
			return 0, kerrno.EBADF
		}
		defer f.DecRef()
	}
	return vm.Mmap(t.MM, f, addr, length, prot, flags, off)
}

// Munmap implements the munmap(2) syscall for this task.
func (t *Task) Munmap(addr uintptr, length int) error {
	return vm.Munmap(t.MM, addr, length)
}

// HandleFault resolves a user page fault, terminating the task with
// EFAULT status when it cannot be resolved.
func (t *Task) HandleFault(vaddr uintptr, cause uint32) error {
	if err := vm.HandleFault(t.MM, vaddr, cause); err != nil {
		log.Warningf("task %d: unresolvable fault at %#x: %v", t.tid, vaddr, err)
		t.Exit(kerrno.ToErrno(kerrno.EFAULT))
		return err
	}
	return nil
}

// Fork clones the task: the child shares open files and the working
// directory reference, and receives a copy-on-write clone of the address
// space. The parent's translations are unmapped and its TLB flushed so
// post-fork writes fault into the new shadows; from the parent's
// perspective the address space is unchanged.
func (t *Task) Fork() (*Task, error) {
	child := t.k.newTask(t)
	child.MM = t.MM.Clone(child.pt)
	child.Files = t.Files.Fork()
	child.FS = t.FS.Fork()
	child.startBrk = t.startBrk
	child.brk = t.brk

	t.pt.UnmapRange(chalk.UserMemLowPN, chalk.UserMemHighPN)
	t.pt.FlushTLBAll()

	t.mu.Lock()
	t.children[child.tid] = child
	t.mu.Unlock()

	log.Debugf("task %d: forked child %d", t.tid, child.tid)
	return child, nil
}

// Start runs fn on the task in a new kernel thread. If fn returns without
// exiting, the task exits with status 0.
func (t *Task) Start(fn func(*Task)) {
	if !t.state.CompareAndSwap(int32(TaskCreated), int32(TaskRunning)) {
		panic("task started twice")
	}
	go func() {
		fn(t)
		if t.State() != TaskExited {
			t.Exit(0)
		}
	}()
}

// Cancel requests cancellation: the cancelled bit is set and any
// cancellable sleep is interrupted, returning EINTR to the sleeper, which
// unwinds holding no kernel locks.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
	t.cancelOnce.Do(func() { close(t.cancelCh) })
}

// Cancelled returns whether Cancel has been called.
func (t *Task) Cancelled() bool { return t.cancelled.Load() }

// Exit terminates the task: per-process resources are released in
// reference-count order and the parent is woken.
func (t *Task) Exit(status int) {
	if !t.state.CompareAndSwap(int32(TaskRunning), int32(TaskExited)) &&
		!t.state.CompareAndSwap(int32(TaskCreated), int32(TaskExited)) {
		return
	}
	t.exitStatus = status

	t.Files.CloseAll()
	t.FS.Release()
	t.MM.Destroy()
	t.k.unregisterTask(t)

	if p := t.parent; p != nil {
		p.mu.Lock()
		delete(p.children, t.tid)
		p.exited = append(p.exited, t)
		p.childCv.Signal()
		p.mu.Unlock()
		// The parent's surviving shadows may now be collapsible.
		p.MM.Collapse()
	}
	close(t.done)
	log.Debugf("task %d: exited with status %d", t.tid, status)
}

// WaitAny implements waitpid(-1): block until some child has exited and
// return its id and exit status.
//
// ECHILD when the task has no children to wait for.
func (t *Task) WaitAny() (int64, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.exited) == 0 {
		if len(t.children) == 0 {
			return 0, 0, kerrno.ECHILD
		}
		t.childCv.Wait()
	}
	child := t.exited[0]
	t.exited = t.exited[1:]
	return child.tid, child.exitStatus, nil
}

// Wait blocks until the task itself exits and returns its status.
func (t *Task) Wait() int {
	<-t.done
	return t.exitStatus
}
