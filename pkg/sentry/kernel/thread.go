// Copyright 2026 The rvos Authors.
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
	"fmt"
	"sync/atomic"

	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/ilist"
	"rvos.dev/rvos/pkg/refs"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/mm"
	"rvos.dev/rvos/pkg/sentry/platform"
)

// ThreadID is a thread identifier. A process is identified by the ID of its
// main thread.
type ThreadID int32

// ThreadState is the scheduling state of a thread.
type ThreadState int32

// Thread states.
const (
	// ThreadReady threads are runnable and either queued or about to be.
	ThreadReady ThreadState = iota

	// ThreadRunning is the state of the thread holding the processor.
	ThreadRunning

	// ThreadBlocked threads are asleep or waiting for an exit.
	ThreadBlocked

	// ThreadExited is terminal.
	ThreadExited
)

// String implements fmt.Stringer.String.
func (s ThreadState) String() string {
	switch s {
	case ThreadReady:
		return "Ready"
	case ThreadRunning:
		return "Running"
	case ThreadBlocked:
		return "Blocked"
	case ThreadExited:
		return "Exited"
	default:
		return fmt.Sprintf("ThreadState(%d)", int32(s))
	}
}

// validTransition returns true if a thread may move from one state to the
// other.
func validTransition(from, to ThreadState) bool {
	switch from {
	case ThreadReady:
		return to == ThreadRunning || to == ThreadExited
	case ThreadRunning:
		return to == ThreadReady || to == ThreadBlocked || to == ThreadExited
	case ThreadBlocked:
		return to == ThreadReady || to == ThreadExited
	}
	return false
}

// processRef weakly refers to a process. It is resolved through the kernel
// process table and does not keep the process alive.
type processRef struct {
	pid ThreadID
	gen uint64
}

// Thread is a thread control block.
//
// A Thread is reference counted. References are held by its process's
// thread list, the ready queue while queued, the processor slot while
// running, the sleep registry while asleep, and a process's waiter list or a
// synchronization object's queue while waiting. The thread is freed when
// the last reference is dropped.
type Thread struct {
	refs.Refs[Thread]

	// Entry links the thread into its process's thread list. Protected by
	// Kernel.treeMu.
	ilist.Entry[*Thread]

	k   *Kernel
	tid ThreadID

	// proc is the owning process.
	proc processRef

	state atomic.Int32

	// kctx is the thread's kernel context. Its goroutine runs Thread.run.
	kctx platform.KernelContext

	// kstack is released by the idle loop once the thread has exited and
	// switched away for the last time.
	kstack atomic.Pointer[KernelStack]

	// ready is protected by ReadyQueue.mu.
	ready readyEntry

	// sleep is the thread's pending sleep entry. Protected by
	// SleepRegistry.mu.
	sleep *sleepEntry

	// waitingOn is the process whose waiter list holds the thread.
	// Protected by Kernel.treeMu.
	waitingOn *Process

	// syncQueue is the mutex, semaphore or condition variable queue holding
	// the thread. Protected by Kernel.treeMu.
	syncQueue *syncQueue

	// interrupted is set when a signal cuts a blocking operation short.
	interrupted atomic.Bool

	// signals is protected by the process's signalMu.
	signals SignalReceiver

	// The following fields are protected by Kernel.treeMu.
	exitStatus ExitStatus
	stackSlot  int
	clearTID   hostarch.Addr

	// The following fields are only used by the thread's goroutine.
	runState  threadRunState
	sigFrames []signalFrame
}

// threadConfig holds the parameters of a new thread.
type threadConfig struct {
	tid        ThreadID
	process    *Process
	regs       arch.Registers
	signalMask linux.SignalSet
	stackSlot  int
}

// newThread allocates a kernel stack and creates a Ready thread with one
// reference, owned by the caller. The thread is not yet linked into its
// process or queued.
func (k *Kernel) newThread(cfg threadConfig) (*Thread, error) {
	ks, err := k.kstacks.Allocate()
	if err != nil {
		return nil, err
	}
	t := &Thread{
		k:         k,
		tid:       cfg.tid,
		proc:      cfg.process.ref(),
		stackSlot: cfg.stackSlot,
	}
	t.InitRefs()
	t.ready.t = t
	t.signals.mask = cfg.signalMask &^ linux.UnblockableSignals
	t.kstack.Store(ks)
	*ks.TrapContext() = cfg.regs
	t.kctx.Init(uint64(trapReturnAddr), uint64(ks.Top()), t.run)
	t.state.Store(int32(ThreadReady))
	k.table.addThread(t)
	threadsCreated.Increment()
	return t, nil
}

// DecRef drops a reference, freeing t when none remain.
func (t *Thread) DecRef() {
	t.Refs.DecRef(t.destroy)
}

// destroy frees the thread control block.
func (t *Thread) destroy() {
	if s := t.State(); s != ThreadExited {
		invariantViolation("freeing %v in state %v", t, s)
	}
	if t.k.sleepers.Contains(t) {
		invariantViolation("freeing %v while it is registered in the sleep registry", t)
	}
	t.releaseKernelStack()
	t.k.table.removeThread(t.tid)
	t.k.tids.release(int(t.tid))
	threadsFreed.Increment()
}

// releaseKernelStack returns the kernel stack to the pool if it has not been
// released yet.
func (t *Thread) releaseKernelStack() {
	if ks := t.kstack.Swap(nil); ks != nil {
		t.k.kstacks.Release(ks)
	}
}

// ThreadID returns the thread's ID.
func (t *Thread) ThreadID() ThreadID {
	return t.tid
}

// Kernel returns the kernel t belongs to.
func (t *Thread) Kernel() *Kernel {
	return t.k
}

// State returns the thread's scheduling state.
func (t *Thread) State() ThreadState {
	return ThreadState(t.state.Load())
}

// setState moves t to state to. Illegal transitions panic.
func (t *Thread) setState(to ThreadState) {
	from := t.State()
	if !validTransition(from, to) {
		invariantViolation("%v: illegal state transition %v -> %v", t, from, to)
	}
	t.state.Store(int32(to))
}

// Process returns the owning process, or nil if it has been destroyed.
func (t *Thread) Process() *Process {
	return t.k.table.lookup(t.proc)
}

// KernelStack returns the thread's kernel stack, or nil once released.
func (t *Thread) KernelStack() *KernelStack {
	return t.kstack.Load()
}

// Regs returns the thread's trap context.
//
// Preconditions: the kernel stack has not been released.
func (t *Thread) Regs() *arch.Registers {
	return t.kstack.Load().TrapContext()
}

// MemoryManager returns the address space of the owning process.
func (t *Thread) MemoryManager() *mm.MemoryManager {
	return t.Process().MemoryManager()
}

// IsMainThread returns true if t is its process's main thread.
func (t *Thread) IsMainThread() bool {
	p := t.Process()
	if p == nil {
		return false
	}
	t.k.treeMu.Lock()
	defer t.k.treeMu.Unlock()
	return p.leader == t
}

// ExitStatus returns the thread's exit status. It is only meaningful once the
// thread has exited.
func (t *Thread) ExitStatus() ExitStatus {
	t.k.treeMu.Lock()
	defer t.k.treeMu.Unlock()
	return t.exitStatus
}

// CopyIn copies len(dst) bytes from the thread's address space.
func (t *Thread) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	return t.MemoryManager().CopyIn(addr, dst)
}

// CopyOut copies src to the thread's address space.
func (t *Thread) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	return t.MemoryManager().CopyOut(addr, src)
}

// String implements fmt.Stringer.String.
func (t *Thread) String() string {
	return fmt.Sprintf("thread %d (process %d)", t.tid, t.proc.pid)
}

// block gives up the hart until the thread is made runnable again.
//
// Preconditions: t is the current thread and is no longer Running.
func (t *Thread) block() {
	t.k.proc.switchToIdle(t)
}

// Yield moves the current thread to the back of the ready queue.
func (t *Thread) Yield() {
	t.setState(ThreadReady)
	t.k.rq.Enqueue(t)
	t.block()
}
