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

	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/sentry/loader"
)

// Synthetic exit codes for processes killed by a fault.
const (
	// ExitCodeMemoryFault is the exit code of a process terminated by an
	// access fault or page fault.
	ExitCodeMemoryFault = -2

	// ExitCodeIllegalInstruction is the exit code of a process terminated
	// by an illegal instruction.
	ExitCodeIllegalInstruction = -3
)

// ExitStatus is the exit status of a thread or process.
type ExitStatus struct {
	// Code is the numeric value passed to exit, or a synthetic fault code.
	// It is only meaningful if Signo is zero.
	Code int32

	// Signo is the signal that terminated the thread, or zero.
	Signo linux.Signal
}

// Signaled returns true if the ExitStatus indicates that the exiting thread
// was killed by a signal.
func (es ExitStatus) Signaled() bool {
	return es.Signo != 0
}

// WaitStatus returns the status as reported by wait4.
func (es ExitStatus) WaitStatus() linux.WaitStatus {
	if es.Signaled() {
		return linux.WaitStatusTerminationSignal(es.Signo)
	}
	return linux.WaitStatusExit(es.Code)
}

// String implements fmt.Stringer.String.
func (es ExitStatus) String() string {
	if es.Signaled() {
		return fmt.Sprintf("killed by %v", es.Signo)
	}
	return fmt.Sprintf("exit code %d", es.Code)
}

// Exit terminates the calling thread. If t is the main thread, the whole
// process exits. Exit does not return.
//
// Preconditions: t is the current thread.
func (t *Thread) Exit(es ExitStatus) {
	t.k.exitThread(t, es, false /* group */)
	t.k.proc.exitSwitch(t)
}

// ExitGroup terminates the calling thread's process. It does not return.
//
// Preconditions: t is the current thread.
func (t *Thread) ExitGroup(es ExitStatus) {
	t.k.exitThread(t, es, true /* group */)
	t.k.proc.exitSwitch(t)
}

// ExitCurrent terminates the current thread. It does not return.
func (k *Kernel) ExitCurrent(es ExitStatus) {
	t := k.proc.Current()
	if t == nil {
		invariantViolation("exit with no current thread")
	}
	t.Exit(es)
}

// exitThread runs the first two phases of t's death, and of its process's
// if group is set or t is the main thread. t keeps running on its kernel
// stack until it switches away.
func (k *Kernel) exitThread(t *Thread, es ExitStatus, group bool) {
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	p := t.Process()
	if p == nil {
		invariantViolation("%v running after its process was destroyed", t)
	}
	if group || p.leader == t {
		p.exitMainThreadLocked(es)
		return
	}
	k.stopThreadLocked(t, es)
}

// stopThreadLocked stops scheduling t and releases its user resources: the
// first two phases of thread death. t stays in its process's thread set and
// is freed once every reference has been dropped.
//
// Preconditions: k.treeMu is held.
func (k *Kernel) stopThreadLocked(t *Thread, es ExitStatus) {
	if t.State() == ThreadExited {
		return
	}
	p := t.Process()

	// Phase one. A sleeping thread keeps its sleep registry entry, which is
	// dropped when it expires.
	k.rq.Remove(t)
	k.removeWaiterLocked(t)
	k.leaveSyncQueueLocked(t)
	t.setState(ThreadExited)
	t.exitStatus = es
	if t != k.proc.Current() {
		t.kctx.Kill()
	}

	// Phase two.
	m := p.MemoryManager()
	if t.clearTID != 0 {
		var zero [4]byte
		if _, err := m.CopyOut(t.clearTID, zero[:]); err != nil {
			log.Debugf("[%d] clear_child_tid at %v: %v", t.tid, t.clearTID, err)
		}
		t.clearTID = 0
	}
	if t.stackSlot != 0 {
		if err := loader.UnmapStack(m, t.stackSlot); err != nil {
			log.Debugf("[%d] unmapping user stack %d: %v", t.tid, t.stackSlot, err)
		}
		p.stackSlots.release(t.stackSlot)
		t.stackSlot = 0
	}

	threadsExited.Increment()
	log.Debugf("[%d] Thread exited: %v", t.tid, es)

	// Threads blocked in waittid may be waiting for t.
	k.wakeWaitersLocked(p)
}

// SetClearTID records where to write zero when t exits.
func (t *Thread) SetClearTID(addr hostarch.Addr) {
	t.k.treeMu.Lock()
	defer t.k.treeMu.Unlock()
	t.clearTID = addr
}
