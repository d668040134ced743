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
	"rvos.dev/rvos/pkg/errors/linuxerr"
)

// WaitOptions controls the behavior of Thread.Wait.
type WaitOptions struct {
	// PID selects the child to wait for. -1 selects any child.
	PID ThreadID

	// NonBlocking makes Wait return immediately with a zero pid if no
	// matching child has exited.
	NonBlocking bool

	// Report, if set, is given the pid and exit status of the matched child
	// before it is reaped. If it fails, the child stays waitable and Wait
	// returns the error. Report runs with Kernel.treeMu held.
	Report func(pid ThreadID, es ExitStatus) error
}

// Wait waits for a child of t's process to exit, reaps it and returns its
// pid and exit status. It fails with ECHILD if no child matches and with
// EINTR if a signal arrives while blocked.
//
// Preconditions: t is the current thread.
func (t *Thread) Wait(opts WaitOptions) (ThreadID, ExitStatus, error) {
	k := t.k
	for {
		k.treeMu.Lock()
		p := t.Process()
		c, matched := p.findChildLocked(opts.PID)
		if c != nil {
			if opts.Report != nil {
				if err := opts.Report(c.pid, c.exitStatus); err != nil {
					k.treeMu.Unlock()
					return 0, ExitStatus{}, err
				}
			}
			es := p.reapLocked(c)
			k.treeMu.Unlock()
			return c.pid, es, nil
		}
		if !matched {
			k.treeMu.Unlock()
			return 0, ExitStatus{}, linuxerr.ECHILD
		}
		if opts.NonBlocking {
			k.treeMu.Unlock()
			return 0, ExitStatus{}, nil
		}
		if t.hasPendingSignal() {
			k.treeMu.Unlock()
			return 0, ExitStatus{}, linuxerr.EINTR
		}
		k.addWaiterLocked(p, t)
		k.treeMu.Unlock()

		t.block()
		if t.interrupted.Swap(false) {
			return 0, ExitStatus{}, linuxerr.EINTR
		}
	}
}

// WaitThread waits for the thread tid of t's process to exit, collects it
// and returns its exit status. The main thread cannot be waited for, and
// neither can the thread whose tid is the pid: after an exec from another
// thread it stays in the thread set, holding the pid, until the process is
// destroyed. It fails with ESRCH if there is no such thread.
//
// Preconditions: t is the current thread.
func (t *Thread) WaitThread(tid ThreadID) (ExitStatus, error) {
	k := t.k
	for {
		k.treeMu.Lock()
		p := t.Process()
		target := p.threadLocked(tid)
		if target == nil || target == p.leader || target.tid == p.pid {
			k.treeMu.Unlock()
			return ExitStatus{}, linuxerr.ESRCH
		}
		if target == t {
			k.treeMu.Unlock()
			return ExitStatus{}, linuxerr.EDEADLK
		}
		if target.State() == ThreadExited {
			p.threads.Remove(target)
			es := target.exitStatus
			k.treeMu.Unlock()
			target.DecRef()
			return es, nil
		}
		if t.hasPendingSignal() {
			k.treeMu.Unlock()
			return ExitStatus{}, linuxerr.EINTR
		}
		k.addWaiterLocked(p, t)
		k.treeMu.Unlock()

		t.block()
		if t.interrupted.Swap(false) {
			return ExitStatus{}, linuxerr.EINTR
		}
	}
}

// threadLocked returns the thread tid in p's thread set.
//
// Preconditions: p.k.treeMu is held.
func (p *Process) threadLocked(tid ThreadID) *Thread {
	for t := p.threads.Front(); t != nil; t = t.Next() {
		if t.tid == tid {
			return t
		}
	}
	return nil
}

// addWaiterLocked blocks t, the current thread, until p's waiters are woken.
//
// Preconditions: k.treeMu is held.
func (k *Kernel) addWaiterLocked(p *Process, t *Thread) {
	t.IncRef()
	t.waitingOn = p
	p.waiters = append(p.waiters, t)
	k.rq.Remove(t)
	t.setState(ThreadBlocked)
}

// removeWaiterLocked removes t from the waiter list it is on, if any, and
// reports whether it was on one.
//
// Preconditions: k.treeMu is held.
func (k *Kernel) removeWaiterLocked(t *Thread) bool {
	p := t.waitingOn
	if p == nil {
		return false
	}
	for i, w := range p.waiters {
		if w == t {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	t.waitingOn = nil
	t.DecRef()
	return true
}

// wakeWaitersLocked makes every thread waiting on p runnable.
//
// Preconditions: k.treeMu is held.
func (k *Kernel) wakeWaitersLocked(p *Process) {
	waiters := p.waiters
	p.waiters = nil
	for _, w := range waiters {
		w.waitingOn = nil
		w.setState(ThreadReady)
		k.rq.Enqueue(w)
		w.DecRef()
	}
}
