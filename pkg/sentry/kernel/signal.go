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
	"sync"

	"github.com/mohae/deepcopy"

	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/log"
)

// defaultIgnored contains the signals whose default action is to do nothing.
// There is no job control, so the stop and continue signals are among them.
var defaultIgnored = linux.MakeSignalSet(
	linux.SIGCHLD, linux.SIGURG, linux.SIGWINCH, linux.SIGCONT,
	linux.SIGSTOP, linux.SIGTSTP, linux.SIGTTIN, linux.SIGTTOU,
)

// SigHandlers holds the signal actions of a process.
type SigHandlers struct {
	mu sync.Mutex

	// actions holds the actions that are not SIG_DFL with no flags.
	actions map[linux.Signal]linux.SigAction
}

// NewSigHandlers returns handlers with every signal at its default action.
func NewSigHandlers() *SigHandlers {
	return &SigHandlers{actions: make(map[linux.Signal]linux.SigAction)}
}

// Fork returns a copy of sh.
func (sh *SigHandlers) Fork() *SigHandlers {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return &SigHandlers{actions: deepcopy.Copy(sh.actions).(map[linux.Signal]linux.SigAction)}
}

// Get returns the action for sig.
func (sh *SigHandlers) Get(sig linux.Signal) linux.SigAction {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.actions[sig]
}

// Set replaces the action for sig and returns the old one. The actions of
// SIGKILL and SIGSTOP cannot be changed.
func (sh *SigHandlers) Set(sig linux.Signal, act linux.SigAction) (linux.SigAction, error) {
	if !sig.IsValid() || sig == linux.SIGKILL || sig == linux.SIGSTOP {
		return linux.SigAction{}, linuxerr.EINVAL
	}
	act.Mask &^= linux.UnblockableSignals
	sh.mu.Lock()
	defer sh.mu.Unlock()
	old := sh.actions[sig]
	if act == (linux.SigAction{}) {
		delete(sh.actions, sig)
	} else {
		sh.actions[sig] = act
	}
	return old, nil
}

// Reset restores the default action of every caught signal, as on exec.
// Ignored signals stay ignored.
func (sh *SigHandlers) Reset() {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for sig, act := range sh.actions {
		if act.Handler != linux.SIG_IGN {
			delete(sh.actions, sig)
		}
	}
}

// IsIgnored returns true if delivering sig would have no effect.
func (sh *SigHandlers) IsIgnored(sig linux.Signal) bool {
	if sig == linux.SIGKILL {
		return false
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	act := sh.actions[sig]
	switch act.Handler {
	case linux.SIG_IGN:
		return true
	case linux.SIG_DFL:
		return defaultIgnored&linux.SignalSetOf(sig) != 0
	}
	return false
}

// dequeueAction returns the action to take for sig, resetting it to the
// default first if it was installed with SA_RESETHAND.
func (sh *SigHandlers) dequeueAction(sig linux.Signal) linux.SigAction {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	act := sh.actions[sig]
	if act.IsResetHandler() && act.Handler != linux.SIG_DFL && act.Handler != linux.SIG_IGN {
		delete(sh.actions, sig)
	}
	return act
}

// SignalReceiver is a thread's signal state.
type SignalReceiver struct {
	// mask holds the blocked signals. It never contains SIGKILL or
	// SIGSTOP.
	mask linux.SignalSet

	// pending holds the signals forwarded to the thread and not yet
	// delivered.
	pending linux.SignalSet
}

// SendSignal raises sig on the process pid. A zero sig only checks that the
// process exists. It fails with ESRCH if there is no such process.
func (k *Kernel) SendSignal(pid ThreadID, sig linux.Signal) error {
	if sig != 0 && !sig.IsValid() {
		return linuxerr.EINVAL
	}
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	p := k.table.process(pid)
	if p == nil || p.destroyed {
		return linuxerr.ESRCH
	}
	if sig == 0 {
		return nil
	}
	k.sendSignalLocked(p, sig)
	return nil
}

// SendThreadSignal raises sig on the thread tid only. It fails with ESRCH if
// the thread does not exist or has exited.
func (k *Kernel) SendThreadSignal(tid ThreadID, sig linux.Signal) error {
	if sig != 0 && !sig.IsValid() {
		return linuxerr.EINVAL
	}
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	t := k.table.thread(tid)
	if t == nil || t.State() == ThreadExited {
		return linuxerr.ESRCH
	}
	if sig == 0 {
		return nil
	}
	p := t.Process()
	if p.handlers.IsIgnored(sig) {
		return nil
	}
	p.signalMu.Lock()
	t.signals.pending |= linux.SignalSetOf(sig)
	masked := t.signals.mask&linux.SignalSetOf(sig) != 0
	p.signalMu.Unlock()
	if !masked {
		k.interruptLocked(t)
	}
	return nil
}

// sendSignalLocked raises sig on p. The signal is marked pending on the
// process and forwarded to the first thread that does not block it, or to
// the main thread if every thread blocks it. A blocked target that does not
// mask the signal is woken. SIGKILL is made pending on, and wakes, every
// thread.
//
// Signals whose action is to be ignored are discarded at send time, as are
// signals sent to a process that has exited.
//
// Preconditions: k.treeMu is held.
func (k *Kernel) sendSignalLocked(p *Process, sig linux.Signal) {
	if p.exited || p.handlers.IsIgnored(sig) {
		return
	}
	bit := linux.SignalSetOf(sig)

	if sig == linux.SIGKILL {
		// Fatal to the whole process: every thread is woken so none stays
		// blocked until the group exit reaches it.
		var targets []*Thread
		p.signalMu.Lock()
		for t := p.threads.Front(); t != nil; t = t.Next() {
			if t.State() != ThreadExited {
				t.signals.pending |= bit
				targets = append(targets, t)
			}
		}
		p.signalMu.Unlock()
		for _, t := range targets {
			k.interruptLocked(t)
		}
		return
	}

	// Masks only change under signalMu, so the forward sees each thread's
	// mask either before or after a concurrent sigprocmask.
	p.signalMu.Lock()
	p.pendingSignals |= bit
	target := p.leader
	for t := p.threads.Front(); t != nil; t = t.Next() {
		if t.State() != ThreadExited && t.signals.mask&bit == 0 {
			target = t
			break
		}
	}
	target.signals.pending |= bit
	p.pendingSignals &^= bit
	masked := target.signals.mask&bit != 0
	p.signalMu.Unlock()

	log.Debugf("Signal %v to process %d forwarded to thread %d", sig, p.pid, target.tid)
	if !masked {
		k.interruptLocked(target)
	}
}

// interruptLocked cuts short the sleep or wait t is blocked in, if any, and
// makes it runnable. The interrupted operation fails with EINTR.
//
// Preconditions: k.treeMu is held.
func (k *Kernel) interruptLocked(t *Thread) {
	if t.State() != ThreadBlocked {
		return
	}
	if !k.sleepers.Cancel(t) && !k.removeWaiterLocked(t) && !k.leaveSyncQueueLocked(t) {
		return
	}
	t.interrupted.Store(true)
	t.setState(ThreadReady)
	k.rq.Enqueue(t)
}

// hasPendingSignal returns true if t has a deliverable signal.
func (t *Thread) hasPendingSignal() bool {
	p := t.Process()
	p.signalMu.Lock()
	defer p.signalMu.Unlock()
	return t.signals.pending&^t.signals.mask != 0
}

// CheckPending removes and returns the lowest-numbered pending signal that
// t does not mask.
func (t *Thread) CheckPending() (linux.Signal, bool) {
	p := t.Process()
	p.signalMu.Lock()
	defer p.signalMu.Unlock()
	sig := (t.signals.pending &^ t.signals.mask).Lowest()
	if sig == 0 {
		return 0, false
	}
	t.signals.pending &^= linux.SignalSetOf(sig)
	return sig, true
}

// PendingSignals returns the signals pending on t.
func (t *Thread) PendingSignals() linux.SignalSet {
	p := t.Process()
	p.signalMu.Lock()
	defer p.signalMu.Unlock()
	return t.signals.pending
}

// SignalMask returns t's blocked signals.
func (t *Thread) SignalMask() linux.SignalSet {
	p := t.Process()
	p.signalMu.Lock()
	defer p.signalMu.Unlock()
	return t.signals.mask
}

// SetSignalMask replaces t's blocked signals. SIGKILL and SIGSTOP cannot be
// blocked.
func (t *Thread) SetSignalMask(mask linux.SignalSet) {
	p := t.Process()
	p.signalMu.Lock()
	defer p.signalMu.Unlock()
	t.signals.mask = mask &^ linux.UnblockableSignals
}

// SetSignalAction replaces the action for sig in t's process. Signals that
// become ignored are discarded from every thread's pending set.
func (t *Thread) SetSignalAction(sig linux.Signal, act linux.SigAction) (linux.SigAction, error) {
	k := t.k
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	p := t.Process()
	old, err := p.handlers.Set(sig, act)
	if err != nil {
		return old, err
	}
	if p.handlers.IsIgnored(sig) {
		bit := linux.SignalSetOf(sig)
		p.signalMu.Lock()
		p.pendingSignals &^= bit
		for o := p.threads.Front(); o != nil; o = o.Next() {
			o.signals.pending &^= bit
		}
		p.signalMu.Unlock()
	}
	return old, nil
}
