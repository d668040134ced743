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
	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/loader"
)

// maxSignalFrames bounds the nesting of signal handlers.
const maxSignalFrames = 32

// signalFrame is the state saved when a handler is entered and restored by
// rt_sigreturn.
type signalFrame struct {
	regs arch.Registers
	mask linux.SignalSet
}

// deliverSignal takes the action for sig. It returns the next run state:
// runExit if the signal terminates the process, runApp once a handler frame
// has been set up, or nil if the signal was ignored.
func (t *Thread) deliverSignal(sig linux.Signal) threadRunState {
	act := t.Process().handlers.dequeueAction(sig)
	switch {
	case sig == linux.SIGKILL, act.Handler == linux.SIG_DFL:
		if defaultIgnored&linux.SignalSetOf(sig) != 0 {
			signalsDelivered.Increment("ignore")
			return nil
		}
		signalsDelivered.Increment("terminate")
		log.Debugf("[%d] Terminated by %v", t.tid, sig)
		return &runExit{status: ExitStatus{Signo: sig}, group: true}
	case act.Handler == linux.SIG_IGN:
		signalsDelivered.Increment("ignore")
		return nil
	}

	if len(t.sigFrames) >= maxSignalFrames {
		log.Warningf("[%d] Signal handlers nested too deeply delivering %v", t.tid, sig)
		return &runExit{status: ExitStatus{Signo: linux.SIGSEGV}, group: true}
	}
	signalsDelivered.Increment("handler")
	p := t.Process()
	p.signalMu.Lock()
	oldMask := t.signals.mask
	newMask := oldMask | act.Mask
	if !act.IsNoDefer() {
		newMask |= linux.SignalSetOf(sig)
	}
	t.signals.mask = newMask &^ linux.UnblockableSignals
	p.signalMu.Unlock()

	regs := t.Regs()
	t.sigFrames = append(t.sigFrames, signalFrame{regs: *regs, mask: oldMask})
	restorer := uint64(loader.SigreturnTrampoline)
	if act.HasRestorer() {
		restorer = act.Restorer
	}
	regs.SetIP(act.Handler)
	regs.X[arch.RegA0] = uint64(sig)
	regs.X[arch.RegRA] = restorer
	return (*runApp)(nil)
}

// SignalReturn restores the state saved when the current handler was
// entered. A thread with no handler frame is killed with SIGSEGV.
func (t *Thread) SignalReturn() (*SyscallControl, error) {
	n := len(t.sigFrames)
	if n == 0 {
		log.Warningf("[%d] rt_sigreturn outside a signal handler", t.tid)
		return CtrlDoExitGroup(ExitStatus{Signo: linux.SIGSEGV}), nil
	}
	f := t.sigFrames[n-1]
	t.sigFrames = t.sigFrames[:n-1]
	*t.Regs() = f.regs
	t.SetSignalMask(f.mask)
	return CtrlIgnoreReturn, nil
}

// InSignalHandler returns the nesting depth of signal handlers.
func (t *Thread) InSignalHandler() int {
	return len(t.sigFrames)
}
