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
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/platform"
)

// A threadRunState is a reified state in the thread state machine. Each
// thread goroutine repeatedly executes its current run state until one
// returns nil, after which the thread switches away for the last time.
//
// Data-free states are represented as typecast nils.
type threadRunState interface {
	// execute executes the code associated with this state over the given
	// thread and returns the following state.
	execute(*Thread) threadRunState
}

// run is the body of the thread's goroutine. It starts on the trap return
// path, which enters user mode for the first time.
func (t *Thread) run() {
	t.runState = (*runInterrupt)(nil)
	for t.runState != nil {
		t.runState = t.runState.execute(t)
	}
	t.k.proc.exitSwitch(t)
}

// runInterrupt is the trap return path: pending signals are acted on before
// the thread resumes in user mode.
type runInterrupt struct{}

func (*runInterrupt) execute(t *Thread) threadRunState {
	for {
		sig, ok := t.CheckPending()
		if !ok {
			return (*runApp)(nil)
		}
		if next := t.deliverSignal(sig); next != nil {
			return next
		}
	}
}

// runApp runs the thread in user mode until it traps, then dispatches the
// trap.
type runApp struct{}

func (*runApp) execute(t *Thread) threadRunState {
	return t.handleTrap(t.executeUser())
}

// runExit terminates the thread, or its whole process if group is set.
type runExit struct {
	status ExitStatus
	group  bool
}

func (r *runExit) execute(t *Thread) threadRunState {
	t.k.exitThread(t, r.status, r.group)
	return nil
}

// executeUser runs user instructions until one traps or a timer interrupt
// is pending. The trap context stays in the kernel stack frame throughout,
// so trap entry only records the cause.
func (t *Thread) executeUser() platform.Trap {
	h := t.k.hart
	regs := t.Regs()
	prog, mem := t.Process().userContext()
	for {
		if h.TimerPending() {
			return platform.Trap{Cause: arch.SupervisorTimer}
		}
		h.Retire()
		if trap, ok := prog.Step(regs, mem); ok {
			return trap
		}
	}
}

// handleTrap dispatches a trap taken in user mode.
func (t *Thread) handleTrap(trap platform.Trap) threadRunState {
	regs := t.Regs()
	switch cause := trap.Cause; {
	case cause == arch.UserEnvCall:
		traps.Increment(trapSyscall)
		return t.doSyscall()

	case cause == arch.SupervisorTimer:
		traps.Increment(trapTimer)
		t.k.serviceTimer()
		t.Yield()
		return (*runInterrupt)(nil)

	case cause.IsMemoryFault():
		traps.Increment(trapFault)
		log.Infof("[%d] %v in application, bad addr = %#x, bad instruction = %#x, core dumped.", t.tid, cause, trap.Tval, regs.Sepc)
		return &runExit{status: ExitStatus{Code: ExitCodeMemoryFault}, group: true}

	case cause == arch.IllegalInstruction:
		traps.Increment(trapIllegal)
		log.Infof("[%d] IllegalInstruction in application at %#x, core dumped.", t.tid, regs.Sepc)
		return &runExit{status: ExitStatus{Code: ExitCodeIllegalInstruction}, group: true}

	case cause == arch.Breakpoint:
		traps.Increment(trapBreakpoint)
		regs.Sepc += platform.InstructionSize
		t.k.SendThreadSignal(t.tid, linux.SIGTRAP)
		return (*runInterrupt)(nil)

	default:
		traps.Increment(trapUnknown)
		log.Warningf("[%d] Unsupported trap %v, stval = %#x", t.tid, cause, trap.Tval)
		return &runExit{status: ExitStatus{Code: ExitCodeIllegalInstruction}, group: true}
	}
}

// doSyscall handles an environment call. The saved sepc is advanced past
// the ecall before the syscall runs, so a syscall that blocks or clones
// resumes after it.
func (t *Thread) doSyscall() threadRunState {
	regs := t.Regs()
	regs.Sepc += platform.InstructionSize
	sysno := regs.SyscallNo()
	args := regs.SyscallArgs()

	var (
		rval uintptr
		ctrl *SyscallControl
		err  error
	)
	if st := t.k.syscalls.Stracer; st != nil {
		context := st.SyscallEnter(t, sysno, args)
		rval, ctrl, err = t.executeSyscall(sysno, args)
		st.SyscallExit(context, t, sysno, rval, err)
	} else {
		rval, ctrl, err = t.executeSyscall(sysno, args)
	}
	if ctrl != nil {
		if ctrl.exit {
			return &runExit{status: ctrl.status, group: ctrl.exitGroup}
		}
		if ctrl.ignoreReturn {
			return (*runInterrupt)(nil)
		}
	}
	if err != nil {
		regs.SetReturn(uintptr(-int64(errnoOf(err))))
	} else {
		regs.SetReturn(rval)
	}
	return (*runInterrupt)(nil)
}

// executeSyscall runs the syscall sysno.
func (t *Thread) executeSyscall(sysno uintptr, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
	s := t.k.syscalls
	if fn := s.Lookup(sysno); fn != nil {
		if log.IsLogging(log.Debug) {
			log.Debugf("[%d] %s(%#x, %#x, %#x)", t.tid, s.LookupName(sysno), args[0].Value, args[1].Value, args[2].Value)
		}
		return fn(t, args)
	}
	if s.Missing != nil {
		rval, err := s.Missing(t, sysno, args)
		return rval, nil, err
	}
	t.k.unknownSyscallLog.Warningf("[%d] Unknown syscall %d", t.tid, sysno)
	return 0, nil, linuxerr.ENOSYS
}

// errnoOf returns the errno for a syscall error. Errors that do not carry
// one are reported as EINVAL.
func errnoOf(err error) uint32 {
	if e, ok := linuxerr.TranslateError(err); ok {
		return uint32(e.Errno())
	}
	log.Warningf("Syscall returned an error with no errno: %v", err)
	return uint32(linuxerr.EINVAL.Errno())
}
