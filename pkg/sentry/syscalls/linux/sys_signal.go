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

package linux

import (
	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/kernel"
)

// Kill implements linux syscall kill(2).
func Kill(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	pid := kernel.ThreadID(args[0].Int())
	sig := linux.Signal(args[1].Int())

	switch {
	case pid > 0:
		// "If pid is positive, then signal sig is sent to the process with the
		// ID specified by pid." - kill(2)
		return 0, nil, t.Kernel().SendSignal(pid, sig)
	case pid == 0:
		// Every process is its own process group.
		return 0, nil, t.Kernel().SendSignal(t.Process().PID(), sig)
	default:
		// There are no process groups to broadcast to.
		return 0, nil, linuxerr.ESRCH
	}
}

// Tkill implements linux syscall tkill(2).
func Tkill(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	tid := kernel.ThreadID(args[0].Int())
	sig := linux.Signal(args[1].Int())

	// N.B. Inconsistent with man page, linux actually rejects calls with
	// tid <=0 by EINVAL. This isn't the same for all signal calls.
	if tid <= 0 {
		return 0, nil, linuxerr.EINVAL
	}
	return 0, nil, t.Kernel().SendThreadSignal(tid, sig)
}

// Tgkill implements linux syscall tgkill(2).
func Tgkill(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	tgid := kernel.ThreadID(args[0].Int())
	tid := kernel.ThreadID(args[1].Int())
	sig := linux.Signal(args[2].Int())

	if tgid <= 0 || tid <= 0 {
		return 0, nil, linuxerr.EINVAL
	}
	target := t.Kernel().ThreadByID(tid)
	if target == nil || target.Process().PID() != tgid {
		return 0, nil, linuxerr.ESRCH
	}
	return 0, nil, t.Kernel().SendThreadSignal(tid, sig)
}

// RtSigaction implements linux syscall rt_sigaction(2).
func RtSigaction(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	sig := linux.Signal(args[0].Int())
	newactarg := args[1].Pointer()
	oldactarg := args[2].Pointer()
	sigsetsize := args[3].SizeT()

	if sigsetsize != linux.SignalSetSize {
		return 0, nil, linuxerr.EINVAL
	}
	if !sig.IsValid() {
		return 0, nil, linuxerr.EINVAL
	}

	var oldact linux.SigAction
	if newactarg != 0 {
		var b [linux.SigActionSize]byte
		if _, err := t.CopyIn(newactarg, b[:]); err != nil {
			return 0, nil, err
		}
		var newact linux.SigAction
		newact.UnmarshalBytes(b[:])
		var err error
		if oldact, err = t.SetSignalAction(sig, newact); err != nil {
			return 0, nil, err
		}
	} else {
		oldact = t.Process().SignalHandlers().Get(sig)
	}
	if oldactarg != 0 {
		var b [linux.SigActionSize]byte
		oldact.MarshalBytes(b[:])
		if _, err := t.CopyOut(oldactarg, b[:]); err != nil {
			return 0, nil, err
		}
	}
	return 0, nil, nil
}

// RtSigreturn implements linux syscall rt_sigreturn(2).
func RtSigreturn(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	ctrl, err := t.SignalReturn()
	return 0, ctrl, err
}

// RtSigprocmask implements linux syscall rt_sigprocmask(2).
func RtSigprocmask(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	how := args[0].Int()
	setaddr := args[1].Pointer()
	oldaddr := args[2].Pointer()
	sigsetsize := args[3].SizeT()

	if sigsetsize != linux.SignalSetSize {
		return 0, nil, linuxerr.EINVAL
	}
	oldmask := t.SignalMask()
	if setaddr != 0 {
		mask, err := copyInSigSet(t, setaddr, sigsetsize)
		if err != nil {
			return 0, nil, err
		}

		switch how {
		case linux.SIG_BLOCK:
			t.SetSignalMask(oldmask | mask)
		case linux.SIG_UNBLOCK:
			t.SetSignalMask(oldmask &^ mask)
		case linux.SIG_SETMASK:
			t.SetSignalMask(mask)
		default:
			return 0, nil, linuxerr.EINVAL
		}
	}
	if oldaddr != 0 {
		return 0, nil, copyOutSigSet(t, oldaddr, oldmask)
	}

	return 0, nil, nil
}
