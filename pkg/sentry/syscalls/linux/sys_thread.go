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
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/kernel"
)

const (
	// exitSignal is the signal sent on exit, and the only one accepted
	// in the low byte of clone flags.
	exitSignal = linux.SIGCHLD

	// maxArgs and maxArgLen bound the argv and envv vectors of execve and
	// spawn.
	maxArgs   = 256
	maxArgLen = 4096

	// Possible flags for wait4(2). __WNOTHREAD and __WCLONE have no
	// effect since threads are never reported.
	wait4Options = linux.WNOHANG | linux.WEXITED | linux.WNOTHREAD | linux.WALL | linux.WCLONE
)

// Getpid implements linux syscall getpid(2).
func Getpid(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return uintptr(t.Process().PID()), nil, nil
}

// Getppid implements linux syscall getppid(2).
func Getppid(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return uintptr(t.Process().ParentPID()), nil, nil
}

// Gettid implements linux syscall gettid(2).
func Gettid(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return uintptr(t.ThreadID()), nil, nil
}

// Getuid implements getuid(2) and the other credential getters. Every
// thread runs as root.
func Getuid(*kernel.Thread, arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return 0, nil, nil
}

// SchedYield implements linux syscall sched_yield(2).
func SchedYield(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	t.Yield()
	return 0, nil, nil
}

// Exit implements linux syscall exit(2).
func Exit(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	status := args[0].Int()
	return 0, kernel.CtrlDoExit(kernel.ExitStatus{Code: status & 0xff}), nil
}

// ExitGroup implements linux syscall exit_group(2).
func ExitGroup(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	status := args[0].Int()
	return 0, kernel.CtrlDoExitGroup(kernel.ExitStatus{Code: status & 0xff}), nil
}

// SetTidAddress implements linux syscall set_tid_address(2).
func SetTidAddress(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	addr := args[0].Pointer()

	// Always succeed, return caller's tid.
	t.SetClearTID(addr)
	return uintptr(t.ThreadID()), nil, nil
}

// Clone implements linux syscall clone(2). The riscv64 argument order is
// flags, stack, parent_tidptr, tls, child_tidptr.
func Clone(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	flags := args[0].Uint64()
	stack := args[1].Pointer()
	parentTID := args[2].Pointer()
	tls := args[3].Uint64()
	childTID := args[4].Pointer()

	if sig := linux.Signal(flags & linux.CSIGNAL); sig != 0 && sig != exitSignal {
		return 0, nil, linuxerr.EINVAL
	}
	// "If CLONE_THREAD is set, CLONE_SIGHAND must also be set" and "If
	// CLONE_SIGHAND is set, CLONE_VM must also be set." - clone(2)
	if flags&linux.CLONE_THREAD != 0 && flags&linux.CLONE_SIGHAND == 0 {
		return 0, nil, linuxerr.EINVAL
	}
	if flags&linux.CLONE_SIGHAND != 0 && flags&linux.CLONE_VM == 0 {
		return 0, nil, linuxerr.EINVAL
	}
	// Processes never share an address space, so CLONE_VM implies
	// CLONE_THREAD. There are no namespaces or vfork.
	if flags&linux.CLONE_VM != 0 && flags&linux.CLONE_THREAD == 0 {
		return 0, nil, linuxerr.EINVAL
	}
	if flags&(linux.CLONE_NEWNS|linux.CLONE_VFORK|linux.CLONE_PIDFD) != 0 {
		return 0, nil, linuxerr.EINVAL
	}

	opts := kernel.CloneOptions{
		NewThread: flags&linux.CLONE_THREAD != 0,
		Stack:     stack,
		SetTLS:    flags&linux.CLONE_SETTLS != 0,
		TLS:       tls,
	}
	if flags&linux.CLONE_PARENT_SETTID != 0 {
		opts.ParentSetTID = parentTID
	}
	if flags&linux.CLONE_CHILD_CLEARTID != 0 {
		opts.ChildClearTID = childTID
	}
	ntid, err := t.Clone(&opts)
	return uintptr(ntid), nil, err
}

// ThreadCreate implements thread_create(entry, arg). The new thread starts
// at entry with arg in a0 and a fresh stack.
func ThreadCreate(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	entry := args[0].Pointer()
	arg := args[1].Uint64()

	if entry == 0 {
		return 0, nil, linuxerr.EINVAL
	}
	ntid, err := t.Clone(&kernel.CloneOptions{
		NewThread: true,
		Entry:     entry,
		Arg:       arg,
	})
	return uintptr(ntid), nil, err
}

// copyInArgs copies in the path and argument vectors of execve and spawn.
// A null vector is empty.
func copyInArgs(t *kernel.Thread, pathAddr, argvAddr, envvAddr hostarch.Addr) (string, []string, []string, error) {
	m := t.MemoryManager()
	path, err := m.CopyInString(pathAddr, linux.PATH_MAX)
	if err != nil {
		return "", nil, nil, err
	}
	var argv, envv []string
	if argvAddr != 0 {
		if argv, err = m.CopyInVector(argvAddr, maxArgs, maxArgLen); err != nil {
			return "", nil, nil, err
		}
	}
	if envvAddr != 0 {
		if envv, err = m.CopyInVector(envvAddr, maxArgs, maxArgLen); err != nil {
			return "", nil, nil, err
		}
	}
	return path, argv, envv, nil
}

// Execve implements linux syscall execve(2).
func Execve(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	path, argv, envv, err := copyInArgs(t, args[0].Pointer(), args[1].Pointer(), args[2].Pointer())
	if err != nil {
		return 0, nil, err
	}
	if len(argv) == 0 {
		argv = []string{path}
	}
	ctrl, err := t.Execve(path, argv, envv)
	return 0, ctrl, err
}

// Spawn implements spawn(path, argv, envv): it creates a child process
// running path without copying the caller, and returns the child's pid.
func Spawn(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	path, argv, envv, err := copyInArgs(t, args[0].Pointer(), args[1].Pointer(), args[2].Pointer())
	if err != nil {
		return 0, nil, err
	}
	if len(argv) == 0 {
		argv = []string{path}
	}
	p, err := t.Kernel().SpawnProcess(t.Process(), path, argv, envv)
	if err != nil {
		return 0, nil, err
	}
	return uintptr(p.PID()), nil, nil
}

// Wait4 implements linux syscall wait4(2). rusage is not reported.
func Wait4(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	pid := kernel.ThreadID(args[0].Int())
	statusAddr := args[1].Pointer()
	options := args[2].Uint()

	if options&^wait4Options != 0 {
		return 0, nil, linuxerr.EINVAL
	}
	switch {
	case pid == 0:
		// Children share no process group with their parent.
		return 0, nil, linuxerr.ECHILD
	case pid < -1:
		return 0, nil, linuxerr.ECHILD
	}

	opts := kernel.WaitOptions{
		PID:         pid,
		NonBlocking: options&linux.WNOHANG != 0,
	}
	if statusAddr != 0 {
		// The status is copied out before the child is reaped, so a bad
		// address leaves it waitable.
		opts.Report = func(_ kernel.ThreadID, es kernel.ExitStatus) error {
			var b [4]byte
			hostarch.ByteOrder.PutUint32(b[:], uint32(es.WaitStatus()))
			_, err := t.CopyOut(statusAddr, b[:])
			return err
		}
	}
	wpid, _, err := t.Wait(opts)
	if err != nil {
		return 0, nil, err
	}
	return uintptr(wpid), nil, nil
}

// Waittid implements waittid(tid): it waits for a thread of the caller's
// process to exit and returns its exit code.
func Waittid(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	tid := kernel.ThreadID(args[0].Int())

	es, err := t.WaitThread(tid)
	if err != nil {
		return 0, nil, err
	}
	return uintptr(es.Code), nil, nil
}
