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

// Package linux provides the syscall table for riscv64.
package linux

import (
	"fmt"

	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/kernel"
	"rvos.dev/rvos/pkg/sentry/syscalls"
)

// Arch is the architecture name of the table.
const Arch = "riscv64"

// RISCV64 is a table of riscv64 syscalls, numbered as in the Linux
// asm-generic ABI, plus the task syscalls of the teaching kernel above 400.
// The entries commented out are those syscalls we don't currently support.
var RISCV64 = &kernel.SyscallTable{
	Arch: Arch,
	Version: kernel.Version{
		Sysname: "rvos",
		Release: "0.1.0",
		Version: "#1 SMP Mon Oct 19 00:00:00 UTC 2026",
	},
	Table: map[uintptr]kernel.Syscall{
		23: syscalls.Supported("dup", Dup),
		24: syscalls.Supported("dup3", Dup3),
		29: syscalls.ErrorWithEvent("ioctl", linuxerr.ENOTTY),
		// 35: unlinkat
		// 37: linkat
		56: syscalls.ErrorWithEvent("openat", linuxerr.ENOENT),
		57: syscalls.Supported("close", Close),
		// 59: pipe2
		63: syscalls.PartiallySupported("read", Read, "The console is write-only; reading it fails with EBADF."),
		64: syscalls.Supported("write", Write),
		// 80: fstat
		93:  syscalls.Supported("exit", Exit),
		94:  syscalls.Supported("exit_group", ExitGroup),
		96:  syscalls.Supported("set_tid_address", SetTidAddress),
		101: syscalls.Supported("nanosleep", Nanosleep),
		113: syscalls.Supported("clock_gettime", ClockGettime),
		124: syscalls.Supported("sched_yield", SchedYield),
		129: syscalls.PartiallySupported("kill", Kill, "Process groups (pid <= -1) are not supported."),
		130: syscalls.Supported("tkill", Tkill),
		131: syscalls.Supported("tgkill", Tgkill),
		134: syscalls.PartiallySupported("rt_sigaction", RtSigaction, "SA_SIGINFO and SA_ONSTACK are ignored."),
		135: syscalls.Supported("rt_sigprocmask", RtSigprocmask),
		139: syscalls.Supported("rt_sigreturn", RtSigreturn),
		// 140: setpriority
		160: syscalls.Supported("uname", Uname),
		169: syscalls.Supported("gettimeofday", Gettimeofday),
		172: syscalls.Supported("getpid", Getpid),
		173: syscalls.Supported("getppid", Getppid),
		174: syscalls.PartiallySupported("getuid", Getuid, "Always returns 0."),
		175: syscalls.PartiallySupported("geteuid", Getuid, "Always returns 0."),
		176: syscalls.PartiallySupported("getgid", Getuid, "Always returns 0."),
		177: syscalls.PartiallySupported("getegid", Getuid, "Always returns 0."),
		178: syscalls.Supported("gettid", Gettid),
		214: syscalls.ErrorWithEvent("brk", linuxerr.ENOMEM),
		// 215: munmap
		220: syscalls.PartiallySupported("clone", Clone, "Namespaces, CLONE_VFORK and CLONE_PIDFD are not supported."),
		221: syscalls.Supported("execve", Execve),
		222: syscalls.ErrorWithEvent("mmap", linuxerr.ENOMEM),
		260: syscalls.PartiallySupported("wait4", Wait4, "Process groups are not supported; rusage is never filled in."),
		400: syscalls.Supported("spawn", Spawn),
		// 410: task_info
		460: syscalls.Supported("thread_create", ThreadCreate),
		462: syscalls.Supported("waittid", Waittid),
		463: syscalls.Supported("mutex_create", MutexCreate),
		464: syscalls.Supported("mutex_lock", MutexLock),
		466: syscalls.Supported("mutex_unlock", MutexUnlock),
		467: syscalls.Supported("semaphore_create", SemaphoreCreate),
		468: syscalls.Supported("semaphore_up", SemaphoreUp),
		// 469: enable_deadlock_detect
		470: syscalls.Supported("semaphore_down", SemaphoreDown),
		471: syscalls.Supported("condvar_create", CondvarCreate),
		472: syscalls.Supported("condvar_signal", CondvarSignal),
		473: syscalls.Supported("condvar_wait", CondvarWait),
	},
	Missing: func(t *kernel.Thread, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
		syscalls.UnimplementedEvent(t, fmt.Sprintf("sys_%d", sysno))
		return 0, linuxerr.ENOSYS
	},
}

func init() {
	kernel.RegisterSyscallTable(RISCV64)
}
