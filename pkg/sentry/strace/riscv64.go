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

package strace

// riscv64 maps riscv64 syscalls into names and printing formats.
var riscv64 = SyscallMap{
	23:  makeSyscallInfo("dup", FD),
	24:  makeSyscallInfo("dup3", FD, FD, DupFlags),
	29:  makeSyscallInfo("ioctl", FD, Hex, Hex),
	56:  makeSyscallInfo("openat", FD, Path, Hex, Oct),
	57:  makeSyscallInfo("close", FD),
	63:  makeSyscallInfo("read", FD, ReadBuffer, Hex),
	64:  makeSyscallInfo("write", FD, WriteBuffer, Hex),
	93:  makeSyscallInfo("exit", Int),
	94:  makeSyscallInfo("exit_group", Int),
	96:  makeSyscallInfo("set_tid_address", Hex),
	101: makeSyscallInfo("nanosleep", Timespec, PostTimespec),
	113: makeSyscallInfo("clock_gettime", ClockID, PostTimespec),
	124: makeSyscallInfo("sched_yield"),
	129: makeSyscallInfo("kill", Int, Signal),
	130: makeSyscallInfo("tkill", Int, Signal),
	131: makeSyscallInfo("tgkill", Int, Int, Signal),
	134: makeSyscallInfo("rt_sigaction", Signal, SigAction, PostSigAction, Hex),
	135: makeSyscallInfo("rt_sigprocmask", SignalMaskAction, SigSet, PostSigSet, Hex),
	139: makeSyscallInfo("rt_sigreturn"),
	160: makeSyscallInfo("uname", Uname),
	169: makeSyscallInfo("gettimeofday", PostTimeval, Hex),
	172: makeSyscallInfo("getpid"),
	173: makeSyscallInfo("getppid"),
	174: makeSyscallInfo("getuid"),
	175: makeSyscallInfo("geteuid"),
	176: makeSyscallInfo("getgid"),
	177: makeSyscallInfo("getegid"),
	178: makeSyscallInfo("gettid"),
	214: makeSyscallInfo("brk", Hex),
	220: makeSyscallInfo("clone", CloneFlags, Hex, Hex, Hex, Hex),
	221: makeSyscallInfo("execve", Path, ExecveStringVector, ExecveStringVector),
	222: makeSyscallInfo("mmap", Hex, Hex, Hex, Hex, FD, Hex),
	260: makeSyscallInfo("wait4", Int, PostWaitStatus, WaitOptions, Hex),
	400: makeSyscallInfo("spawn", Path, ExecveStringVector, ExecveStringVector),
	460: makeSyscallInfo("thread_create", Hex, Hex),
	462: makeSyscallInfo("waittid", Int),
	463: makeSyscallInfo("mutex_create", Int),
	464: makeSyscallInfo("mutex_lock", Int),
	466: makeSyscallInfo("mutex_unlock", Int),
	467: makeSyscallInfo("semaphore_create", Int),
	468: makeSyscallInfo("semaphore_up", Int),
	470: makeSyscallInfo("semaphore_down", Int),
	471: makeSyscallInfo("condvar_create", Hex),
	472: makeSyscallInfo("condvar_signal", Int),
	473: makeSyscallInfo("condvar_wait", Int, Int),
}
