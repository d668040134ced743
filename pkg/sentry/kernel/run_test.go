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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/platform"
)

// errnoReturn is the value a syscall failing with err leaves in a0.
func errnoReturn(err error) uintptr {
	e, _ := linuxerr.TranslateError(err)
	return uintptr(-int64(e.Errno()))
}

func TestRunExitScenario(t *testing.T) {
	var k *Kernel
	var t2 ThreadID

	var a scriptBuilder
	clone := a.syscall(testSysClone, 1, 0, 0)
	a.call(func(regs *arch.Registers) { t2 = ThreadID(regs.Return()) })
	a.syscall(testSysExit, 5)
	spin := a.label()
	a.syscall(testSysYield)
	a.add(platform.J(spin))
	a.setArg(clone, 1, a.addr(spin))

	var (
		child                *Process
		queued, destroyed    bool
		exitStatus           ExitStatus
		exited               bool
		threads              []ThreadID
		reaped               ThreadID
		status               linux.WaitStatus
		destroyedAfterReaped bool
	)
	var r scriptBuilder
	r.spawn("/bin/a")
	r.add(platform.Mv(arch.RegS1, arch.RegA0))
	r.syscall(testSysYield)
	r.call(func(regs *arch.Registers) {
		child = k.ProcessByPID(ThreadID(regs.X[arch.RegS1]))
		if th := k.ThreadByID(t2); th != nil {
			queued = k.ReadyQueue().Contains(th)
		}
		exitStatus, exited = child.ExitStatus()
		destroyed = child.Destroyed()
		threads = child.ThreadIDs()
	})
	r.waitFor(arch.RegS1)
	r.call(func(regs *arch.Registers) {
		reaped = ThreadID(regs.Return())
		status = linux.WaitStatus(regs.X[arch.RegA1])
		destroyedAfterReaped = child.Destroyed()
	})
	r.syscall(testSysExit, 0)

	k = newTestKernel(t, InitKernelArgs{}, r.image("/bin/init"), a.image("/bin/a"))
	bootTestKernel(t, k, "/bin/init")
	runTestKernel(t, k)

	if child == nil {
		t.Fatalf("child process not found")
	}
	if queued {
		t.Errorf("thread %d still queued after its process exited", t2)
	}
	if !exited || exitStatus.Code != 5 {
		t.Errorf("child ExitStatus: got (%v, %t), wanted (exit code 5, true)", exitStatus, exited)
	}
	if destroyed {
		t.Errorf("child destroyed before it was reaped")
	}
	if diff := cmp.Diff([]ThreadID{child.PID(), t2}, threads); diff != "" {
		t.Errorf("child threads before reaping (-want +got):\n%s", diff)
	}
	if reaped != child.PID() || status.ExitStatus() != 5 || !status.Exited() {
		t.Errorf("wait: got (%d, %v), wanted (%d, exit status 5)", reaped, status, child.PID())
	}
	if !destroyedAfterReaped {
		t.Errorf("child not destroyed after it was reaped")
	}
}

func TestRunFork(t *testing.T) {
	var pid ThreadID
	var status linux.WaitStatus

	var r scriptBuilder
	r.syscall(testSysClone, 0, 0, 0)
	branch := r.label()
	r.add(platform.Bnez(arch.RegA0, 0))
	r.syscall(testSysExit, 7)
	parent := r.label()
	r.add(platform.Mv(arch.RegS1, arch.RegA0))
	r.waitFor(arch.RegS1)
	r.call(func(regs *arch.Registers) {
		pid = ThreadID(regs.Return())
		status = linux.WaitStatus(regs.X[arch.RegA1])
	})
	r.syscall(testSysExit, 0)
	r.ops[branch].Target = parent

	k := newTestKernel(t, InitKernelArgs{}, r.image("/bin/init"))
	root := bootTestKernel(t, k, "/bin/init")
	runTestKernel(t, k)

	if pid <= root.PID() {
		t.Errorf("fork returned pid %d", pid)
	}
	if status != linux.WaitStatusExit(7) {
		t.Errorf("child status: got %v, wanted exit status 7", status)
	}
}

func TestTrapContextRoundTrip(t *testing.T) {
	var k *Kernel
	var before, after arch.Registers
	var switchesBefore, switchesAfter uint64

	var r scriptBuilder
	r.call(func(regs *arch.Registers) {
		for i := 1; i < arch.NumRegs; i++ {
			regs.X[i] = 0x0101_0101_0000_0000*uint64(i) + uint64(i)
		}
		regs.X[arch.RegA7] = testSysGetPID
		before = *regs
		switchesBefore = k.Hart().Switches()
		// Preempt before the ecall so the context crosses a switch too.
		k.RaiseInterrupt()
	})
	r.add(platform.Ecall())
	r.call(func(regs *arch.Registers) {
		after = *regs
		switchesAfter = k.Hart().Switches()
	})
	r.syscall(testSysExit, 0)

	k = newTestKernel(t, InitKernelArgs{}, r.image("/bin/init"))
	root := bootTestKernel(t, k, "/bin/init")
	runTestKernel(t, k)

	want := before
	want.X[arch.RegA0] = uint64(root.PID())
	want.Sepc += 2 * platform.InstructionSize
	if diff := cmp.Diff(want, after); diff != "" {
		t.Errorf("trap context mismatch (-want +got):\n%s", diff)
	}
	if switchesAfter-switchesBefore < 2 {
		t.Errorf("timer interrupt did not switch contexts: %d switches", switchesAfter-switchesBefore)
	}
}

func TestSignalHandler(t *testing.T) {
	var k *Kernel
	var handled int
	var handlerSig uint64
	var handlerMask, resumedMask linux.SignalSet
	var killRet uintptr
	var inHandler int

	var r scriptBuilder
	r.syscall(testSysGetPID)
	r.add(platform.Mv(arch.RegS1, arch.RegA0))
	sa := r.syscall(testSysSigaction, int64(linux.SIGUSR1), 0)
	r.add(
		platform.Li(arch.RegA7, testSysKill),
		platform.Mv(arch.RegA0, arch.RegS1),
		platform.Li(arch.RegA1, int64(linux.SIGUSR1)),
		platform.Ecall(),
	)
	r.call(func(regs *arch.Registers) {
		killRet = regs.Return()
		resumedMask = k.Processor().Current().SignalMask()
	})
	r.syscall(testSysExit, 0)
	handler := r.label()
	r.call(func(regs *arch.Registers) {
		handled++
		handlerSig = regs.X[arch.RegA0]
		cur := k.Processor().Current()
		handlerMask = cur.SignalMask()
		inHandler = cur.InSignalHandler()
	})
	r.syscall(testSysSigreturn)
	r.setArg(sa, 1, r.addr(handler))

	k = newTestKernel(t, InitKernelArgs{}, r.image("/bin/init"))
	bootTestKernel(t, k, "/bin/init")
	if es := runTestKernel(t, k); es != (ExitStatus{}) {
		t.Fatalf("root exit status: got %v, wanted 0", es)
	}

	if handled != 1 || handlerSig != uint64(linux.SIGUSR1) {
		t.Errorf("handler: ran %d times with a0 = %d, wanted once with %d", handled, handlerSig, linux.SIGUSR1)
	}
	if handlerMask&linux.SignalSetOf(linux.SIGUSR1) == 0 {
		t.Errorf("SIGUSR1 not blocked in its handler: mask %#x", uint64(handlerMask))
	}
	if inHandler != 1 {
		t.Errorf("handler nesting: got %d, wanted 1", inHandler)
	}
	if killRet != 0 || resumedMask != 0 {
		t.Errorf("after sigreturn: kill returned %#x with mask %#x, wanted 0 and 0", killRet, uint64(resumedMask))
	}
}

func TestSleepInterrupted(t *testing.T) {
	var handled int
	var sleepRet uintptr

	var r scriptBuilder
	r.syscall(testSysGetPID)
	r.add(platform.Mv(arch.RegS1, arch.RegA0))
	sa := r.syscall(testSysSigaction, int64(linux.SIGUSR1), 0)
	clone := r.label()
	r.add(
		platform.Li(arch.RegA7, testSysClone),
		platform.Li(arch.RegA0, 1),
		platform.Li(arch.RegA1, 0),
		platform.Mv(arch.RegA2, arch.RegS1),
		platform.Ecall(),
	)
	r.syscall(testSysSleep, 1000)
	r.call(func(regs *arch.Registers) { sleepRet = regs.Return() })
	r.syscall(testSysExit, 0)
	handler := r.label()
	r.call(func(*arch.Registers) { handled++ })
	r.syscall(testSysSigreturn)
	// The thread signals the process whose pid it is passed.
	sender := r.label()
	r.add(
		platform.Li(arch.RegA1, int64(linux.SIGUSR1)),
		platform.Li(arch.RegA7, testSysKill),
		platform.Ecall(),
	)
	r.syscall(testSysExit, 0)
	r.setArg(sa, 1, r.addr(handler))
	r.ops[clone+2].Imm = r.addr(sender)

	k := newTestKernel(t, InitKernelArgs{Timeslice: testTimeslice}, r.image("/bin/init"))
	bootTestKernel(t, k, "/bin/init")
	runTestKernel(t, k)

	if handled != 1 {
		t.Errorf("handler ran %d times, wanted once", handled)
	}
	if want := errnoReturn(linuxerr.EINTR); sleepRet != want {
		t.Errorf("interrupted sleep returned %#x, wanted %#x", sleepRet, want)
	}
}

func TestKillSleepingProcess(t *testing.T) {
	var status linux.WaitStatus

	var a scriptBuilder
	clone := a.syscall(testSysClone, 1, 0, 0)
	a.syscall(testSysSleep, 1000)
	a.syscall(testSysExit, 0)
	sleeper := a.label()
	a.syscall(testSysSleep, 1000)
	a.syscall(testSysExit, 0)
	a.setArg(clone, 1, a.addr(sleeper))

	var r scriptBuilder
	r.spawn("/bin/a")
	r.add(platform.Mv(arch.RegS1, arch.RegA0))
	r.syscall(testSysYield)
	r.add(
		platform.Li(arch.RegA7, testSysKill),
		platform.Mv(arch.RegA0, arch.RegS1),
		platform.Li(arch.RegA1, int64(linux.SIGKILL)),
		platform.Ecall(),
	)
	r.waitFor(arch.RegS1)
	r.call(func(regs *arch.Registers) { status = linux.WaitStatus(regs.X[arch.RegA1]) })
	r.syscall(testSysExit, 0)

	k := newTestKernel(t, InitKernelArgs{Timeslice: testTimeslice}, r.image("/bin/init"), a.image("/bin/a"))
	bootTestKernel(t, k, "/bin/init")
	runTestKernel(t, k)

	if !status.Signaled() || status.TerminationSignal() != linux.SIGKILL {
		t.Errorf("child status: got %v, wanted killed by SIGKILL", status)
	}
	if got := k.SleepRegistry().Len(); got != 0 {
		t.Errorf("%d sleep entries left", got)
	}
}

func TestFaultExitCodes(t *testing.T) {
	for _, tc := range []struct {
		name string
		ops  []platform.Op
		want int32
	}{
		{
			name: "load page fault",
			ops:  []platform.Op{platform.Li(arch.RegT0, 8), platform.Ld(arch.RegT1, arch.RegT0, 0)},
			want: ExitCodeMemoryFault,
		},
		{
			name: "store access fault",
			ops:  []platform.Op{platform.Fault(arch.StoreFault)},
			want: ExitCodeMemoryFault,
		},
		{
			name: "illegal instruction",
			ops:  []platform.Op{platform.Fault(arch.IllegalInstruction)},
			want: ExitCodeIllegalInstruction,
		},
		{
			name: "unsupported trap",
			ops:  []platform.Op{platform.Fault(arch.Scause(24))},
			want: ExitCodeIllegalInstruction,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var status linux.WaitStatus
			var r scriptBuilder
			r.spawn("/bin/child")
			r.add(platform.Mv(arch.RegS1, arch.RegA0))
			r.waitFor(arch.RegS1)
			r.call(func(regs *arch.Registers) { status = linux.WaitStatus(regs.X[arch.RegA1]) })
			r.syscall(testSysExit, 0)

			k := newTestKernel(t, InitKernelArgs{}, r.image("/bin/init"), scriptImage("/bin/child", tc.ops))
			bootTestKernel(t, k, "/bin/init")
			runTestKernel(t, k)
			if want := linux.WaitStatusExit(tc.want); status != want {
				t.Errorf("child status: got %v, wanted %v", status, want)
			}
		})
	}
}

func TestBreakpoint(t *testing.T) {
	for _, tc := range []struct {
		name   string
		ignore bool
		want   ExitStatus
	}{
		{name: "default action", want: ExitStatus{Signo: linux.SIGTRAP}},
		{name: "ignored", ignore: true, want: ExitStatus{Code: 3}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var r scriptBuilder
			if tc.ignore {
				r.syscall(testSysSigaction, int64(linux.SIGTRAP), linux.SIG_IGN)
			}
			r.add(platform.Fault(arch.Breakpoint))
			r.syscall(testSysExit, 3)

			k := newTestKernel(t, InitKernelArgs{}, r.image("/bin/init"))
			bootTestKernel(t, k, "/bin/init")
			if es := runTestKernel(t, k); es != tc.want {
				t.Errorf("exit status: got %v, wanted %v", es, tc.want)
			}
		})
	}
}

func TestUnknownSyscall(t *testing.T) {
	var ret uintptr
	var r scriptBuilder
	r.syscall(testSysNoSuchCall)
	r.call(func(regs *arch.Registers) { ret = regs.Return() })
	r.syscall(testSysExit, 0)

	k := newTestKernel(t, InitKernelArgs{}, r.image("/bin/init"))
	bootTestKernel(t, k, "/bin/init")
	runTestKernel(t, k)
	if want := errnoReturn(linuxerr.ENOSYS); ret != want {
		t.Errorf("unknown syscall returned %#x, wanted %#x", ret, want)
	}
}

func TestWaitThread(t *testing.T) {
	var k *Kernel
	var tid ThreadID
	var first, second uintptr
	var freed bool

	var r scriptBuilder
	clone := r.syscall(testSysClone, 1, 0, 0)
	r.add(platform.Mv(arch.RegS1, arch.RegA0))
	r.call(func(regs *arch.Registers) { tid = ThreadID(regs.Return()) })
	r.add(platform.Li(arch.RegA7, testSysWaitThread), platform.Mv(arch.RegA0, arch.RegS1), platform.Ecall())
	r.call(func(regs *arch.Registers) {
		first = regs.Return()
		freed = k.ThreadByID(tid) == nil
	})
	r.add(platform.Li(arch.RegA7, testSysWaitThread), platform.Mv(arch.RegA0, arch.RegS1), platform.Ecall())
	r.call(func(regs *arch.Registers) { second = regs.Return() })
	r.syscall(testSysExit, 0)
	thread := r.label()
	r.syscall(testSysExit, 7)
	r.setArg(clone, 1, r.addr(thread))

	k = newTestKernel(t, InitKernelArgs{}, r.image("/bin/init"))
	bootTestKernel(t, k, "/bin/init")
	runTestKernel(t, k)

	if first != 7 {
		t.Errorf("waittid: got %d, wanted 7", first)
	}
	if !freed {
		t.Errorf("thread %d not freed after it was collected", tid)
	}
	if want := errnoReturn(linuxerr.ESRCH); second != want {
		t.Errorf("second waittid: got %#x, wanted %#x", second, want)
	}
}

func TestExitGroupFromThread(t *testing.T) {
	var r scriptBuilder
	clone := r.syscall(testSysClone, 1, 0, 0)
	r.add(platform.Li(arch.RegA7, testSysWaitThread), platform.Ecall())
	r.syscall(testSysExit, 1)
	thread := r.label()
	r.syscall(testSysExitGroup, 9)
	r.setArg(clone, 1, r.addr(thread))

	k := newTestKernel(t, InitKernelArgs{}, r.image("/bin/init"))
	bootTestKernel(t, k, "/bin/init")
	if es := runTestKernel(t, k); es != (ExitStatus{Code: 9}) {
		t.Errorf("exit status: got %v, wanted exit code 9", es)
	}
	if got := k.LiveThreads(); got != 2 {
		t.Errorf("LiveThreads: got %d, wanted the 2 unreaped threads of root", got)
	}
}

func TestAllThreadsBlocked(t *testing.T) {
	// The root waits for thread 2, which waits for thread 3, which waits
	// for thread 2.
	var r scriptBuilder
	c2 := r.syscall(testSysClone, 1, 0, 0)
	c3 := r.syscall(testSysClone, 1, 0, 0)
	r.syscall(testSysWaitThread, 2)
	r.syscall(testSysExit, 0)
	t2 := r.label()
	r.syscall(testSysWaitThread, 3)
	r.syscall(testSysExit, 0)
	t3 := r.label()
	r.syscall(testSysWaitThread, 2)
	r.syscall(testSysExit, 0)
	r.setArg(c2, 1, r.addr(t2))
	r.setArg(c3, 1, r.addr(t3))

	k := newTestKernel(t, InitKernelArgs{}, r.image("/bin/init"))
	bootTestKernel(t, k, "/bin/init")
	ctx, cancel := context.WithTimeout(context.Background(), testRunTimeout)
	defer cancel()
	if _, err := k.Run(ctx); !errors.Is(err, ErrAllThreadsBlocked) {
		t.Fatalf("Run: got %v, wanted %v", err, ErrAllThreadsBlocked)
	}
	if err := k.WaitIdle(ctx); err != nil {
		t.Errorf("WaitIdle: %v", err)
	}
	if !k.Halted() {
		t.Errorf("kernel not halted")
	}
}

func TestRunCancel(t *testing.T) {
	k := newTestKernel(t, InitKernelArgs{Timeslice: testTimeslice},
		scriptImage("/bin/init", []platform.Op{platform.J(0)}))
	bootTestKernel(t, k, "/bin/init")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := k.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run: got %v, wanted %v", err, context.DeadlineExceeded)
	}
	idleCtx, idleCancel := context.WithTimeout(context.Background(), testRunTimeout)
	defer idleCancel()
	if err := k.WaitIdle(idleCtx); err != nil {
		t.Errorf("WaitIdle: %v", err)
	}
	if _, err := k.Run(idleCtx); err == nil {
		t.Errorf("second Run succeeded")
	}
}
