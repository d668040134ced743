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
	"testing"
	"time"

	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/loader"
	"rvos.dev/rvos/pkg/sentry/platform"
)

// Syscall numbers of the table used by the tests in this package.
const (
	testSysExit        = 93  // exit(code)
	testSysExitGroup   = 94  // exit_group(code)
	testSysSleep       = 101 // sleep(ticks)
	testSysYield       = 124 // yield()
	testSysKill        = 129 // kill(pid, sig)
	testSysSigaction   = 134 // sigaction(sig, handler)
	testSysSigreturn   = 139 // sigreturn()
	testSysGetPID      = 172 // getpid()
	testSysClone       = 220 // clone(newThread, entry, arg)
	testSysWait        = 260 // wait(pid, nonblocking) = pid; a1 = wait status
	testSysSpawn       = 400 // spawn(path)
	testSysWaitThread  = 462 // waittid(tid) = exit code
	testSysNoSuchCall  = 999
)

const (
	// testTimeslice is the instruction timeslice of tests that need a
	// running timer.
	testTimeslice = 1000

	testRunTimeout     = 10 * time.Second
	testImageMaxLength = 256
)

func testSyscallTable() *SyscallTable {
	return &SyscallTable{
		Arch: "test",
		Version: Version{
			Sysname: "rvos",
			Release: "test",
			Version: "#1",
		},
		Table: map[uintptr]Syscall{
			testSysExit: {Name: "exit", Fn: func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
				return 0, CtrlDoExit(ExitStatus{Code: args[0].Int()}), nil
			}},
			testSysExitGroup: {Name: "exit_group", Fn: func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
				return 0, CtrlDoExitGroup(ExitStatus{Code: args[0].Int()}), nil
			}},
			testSysSleep: {Name: "sleep", Fn: func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
				return 0, nil, t.Sleep(time.Duration(args[0].Int64()) * t.Kernel().TickPeriod())
			}},
			testSysYield: {Name: "yield", Fn: func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
				t.Yield()
				return 0, nil, nil
			}},
			testSysKill: {Name: "kill", Fn: func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
				return 0, nil, t.Kernel().SendSignal(ThreadID(args[0].Int()), linux.Signal(args[1].Int()))
			}},
			testSysSigaction: {Name: "sigaction", Fn: func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
				_, err := t.SetSignalAction(linux.Signal(args[0].Int()), linux.SigAction{Handler: args[1].Uint64()})
				return 0, nil, err
			}},
			testSysSigreturn: {Name: "sigreturn", Fn: func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
				ctrl, err := t.SignalReturn()
				return 0, ctrl, err
			}},
			testSysGetPID: {Name: "getpid", Fn: func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
				return uintptr(t.Process().PID()), nil, nil
			}},
			testSysClone: {Name: "clone", Fn: func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
				tid, err := t.Clone(&CloneOptions{
					NewThread: args[0].Int() != 0,
					Entry:     args[1].Pointer(),
					Arg:       args[2].Uint64(),
				})
				return uintptr(tid), nil, err
			}},
			testSysWait: {Name: "wait", Fn: func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
				pid, es, err := t.Wait(WaitOptions{PID: ThreadID(args[0].Int()), NonBlocking: args[1].Int() != 0})
				if err != nil {
					return 0, nil, err
				}
				t.Regs().X[arch.RegA1] = uint64(es.WaitStatus())
				return uintptr(pid), nil, nil
			}},
			testSysSpawn: {Name: "spawn", Fn: func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
				name, err := t.MemoryManager().CopyInString(args[0].Pointer(), testImageMaxLength)
				if err != nil {
					return 0, nil, err
				}
				p, err := t.Kernel().SpawnProcess(t.Process(), name, []string{name}, nil)
				if err != nil {
					return 0, nil, err
				}
				return uintptr(p.PID()), nil, nil
			}},
			testSysWaitThread: {Name: "waittid", Fn: func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
				es, err := t.WaitThread(ThreadID(args[0].Int()))
				return uintptr(es.Code), nil, err
			}},
		},
	}
}

// newTestKernel returns an initialized kernel with the test syscall table
// and the given images registered.
func newTestKernel(t *testing.T, args InitKernelArgs, images ...*loader.Image) *Kernel {
	t.Helper()
	if args.SyscallTable == nil {
		args.SyscallTable = testSyscallTable()
	}
	args.Images = append(args.Images, images...)
	k := new(Kernel)
	if err := k.Init(args); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return k
}

// bootTestKernel boots the image named init.
func bootTestKernel(t *testing.T, k *Kernel, init string) *Process {
	t.Helper()
	p, err := k.Boot(init, []string{init}, nil)
	if err != nil {
		t.Fatalf("Boot(%q): %v", init, err)
	}
	return p
}

// runTestKernel runs k until the root process exits and waits for every
// thread goroutine to terminate.
func runTestKernel(t *testing.T, k *Kernel) ExitStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testRunTimeout)
	defer cancel()
	es, err := k.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := k.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	return es
}

// spawnTestProcess creates a child of parent running the named image
// without running the kernel.
func spawnTestProcess(t *testing.T, k *Kernel, parent *Process, name string) *Process {
	t.Helper()
	p, err := k.SpawnProcess(parent, name, []string{name}, nil)
	if err != nil {
		t.Fatalf("SpawnProcess(%v, %q): %v", parent, name, err)
	}
	return p
}

// spawnTestThread adds a thread to p as a copy of its main thread without
// running the kernel.
func spawnTestThread(t *testing.T, p *Process) *Thread {
	t.Helper()
	nt, err := p.spawnThread(p.Leader(), &CloneOptions{NewThread: true})
	if err != nil {
		t.Fatalf("spawnThread(%v): %v", p, err)
	}
	return nt
}

// scriptBuilder assembles a platform.Script. Op indices are stable, so
// addresses of later ops can be patched into earlier ones.
type scriptBuilder struct {
	ops []platform.Op
}

// label returns the index of the next op.
func (b *scriptBuilder) label() int {
	return len(b.ops)
}

// addr returns the user address of the op at index.
func (b *scriptBuilder) addr(index int) int64 {
	return int64(loader.DefaultTextBase) + int64(index)*platform.InstructionSize
}

func (b *scriptBuilder) add(ops ...platform.Op) {
	b.ops = append(b.ops, ops...)
}

// syscall appends a syscall with immediate arguments and returns the index
// of its first op.
func (b *scriptBuilder) syscall(sysno uintptr, args ...int64) int {
	at := b.label()
	b.add(platform.Syscall(sysno, args...)...)
	return at
}

// setArg patches argument i of the syscall at index at.
func (b *scriptBuilder) setArg(at, i int, v int64) {
	b.ops[at+1+i].Imm = v
}

// call appends an op that runs fn in user mode.
func (b *scriptBuilder) call(fn func(regs *arch.Registers)) {
	b.add(platform.Call(func(regs *arch.Registers, _ platform.Memory) {
		fn(regs)
	}))
}

// spawn appends a spawn of the named image, leaving the pid in a0.
func (b *scriptBuilder) spawn(name string) {
	b.add(
		platform.PushString(arch.RegA0, name),
		platform.Li(arch.RegA7, testSysSpawn),
		platform.Ecall(),
	)
}

// waitFor appends a blocking wait for the pid held in register reg.
func (b *scriptBuilder) waitFor(reg int) {
	b.add(
		platform.Mv(arch.RegA0, reg),
		platform.Li(arch.RegA1, 0),
		platform.Li(arch.RegA7, testSysWait),
		platform.Ecall(),
	)
}

func (b *scriptBuilder) image(name string) *loader.Image {
	return &loader.Image{Name: name, Program: &platform.Script{Ops: b.ops}}
}

// scriptImage returns an image running ops.
func scriptImage(name string, ops ...[]platform.Op) *loader.Image {
	var b scriptBuilder
	for _, o := range ops {
		b.add(o...)
	}
	return b.image(name)
}

// mustPanic fails the test if fn returns without panicking.
func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	fn()
}
