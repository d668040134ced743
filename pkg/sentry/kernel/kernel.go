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

// Package kernel provides an emulation of the task-management core of a
// Unix-like kernel on a single simulated RISC-V hart.
//
// Threads are scheduled cooperatively: each thread's kernel execution runs on
// its own goroutine, and exactly one of them (or the idle loop) holds the hart
// at a time. A thread gives up the hart only by switching back to the idle
// loop, which happens at trap entry when the thread yields, sleeps, waits or
// exits.
//
// Lock order:
//
//	Kernel.treeMu
//		Process.signalMu
//		SigHandlers.mu
//		Process.mu
//			SleepRegistry.mu
//			ReadyQueue.mu
//			Processor.mu
//			processTable.mu
//			mm.MemoryManager.mu
//
// No lock is held across a context switch.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/sentry/loader"
	"rvos.dev/rvos/pkg/sentry/platform"
)

const (
	// DefaultMaxThreads is the default bound on live thread IDs.
	DefaultMaxThreads = 1024

	// DefaultKernelStacks is the default number of kernel stacks.
	DefaultKernelStacks = 64

	// DefaultTickPeriod is the default timer interrupt period.
	DefaultTickPeriod = 10 * time.Millisecond

	// DefaultTimeslice is the default number of instructions a thread runs
	// between timer interrupts.
	DefaultTimeslice = 10000

	// trapReturnAddr is the kernel address of the trap return path, the
	// return address every new kernel context starts at.
	trapReturnAddr hostarch.Addr = 0xffff_ffff_8020_0100
)

// invariantViolation reports a broken kernel invariant. These are bugs, not
// recoverable errors.
func invariantViolation(format string, v ...any) {
	panic(fmt.Sprintf("invariant violation: "+format, v...))
}

// InitKernelArgs holds arguments to Init.
type InitKernelArgs struct {
	// Timeslice is the number of user instructions between timer
	// interrupts. Zero disables the instruction timer; interrupts then only
	// arrive through RaiseInterrupt.
	Timeslice uint64

	// TickPeriod is the simulated time between timer interrupts.
	TickPeriod time.Duration

	// MaxThreads bounds the number of thread IDs in use.
	MaxThreads int

	// KernelStacks is the number of kernel stacks, which bounds the number
	// of threads that have not been switched away from for the last time.
	KernelStacks int

	// SyscallTable is the system call table threads use.
	SyscallTable *SyscallTable

	// Images are the executables processes may load.
	Images []*loader.Image

	// Console receives writes to the standard descriptors. If nil, output
	// is discarded.
	Console io.Writer

	// LogRateLimit is the minimum interval between repeated warnings about
	// unknown syscalls.
	LogRateLimit time.Duration
}

// Kernel represents an emulated kernel. It must be initialized by calling
// Init() before use.
type Kernel struct {
	hart *platform.Hart

	// The scheduler.
	proc     Processor
	rq       ReadyQueue
	sleepers SleepRegistry

	kstacks *KernelStackPool
	tids    *idAllocator
	table   processTable

	// treeMu protects the process tree and the exit state of every process
	// and thread. See Process and Thread for the fields it covers.
	treeMu sync.Mutex

	// root is the process created by Boot. It is never destroyed.
	root *Process

	syscalls   *SyscallTable
	tickPeriod time.Duration
	bootTime   time.Time
	ticks      atomic.Uint64
	console    io.Writer

	// unknownSyscallLog rate limits warnings for unknown syscalls.
	unknownSyscallLog log.Logger

	imagesMu sync.RWMutex
	images   map[string]*loader.Image

	running atomic.Bool
	halted  atomic.Bool
}

// Init initializes a Kernel with no processes.
func (k *Kernel) Init(args InitKernelArgs) error {
	if args.SyscallTable == nil {
		return errors.New("args.SyscallTable is nil")
	}
	if args.TickPeriod == 0 {
		args.TickPeriod = DefaultTickPeriod
	}
	if args.TickPeriod < 0 {
		return fmt.Errorf("invalid tick period %v", args.TickPeriod)
	}
	if args.MaxThreads == 0 {
		args.MaxThreads = DefaultMaxThreads
	}
	if args.KernelStacks == 0 {
		args.KernelStacks = DefaultKernelStacks
	}
	if args.MaxThreads < 0 || args.KernelStacks < 0 {
		return fmt.Errorf("invalid limits: %d threads, %d kernel stacks", args.MaxThreads, args.KernelStacks)
	}
	if args.Console == nil {
		args.Console = io.Discard
	}
	if args.LogRateLimit == 0 {
		args.LogRateLimit = time.Second
	}

	k.hart = platform.NewHart(args.Timeslice)
	k.proc.k = k
	k.sleepers.init(&k.rq)
	k.kstacks = NewKernelStackPool(args.KernelStacks)
	k.tids = newIDAllocator(1, args.MaxThreads+1)
	k.table.init()
	k.syscalls = args.SyscallTable
	k.tickPeriod = args.TickPeriod
	k.bootTime = time.Now()
	k.console = args.Console
	k.unknownSyscallLog = log.BasicRateLimitedLogger(args.LogRateLimit)
	k.images = make(map[string]*loader.Image)
	for _, img := range args.Images {
		if err := k.RegisterImage(img); err != nil {
			return err
		}
	}
	return nil
}

// RegisterImage makes img loadable under img.Name.
func (k *Kernel) RegisterImage(img *loader.Image) error {
	k.imagesMu.Lock()
	defer k.imagesMu.Unlock()
	if _, ok := k.images[img.Name]; ok {
		return fmt.Errorf("image %q registered twice", img.Name)
	}
	k.images[img.Name] = img
	return nil
}

// LookupImage returns the image registered under name. It fails with
// ENOENT.
func (k *Kernel) LookupImage(name string) (*loader.Image, error) {
	k.imagesMu.RLock()
	defer k.imagesMu.RUnlock()
	if img, ok := k.images[name]; ok {
		return img, nil
	}
	return nil, linuxerr.ENOENT
}

// Hart returns the simulated hart.
func (k *Kernel) Hart() *platform.Hart {
	return k.hart
}

// Processor returns the processor slot.
func (k *Kernel) Processor() *Processor {
	return &k.proc
}

// ReadyQueue returns the scheduler's ready queue.
func (k *Kernel) ReadyQueue() *ReadyQueue {
	return &k.rq
}

// SleepRegistry returns the timer registry.
func (k *Kernel) SleepRegistry() *SleepRegistry {
	return &k.sleepers
}

// KernelStacks returns the kernel stack pool.
func (k *Kernel) KernelStacks() *KernelStackPool {
	return k.kstacks
}

// SyscallTable returns the syscall table.
func (k *Kernel) SyscallTable() *SyscallTable {
	return k.syscalls
}

// Version returns the application-visible system version.
func (k *Kernel) Version() Version {
	return k.syscalls.Version
}

// RootProcess returns the process created by Boot.
func (k *Kernel) RootProcess() *Process {
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	return k.root
}

// ProcessByPID returns the live or unreaped process with the given pid.
func (k *Kernel) ProcessByPID(pid ThreadID) *Process {
	return k.table.process(pid)
}

// ThreadByID returns the thread with the given ID if it has not been freed.
func (k *Kernel) ThreadByID(tid ThreadID) *Thread {
	return k.table.thread(tid)
}

// NumProcesses returns the number of processes in the process table.
func (k *Kernel) NumProcesses() int {
	return k.table.numProcesses()
}

// LiveThreads returns the number of thread IDs in use.
func (k *Kernel) LiveThreads() int {
	return k.tids.inUse()
}

// allocateTID reserves a thread ID. It fails with EAGAIN.
func (k *Kernel) allocateTID() (ThreadID, error) {
	id, ok := k.tids.allocate()
	if !ok {
		return 0, linuxerr.EAGAIN
	}
	return ThreadID(id), nil
}

// Now returns the number of timer ticks since boot.
func (k *Kernel) Now() uint64 {
	return k.ticks.Load()
}

// TickPeriod returns the simulated time between ticks.
func (k *Kernel) TickPeriod() time.Duration {
	return k.tickPeriod
}

// MonotonicTime returns the simulated time since boot.
func (k *Kernel) MonotonicTime() time.Duration {
	return time.Duration(k.Now()) * k.tickPeriod
}

// RealtimeTime returns the simulated wall clock.
func (k *Kernel) RealtimeTime() time.Time {
	return k.bootTime.Add(k.MonotonicTime())
}

// Tick handles one timer interrupt: it advances the tick count and wakes
// sleepers whose deadline has passed.
func (k *Kernel) Tick() {
	now := k.ticks.Add(1)
	timerTicks.Increment()
	k.sleepers.Tick(now)
}

// serviceTimer acknowledges a pending timer interrupt and ticks.
func (k *Kernel) serviceTimer() {
	k.hart.SetNextTrigger()
	k.hart.Ack()
	k.Tick()
}

// RaiseInterrupt makes a timer interrupt pending. It may be called from any
// goroutine.
func (k *Kernel) RaiseInterrupt() {
	k.hart.Raise()
}

// Boot creates the root process executing the named image. It must be
// called once, before Run.
func (k *Kernel) Boot(filename string, argv, envv []string) (*Process, error) {
	if k.RootProcess() != nil {
		return nil, errors.New("kernel already booted")
	}
	p, err := k.SpawnProcess(nil, filename, argv, envv)
	if err != nil {
		return nil, fmt.Errorf("creating root process %q: %w", filename, err)
	}
	log.Infof("Booted root process %d (%s)", p.pid, filename)
	return p, nil
}

// rootExitStatus returns the root process's exit status once it has exited.
func (k *Kernel) rootExitStatus() (ExitStatus, bool) {
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	if k.root == nil || !k.root.exited {
		return ExitStatus{}, false
	}
	return k.root.exitStatus, true
}

// Run runs the idle loop on the calling goroutine until the root process
// exits, returning its exit status. It returns an error if ctx is cancelled
// or every remaining thread is blocked forever. All remaining threads are
// stopped before Run returns.
func (k *Kernel) Run(ctx context.Context) (ExitStatus, error) {
	if k.RootProcess() == nil {
		return ExitStatus{}, errors.New("kernel not booted")
	}
	if !k.running.CompareAndSwap(false, true) {
		return ExitStatus{}, errors.New("kernel already running")
	}
	es, err := k.proc.Loop(ctx)
	k.halt()
	if err != nil {
		log.Warningf("Kernel stopped: %v", err)
	} else {
		log.Infof("Root process exited: %v", es)
	}
	return es, err
}

// halt terminates the goroutines of all remaining threads.
//
// Preconditions: no thread holds the hart.
func (k *Kernel) halt() {
	k.halted.Store(true)
	for _, t := range k.table.allThreads() {
		t.kctx.Kill()
	}
}

// Halted returns true once Run has returned.
func (k *Kernel) Halted() bool {
	return k.halted.Load()
}

// WaitIdle waits until every thread goroutine has terminated. It is used
// after Run to let killed goroutines unwind.
func (k *Kernel) WaitIdle(ctx context.Context) error {
	b := backoff.WithContext(backoff.NewConstantBackOff(time.Millisecond), ctx)
	return backoff.Retry(func() error {
		if n := k.hart.LiveContexts(); n != 0 {
			return fmt.Errorf("%d thread goroutines still running", n)
		}
		return nil
	}, b)
}
