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
	"fmt"
	"sync"

	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/ilist"
	"rvos.dev/rvos/pkg/sentry/loader"
	"rvos.dev/rvos/pkg/sentry/mm"
	"rvos.dev/rvos/pkg/sentry/platform"
)

// maxThreadStacks bounds the user stack slots of a process.
const maxThreadStacks = 256

// Process is a process control block: an address space, a file descriptor
// table and signal handlers shared by one or more threads.
//
// A process is identified by the ID of the thread it was created with. It
// stays in the process table until its parent reaps it.
type Process struct {
	k   *Kernel
	pid ThreadID

	// gen distinguishes processes that reuse a pid.
	gen uint64

	// The following fields are protected by Kernel.treeMu.

	// parent is nil only for the root process.
	parent   *Process
	children []*Process

	// threads holds a reference on every thread until the process is
	// destroyed or the thread is collected by waittid.
	threads ilist.List[*Thread]

	// leader is the main thread. Its exit ends the process.
	leader *Thread

	exited     bool
	exitStatus ExitStatus
	destroyed  bool

	// waiters are threads blocked waiting for a child of this process, or
	// one of its threads, to exit. Each holds a reference.
	waiters []*Thread

	// syncObjs holds the mutexes, semaphores and condition variables
	// created by the process's threads.
	syncObjs syncTables

	// reparented counts how often the process has been moved to root.
	reparented int

	// mu protects the execution image, which execve replaces.
	mu      sync.Mutex
	mm      *mm.MemoryManager
	image   *loader.Image
	program platform.Program

	fdTable  *FDTable
	handlers *SigHandlers

	// stackSlots allocates user stacks for threads other than the one the
	// image was loaded for, which uses slot 0.
	stackSlots *idAllocator

	// signalMu protects pendingSignals and the SignalReceiver of every
	// thread in the process.
	signalMu       sync.Mutex
	pendingSignals linux.SignalSet
}

func (p *Process) ref() processRef {
	return processRef{pid: p.pid, gen: p.gen}
}

// PID returns the process ID.
func (p *Process) PID() ThreadID {
	return p.pid
}

// Kernel returns the kernel p belongs to.
func (p *Process) Kernel() *Kernel {
	return p.k
}

// Parent returns the parent process, or nil for the root process.
func (p *Process) Parent() *Process {
	p.k.treeMu.Lock()
	defer p.k.treeMu.Unlock()
	return p.parent
}

// ParentPID returns the parent's pid, or 0 for the root process.
func (p *Process) ParentPID() ThreadID {
	if parent := p.Parent(); parent != nil {
		return parent.pid
	}
	return 0
}

// Leader returns the main thread.
func (p *Process) Leader() *Thread {
	p.k.treeMu.Lock()
	defer p.k.treeMu.Unlock()
	return p.leader
}

// Name returns the name of the image the process is executing.
func (p *Process) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.image.Name
}

// MemoryManager returns the process's address space.
func (p *Process) MemoryManager() *mm.MemoryManager {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mm
}

// userContext returns what a thread needs to execute in user mode.
func (p *Process) userContext() (platform.Program, *mm.MemoryManager) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.program, p.mm
}

// FDTable returns the process's descriptor table.
func (p *Process) FDTable() *FDTable {
	return p.fdTable
}

// SignalHandlers returns the process's signal actions.
func (p *Process) SignalHandlers() *SigHandlers {
	return p.handlers
}

// ExitStatus returns the exit status and true once the process has exited.
func (p *Process) ExitStatus() (ExitStatus, bool) {
	p.k.treeMu.Lock()
	defer p.k.treeMu.Unlock()
	return p.exitStatus, p.exited
}

// Exited returns true once the main thread has exited.
func (p *Process) Exited() bool {
	_, exited := p.ExitStatus()
	return exited
}

// Destroyed returns true once the process has been reaped.
func (p *Process) Destroyed() bool {
	p.k.treeMu.Lock()
	defer p.k.treeMu.Unlock()
	return p.destroyed
}

// Reparented returns the number of times the process was moved to root.
func (p *Process) Reparented() int {
	p.k.treeMu.Lock()
	defer p.k.treeMu.Unlock()
	return p.reparented
}

// ThreadIDs returns the IDs of the threads in the thread set, including
// exited threads that have not been collected.
func (p *Process) ThreadIDs() []ThreadID {
	p.k.treeMu.Lock()
	defer p.k.treeMu.Unlock()
	var tids []ThreadID
	for t := p.threads.Front(); t != nil; t = t.Next() {
		tids = append(tids, t.tid)
	}
	return tids
}

// ChildPIDs returns the pids of the unreaped children, in creation order.
func (p *Process) ChildPIDs() []ThreadID {
	p.k.treeMu.Lock()
	defer p.k.treeMu.Unlock()
	pids := make([]ThreadID, 0, len(p.children))
	for _, c := range p.children {
		pids = append(pids, c.pid)
	}
	return pids
}

// String implements fmt.Stringer.String.
func (p *Process) String() string {
	return fmt.Sprintf("process %d", p.pid)
}

// processTable indexes live processes and threads by ID.
type processTable struct {
	mu        sync.Mutex
	gen       uint64
	processes map[ThreadID]*Process
	threads   map[ThreadID]*Thread
}

func (pt *processTable) init() {
	pt.processes = make(map[ThreadID]*Process)
	pt.threads = make(map[ThreadID]*Thread)
}

// nextGen returns a fresh process generation.
func (pt *processTable) nextGen() uint64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.gen++
	return pt.gen
}

func (pt *processTable) addProcess(p *Process) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if old, ok := pt.processes[p.pid]; ok {
		invariantViolation("pid %d already used by %v", p.pid, old)
	}
	pt.processes[p.pid] = p
}

func (pt *processTable) removeProcess(p *Process) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.processes[p.pid] == p {
		delete(pt.processes, p.pid)
	}
}

// lookup resolves a weak process reference.
func (pt *processTable) lookup(ref processRef) *Process {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if p, ok := pt.processes[ref.pid]; ok && p.gen == ref.gen {
		return p
	}
	return nil
}

func (pt *processTable) process(pid ThreadID) *Process {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.processes[pid]
}

func (pt *processTable) addThread(t *Thread) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.threads[t.tid] = t
}

func (pt *processTable) removeThread(tid ThreadID) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.threads, tid)
}

func (pt *processTable) thread(tid ThreadID) *Thread {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.threads[tid]
}

// allThreads returns every thread that has not been freed.
func (pt *processTable) allThreads() []*Thread {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	ts := make([]*Thread, 0, len(pt.threads))
	for _, t := range pt.threads {
		ts = append(ts, t)
	}
	return ts
}

func (pt *processTable) numProcesses() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return len(pt.processes)
}
