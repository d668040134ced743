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
	"encoding/binary"

	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/loader"
	"rvos.dev/rvos/pkg/sentry/mm"
)

// CloneOptions controls the behavior of Thread.Clone.
type CloneOptions struct {
	// NewThread creates a thread in the caller's process. Otherwise the
	// caller's process is duplicated.
	NewThread bool

	// Stack is the child's initial stack pointer. If zero, a new thread
	// gets a freshly mapped user stack and a new process inherits the
	// caller's stack pointer.
	Stack hostarch.Addr

	// Entry, if non-zero, is where the child starts executing, with Arg in
	// a0. Otherwise the child returns from the clone with a0 set to zero.
	Entry hostarch.Addr
	Arg   uint64

	// SetTLS sets the child's thread pointer to TLS.
	SetTLS bool
	TLS    uint64

	// ChildClearTID is written with zero when the child exits.
	ChildClearTID hostarch.Addr

	// ParentSetTID, if non-zero, receives the child's ID in the caller's
	// address space.
	ParentSetTID hostarch.Addr
}

// childRegs returns the initial trap context of a clone of t.
func (t *Thread) childRegs(opts *CloneOptions) arch.Registers {
	regs := t.Regs().Fork()
	regs.SetReturn(0)
	if opts.Stack != 0 {
		regs.SetStack(uint64(opts.Stack))
	}
	if opts.Entry != 0 {
		regs.SetIP(uint64(opts.Entry))
		regs.X[arch.RegA0] = opts.Arg
	}
	if opts.SetTLS {
		regs.SetTLS(opts.TLS)
	}
	return regs
}

// Clone creates a thread or process as a copy of t and returns its ID. The
// child is runnable when Clone returns.
//
// Preconditions: t is the current thread.
func (t *Thread) Clone(opts *CloneOptions) (ThreadID, error) {
	var tid ThreadID
	if opts.NewThread {
		nt, err := t.Process().spawnThread(t, opts)
		if err != nil {
			return 0, err
		}
		tid = nt.tid
	} else {
		child, err := t.k.ForkProcess(t, opts)
		if err != nil {
			return 0, err
		}
		tid = child.pid
	}
	if opts.ParentSetTID != 0 {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(tid))
		if _, err := t.CopyOut(opts.ParentSetTID, buf[:]); err != nil {
			log.Debugf("[%d] CLONE_PARENT_SETTID at %v: %v", t.tid, opts.ParentSetTID, err)
		}
	}
	return tid, nil
}

// spawnThread creates a thread in p as a copy of caller, links it into the
// thread set and makes it runnable.
func (p *Process) spawnThread(caller *Thread, opts *CloneOptions) (*Thread, error) {
	k := p.k
	tid, err := k.allocateTID()
	if err != nil {
		return nil, err
	}
	regs := caller.childRegs(opts)
	slot := 0
	if opts.Stack == 0 {
		s, ok := p.stackSlots.allocate()
		if !ok {
			k.tids.release(int(tid))
			return nil, linuxerr.EAGAIN
		}
		top, err := loader.MapStack(p.MemoryManager(), s)
		if err != nil {
			p.stackSlots.release(s)
			k.tids.release(int(tid))
			return nil, err
		}
		regs.SetStack(uint64(top))
		slot = s
	}
	t, err := k.newThread(threadConfig{
		tid:        tid,
		process:    p,
		regs:       regs,
		signalMask: caller.SignalMask(),
		stackSlot:  slot,
	})
	if err != nil {
		if slot != 0 {
			if err := loader.UnmapStack(p.MemoryManager(), slot); err != nil {
				log.Debugf("[%d] unmapping user stack %d: %v", caller.tid, slot, err)
			}
			p.stackSlots.release(slot)
		}
		k.tids.release(int(tid))
		return nil, err
	}

	k.treeMu.Lock()
	p.threads.PushBack(t)
	t.clearTID = opts.ChildClearTID
	k.treeMu.Unlock()

	log.Debugf("[%d] Created thread %d in process %d", caller.tid, tid, p.pid)
	k.rq.Enqueue(t)
	return t, nil
}

// ForkProcess creates a child of caller's process with a copy of its address
// space, descriptor table and signal handlers. The child has one thread, a
// copy of caller.
func (k *Kernel) ForkProcess(caller *Thread, opts *CloneOptions) (*Process, error) {
	parent := caller.Process()
	parent.mu.Lock()
	m, err := parent.mm.Fork()
	img, prog := parent.image, parent.program
	parent.mu.Unlock()
	if err != nil {
		return nil, err
	}
	tid, err := k.allocateTID()
	if err != nil {
		m.Destroy()
		return nil, err
	}
	child := &Process{
		k:          k,
		pid:        tid,
		gen:        k.table.nextGen(),
		mm:         m,
		image:      img,
		program:    prog,
		fdTable:    parent.fdTable.Fork(),
		handlers:   parent.handlers.Fork(),
		stackSlots: parent.stackSlots.clone(),
	}
	t, err := k.newThread(threadConfig{
		tid:        tid,
		process:    child,
		regs:       caller.childRegs(opts),
		signalMask: caller.SignalMask(),
	})
	if err != nil {
		k.tids.release(int(tid))
		child.fdTable.Clear()
		m.Destroy()
		return nil, err
	}
	t.clearTID = opts.ChildClearTID
	k.startProcess(parent, child, t)
	log.Debugf("[%d] Forked process %d", caller.tid, child.pid)
	return child, nil
}

// SpawnProcess creates a child of parent executing the named image with a
// fresh address space and standard descriptors. A nil parent creates the
// root process, or a child of it once the root exists.
func (k *Kernel) SpawnProcess(parent *Process, filename string, argv, envv []string) (*Process, error) {
	img, err := k.LookupImage(filename)
	if err != nil {
		return nil, err
	}
	m := mm.NewMemoryManager()
	l, err := loader.Load(loader.LoadArgs{
		MemoryManager: m,
		Image:         img,
		Argv:          argv,
		Envv:          envv,
		Resolve:       k.LookupImage,
	})
	if err != nil {
		m.Destroy()
		return nil, err
	}
	tid, err := k.allocateTID()
	if err != nil {
		m.Destroy()
		return nil, err
	}
	p := &Process{
		k:          k,
		pid:        tid,
		gen:        k.table.nextGen(),
		mm:         m,
		image:      l.Image,
		program:    l.Program,
		fdTable:    k.newStdioFDTable(),
		handlers:   NewSigHandlers(),
		stackSlots: newIDAllocator(1, maxThreadStacks),
	}
	t, err := k.newThread(threadConfig{
		tid:     tid,
		process: p,
		regs:    arch.NewUserRegisters(uint64(l.Entry), uint64(l.StackPointer)),
	})
	if err != nil {
		k.tids.release(int(tid))
		p.fdTable.Clear()
		m.Destroy()
		return nil, err
	}
	k.startProcess(parent, p, t)
	return p, nil
}

// startProcess publishes p, whose only thread is t, and makes t runnable.
func (k *Kernel) startProcess(parent, p *Process, t *Thread) {
	k.table.addProcess(p)
	k.treeMu.Lock()
	p.threads.PushBack(t)
	p.leader = t
	if parent == nil {
		parent = k.root
	}
	p.parent = parent
	if parent != nil {
		parent.children = append(parent.children, p)
	} else {
		k.root = p
	}
	k.treeMu.Unlock()
	processesCreated.Increment()
	k.rq.Enqueue(t)
}
