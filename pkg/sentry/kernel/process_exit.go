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
)

// exitMainThreadLocked terminates p: every thread is stopped, the descriptor
// table is cleared, the address space is destroyed, children are handed to
// the root process, and the parent is notified. The PCB itself survives
// until the parent reaps it.
//
// Preconditions: p.k.treeMu is held.
func (p *Process) exitMainThreadLocked(es ExitStatus) {
	k := p.k
	if p.exited {
		return
	}
	p.exited = true
	p.exitStatus = es

	for t := p.threads.Front(); t != nil; t = t.Next() {
		k.stopThreadLocked(t, es)
	}

	p.fdTable.Clear()
	p.MemoryManager().Destroy()
	p.reparentOrphansLocked()

	processesExited.Increment()
	log.Infof("Process %d (%s) exited: %v", p.pid, p.Name(), es)

	if parent := p.parent; parent != nil {
		k.wakeWaitersLocked(parent)
		k.sendSignalLocked(parent, linux.SIGCHLD)
	}
}

// reparentOrphansLocked moves p's children to the root process. Each child
// is moved at most once, since root never exits before its children are
// reparented and is never itself reparented.
//
// Preconditions: p.k.treeMu is held.
func (p *Process) reparentOrphansLocked() {
	k := p.k
	root := k.root
	if p == root || len(p.children) == 0 {
		return
	}
	for _, c := range p.children {
		c.parent = root
		c.reparented++
		root.children = append(root.children, c)
		orphansReparented.Increment()
		log.Debugf("Process %d reparented from %d to %d", c.pid, p.pid, root.pid)
	}
	p.children = nil
	// Some of the orphans may already be waiting to be reaped.
	k.wakeWaitersLocked(root)
}

// destroyLocked runs the third phase of process death: p leaves the process
// table and drops its references on its threads, freeing each one that has
// no other owner.
//
// Preconditions: p.k.treeMu is held; p has exited and been removed from its
// parent.
func (p *Process) destroyLocked() {
	if !p.exited {
		invariantViolation("destroying %v before it exited", p)
	}
	if p.destroyed {
		invariantViolation("%v destroyed twice", p)
	}
	p.destroyed = true
	p.reparentOrphansLocked()
	p.k.table.removeProcess(p)
	for t := p.threads.Front(); t != nil; {
		next := t.Next()
		p.threads.Remove(t)
		t.DecRef()
		t = next
	}
	processesReaped.Increment()
}

// Reap collects an exited child of parent and returns its pid and exit
// status. A pid of -1 matches any child. Reap fails with ECHILD if no
// matching child has exited.
func (k *Kernel) Reap(parent *Process, pid ThreadID) (ThreadID, ExitStatus, error) {
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	c, _ := parent.findChildLocked(pid)
	if c == nil {
		return 0, ExitStatus{}, linuxerr.ECHILD
	}
	return c.pid, parent.reapLocked(c), nil
}

// findChildLocked returns the first exited child matching pid. matched is
// true if any child matches, exited or not.
//
// Preconditions: p.k.treeMu is held.
func (p *Process) findChildLocked(pid ThreadID) (zombie *Process, matched bool) {
	for _, c := range p.children {
		if pid != -1 && c.pid != pid {
			continue
		}
		matched = true
		if c.exited {
			return c, true
		}
	}
	return nil, matched
}

// reapLocked removes the exited child c from p and destroys it.
//
// Preconditions: p.k.treeMu is held.
func (p *Process) reapLocked(c *Process) ExitStatus {
	for i, child := range p.children {
		if child == c {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	c.parent = nil
	c.destroyLocked()
	log.Debugf("Process %d reaped process %d: %v", p.pid, c.pid, c.exitStatus)
	return c.exitStatus
}
