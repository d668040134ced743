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
	"rvos.dev/rvos/pkg/errors/linuxerr"
)

// maxSyncObjects bounds each of a process's mutex, semaphore and condition
// variable tables.
const maxSyncObjects = 1024

// syncQueue is a FIFO of threads blocked on a mutex, semaphore or condition
// variable. Each queued thread holds a reference.
//
// syncQueue is protected by Kernel.treeMu.
type syncQueue struct {
	threads []*Thread
}

// Mutex is a lock created by mutex_create. It has no owner: any thread of
// the process may unlock it.
//
// A blocking mutex queues contending threads and hands itself to the first
// of them on unlock. A spin mutex makes contending threads yield until it is
// free.
type Mutex struct {
	blocking bool
	locked   bool
	queue    syncQueue
}

// Semaphore is a counting semaphore created by semaphore_create. An up with
// threads queued passes the permit to the first of them instead of raising
// the count.
type Semaphore struct {
	count uint64
	queue syncQueue
}

// Condvar is a condition variable created by condvar_create.
type Condvar struct {
	queue syncQueue
}

// syncTables holds the synchronization objects of a process, indexed by the
// IDs returned at creation. Objects live until the process execs or is
// destroyed.
//
// syncTables is protected by Kernel.treeMu.
type syncTables struct {
	mutexes    []*Mutex
	semaphores []*Semaphore
	condvars   []*Condvar
}

// lookupSyncObject returns objs[id], failing with EINVAL for an unknown id.
func lookupSyncObject[T any](objs []*T, id int) (*T, error) {
	if id < 0 || id >= len(objs) {
		return nil, linuxerr.EINVAL
	}
	return objs[id], nil
}

// addSyncObject appends obj to *objs and returns its id.
func addSyncObject[T any](objs *[]*T, obj *T) (int, error) {
	if len(*objs) >= maxSyncObjects {
		return 0, linuxerr.ENOMEM
	}
	*objs = append(*objs, obj)
	return len(*objs) - 1, nil
}

// enqueueSyncLocked blocks t, the current thread, on q.
//
// Preconditions: k.treeMu is held.
func (k *Kernel) enqueueSyncLocked(q *syncQueue, t *Thread) {
	t.IncRef()
	t.syncQueue = q
	q.threads = append(q.threads, t)
	k.rq.Remove(t)
	t.setState(ThreadBlocked)
}

// wakeOneSyncLocked makes the first thread on q runnable and returns it, or
// returns nil if q is empty.
//
// Preconditions: k.treeMu is held.
func (k *Kernel) wakeOneSyncLocked(q *syncQueue) *Thread {
	if len(q.threads) == 0 {
		return nil
	}
	w := q.threads[0]
	q.threads = q.threads[1:]
	w.syncQueue = nil
	w.setState(ThreadReady)
	k.rq.Enqueue(w)
	w.DecRef()
	return w
}

// leaveSyncQueueLocked removes t from the sync queue it is on, if any, and
// reports whether it was on one.
//
// Preconditions: k.treeMu is held.
func (k *Kernel) leaveSyncQueueLocked(t *Thread) bool {
	q := t.syncQueue
	if q == nil {
		return false
	}
	for i, w := range q.threads {
		if w == t {
			q.threads = append(q.threads[:i], q.threads[i+1:]...)
			break
		}
	}
	t.syncQueue = nil
	t.DecRef()
	return true
}

// blockSync gives up the hart after t was queued with treeMu held, and
// reports whether t was woken rather than interrupted.
//
// Preconditions: t is the current thread; k.treeMu is not held.
func (t *Thread) blockSync() bool {
	t.block()
	return !t.interrupted.Swap(false)
}

// CreateMutex creates a mutex in t's process and returns its id.
func (t *Thread) CreateMutex(blocking bool) (int, error) {
	k := t.k
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	p := t.Process()
	return addSyncObject(&p.syncObjs.mutexes, &Mutex{blocking: blocking})
}

// LockMutex acquires mutex id. It fails with EINVAL for an unknown id and
// with EINTR, without the mutex, if a signal arrives first.
//
// Preconditions: t is the current thread.
func (t *Thread) LockMutex(id int) error {
	k := t.k
	for {
		k.treeMu.Lock()
		m, err := lookupSyncObject(t.Process().syncObjs.mutexes, id)
		if err != nil {
			k.treeMu.Unlock()
			return err
		}
		if !m.locked {
			m.locked = true
			k.treeMu.Unlock()
			return nil
		}
		if t.hasPendingSignal() {
			k.treeMu.Unlock()
			return linuxerr.EINTR
		}
		if !m.blocking {
			k.treeMu.Unlock()
			t.Yield()
			continue
		}
		k.enqueueSyncLocked(&m.queue, t)
		k.treeMu.Unlock()

		if !t.blockSync() {
			return linuxerr.EINTR
		}
		// UnlockMutex left m locked for t.
		return nil
	}
}

// UnlockMutex releases mutex id. It fails with EPERM if the mutex is not
// locked.
func (t *Thread) UnlockMutex(id int) error {
	k := t.k
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	m, err := lookupSyncObject(t.Process().syncObjs.mutexes, id)
	if err != nil {
		return err
	}
	return k.unlockMutexLocked(m)
}

// unlockMutexLocked releases m, handing it to the first queued thread if
// there is one.
//
// Preconditions: k.treeMu is held.
func (k *Kernel) unlockMutexLocked(m *Mutex) error {
	if !m.locked {
		return linuxerr.EPERM
	}
	if k.wakeOneSyncLocked(&m.queue) == nil {
		m.locked = false
	}
	return nil
}

// CreateSemaphore creates a semaphore holding count permits in t's process
// and returns its id.
func (t *Thread) CreateSemaphore(count uint64) (int, error) {
	k := t.k
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	p := t.Process()
	return addSyncObject(&p.syncObjs.semaphores, &Semaphore{count: count})
}

// SemaphoreUp returns a permit to semaphore id.
func (t *Thread) SemaphoreUp(id int) error {
	k := t.k
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	s, err := lookupSyncObject(t.Process().syncObjs.semaphores, id)
	if err != nil {
		return err
	}
	if k.wakeOneSyncLocked(&s.queue) == nil {
		s.count++
	}
	return nil
}

// SemaphoreDown takes a permit from semaphore id, blocking until one is
// available. It fails with EINTR, without a permit, if a signal arrives
// first.
//
// Preconditions: t is the current thread.
func (t *Thread) SemaphoreDown(id int) error {
	k := t.k
	k.treeMu.Lock()
	s, err := lookupSyncObject(t.Process().syncObjs.semaphores, id)
	if err != nil {
		k.treeMu.Unlock()
		return err
	}
	if s.count > 0 {
		s.count--
		k.treeMu.Unlock()
		return nil
	}
	if t.hasPendingSignal() {
		k.treeMu.Unlock()
		return linuxerr.EINTR
	}
	k.enqueueSyncLocked(&s.queue, t)
	k.treeMu.Unlock()

	if !t.blockSync() {
		return linuxerr.EINTR
	}
	return nil
}

// CreateCondvar creates a condition variable in t's process and returns its
// id.
func (t *Thread) CreateCondvar() (int, error) {
	k := t.k
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	p := t.Process()
	return addSyncObject(&p.syncObjs.condvars, &Condvar{})
}

// CondvarSignal wakes the first thread waiting on condition variable id, if
// any.
func (t *Thread) CondvarSignal(id int) error {
	k := t.k
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	c, err := lookupSyncObject(t.Process().syncObjs.condvars, id)
	if err != nil {
		return err
	}
	k.wakeOneSyncLocked(&c.queue)
	return nil
}

// CondvarWait releases mutex mid, waits on condition variable cid and
// reacquires the mutex once signalled. Releasing the mutex and queueing on
// the condition variable are atomic with respect to CondvarSignal.
//
// It fails with EPERM if the mutex is not locked. If a signal arrives after
// the mutex was released, it fails with EINTR and the mutex is not held.
//
// Preconditions: t is the current thread.
func (t *Thread) CondvarWait(cid, mid int) error {
	k := t.k
	k.treeMu.Lock()
	objs := &t.Process().syncObjs
	c, err := lookupSyncObject(objs.condvars, cid)
	if err != nil {
		k.treeMu.Unlock()
		return err
	}
	m, err := lookupSyncObject(objs.mutexes, mid)
	if err != nil {
		k.treeMu.Unlock()
		return err
	}
	if err := k.unlockMutexLocked(m); err != nil {
		k.treeMu.Unlock()
		return err
	}
	if t.hasPendingSignal() {
		k.treeMu.Unlock()
		return linuxerr.EINTR
	}
	k.enqueueSyncLocked(&c.queue, t)
	k.treeMu.Unlock()

	if !t.blockSync() {
		return linuxerr.EINTR
	}
	return t.LockMutex(mid)
}

// MutexLocked reports whether mutex id of p is locked.
func (p *Process) MutexLocked(id int) (bool, error) {
	p.k.treeMu.Lock()
	defer p.k.treeMu.Unlock()
	m, err := lookupSyncObject(p.syncObjs.mutexes, id)
	if err != nil {
		return false, err
	}
	return m.locked, nil
}

// SemaphoreCount returns the free permits of semaphore id of p.
func (p *Process) SemaphoreCount(id int) (uint64, error) {
	p.k.treeMu.Lock()
	defer p.k.treeMu.Unlock()
	s, err := lookupSyncObject(p.syncObjs.semaphores, id)
	if err != nil {
		return 0, err
	}
	return s.count, nil
}
