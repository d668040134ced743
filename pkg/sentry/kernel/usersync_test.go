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
	"testing"

	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/errors/linuxerr"
)

// queueOnMutex blocks th, which must be off the ready queue, on a locked
// blocking mutex of its process.
func queueOnMutex(t *testing.T, th *Thread) *Mutex {
	t.Helper()
	id, err := th.CreateMutex(true)
	if err != nil {
		t.Fatalf("CreateMutex: %v", err)
	}
	if err := th.LockMutex(id); err != nil {
		t.Fatalf("LockMutex: %v", err)
	}
	k := th.Kernel()
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	m := th.Process().syncObjs.mutexes[id]
	k.ReadyQueue().Remove(th)
	th.setState(ThreadRunning)
	k.enqueueSyncLocked(&m.queue, th)
	return m
}

func TestMutexUncontended(t *testing.T) {
	_, ps := newQueueTestKernel(t)
	a := ps[1]
	th := a.Leader()

	for _, blocking := range []bool{true, false} {
		id, err := th.CreateMutex(blocking)
		if err != nil {
			t.Fatalf("CreateMutex(%t): %v", blocking, err)
		}
		if err := th.LockMutex(id); err != nil {
			t.Errorf("LockMutex(%d): %v", id, err)
		}
		if locked, err := a.MutexLocked(id); err != nil || !locked {
			t.Errorf("MutexLocked(%d) after lock: got (%t, %v), wanted (true, nil)", id, locked, err)
		}
		if err := th.UnlockMutex(id); err != nil {
			t.Errorf("UnlockMutex(%d): %v", id, err)
		}
		if err := th.UnlockMutex(id); !linuxerr.Equals(linuxerr.EPERM, err) {
			t.Errorf("UnlockMutex(%d) twice: got %v, wanted EPERM", id, err)
		}
	}
	if err := th.LockMutex(7); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("LockMutex(7): got %v, wanted EINVAL", err)
	}
}

func TestMutexHandoff(t *testing.T) {
	k, ps := newQueueTestKernel(t)
	a := ps[1]
	th := a.Leader()
	m := queueOnMutex(t, th)

	k.treeMu.Lock()
	err := k.unlockMutexLocked(m)
	k.treeMu.Unlock()
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	// The lock passes to the waiter instead of being released.
	if !m.locked {
		t.Errorf("mutex released with a thread queued")
	}
	if th.syncQueue != nil || len(m.queue.threads) != 0 {
		t.Errorf("%v still queued after handoff", th)
	}
	if got := th.State(); got != ThreadReady {
		t.Errorf("%v: state %v, wanted %v", th, got, ThreadReady)
	}
	if !k.ReadyQueue().Contains(th) {
		t.Errorf("%v not queued to run after handoff", th)
	}
	if th.interrupted.Load() {
		t.Errorf("%v marked interrupted after handoff", th)
	}
}

func TestSemaphore(t *testing.T) {
	_, ps := newQueueTestKernel(t)
	a := ps[1]
	th := a.Leader()

	id, err := th.CreateSemaphore(2)
	if err != nil {
		t.Fatalf("CreateSemaphore: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := th.SemaphoreDown(id); err != nil {
			t.Errorf("SemaphoreDown #%d: %v", i, err)
		}
	}
	if n, _ := a.SemaphoreCount(id); n != 0 {
		t.Errorf("count after two downs: got %d, wanted 0", n)
	}
	if err := th.SemaphoreUp(id); err != nil {
		t.Errorf("SemaphoreUp: %v", err)
	}
	if n, _ := a.SemaphoreCount(id); n != 1 {
		t.Errorf("count after up: got %d, wanted 1", n)
	}
	if err := th.SemaphoreUp(id + 1); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("SemaphoreUp(%d): got %v, wanted EINVAL", id+1, err)
	}
}

func TestSemaphoreUpWakesWaiter(t *testing.T) {
	k, ps := newQueueTestKernel(t)
	a := ps[1]
	th := a.Leader()
	waiter := spawnTestThread(t, a)

	id, err := th.CreateSemaphore(0)
	if err != nil {
		t.Fatalf("CreateSemaphore: %v", err)
	}
	k.treeMu.Lock()
	s := a.syncObjs.semaphores[id]
	k.ReadyQueue().Remove(waiter)
	waiter.setState(ThreadRunning)
	k.enqueueSyncLocked(&s.queue, waiter)
	k.treeMu.Unlock()

	if err := th.SemaphoreUp(id); err != nil {
		t.Fatalf("SemaphoreUp: %v", err)
	}
	// The permit goes to the waiter.
	if n, _ := a.SemaphoreCount(id); n != 0 {
		t.Errorf("count: got %d, wanted 0", n)
	}
	if got := waiter.State(); got != ThreadReady {
		t.Errorf("%v: state %v, wanted %v", waiter, got, ThreadReady)
	}
}

func TestCondvarSignalFIFO(t *testing.T) {
	k, ps := newQueueTestKernel(t)
	a := ps[1]
	th := a.Leader()
	w1, w2 := spawnTestThread(t, a), spawnTestThread(t, a)

	id, err := th.CreateCondvar()
	if err != nil {
		t.Fatalf("CreateCondvar: %v", err)
	}
	k.treeMu.Lock()
	c := a.syncObjs.condvars[id]
	for _, w := range []*Thread{w1, w2} {
		k.ReadyQueue().Remove(w)
		w.setState(ThreadRunning)
		k.enqueueSyncLocked(&c.queue, w)
	}
	k.treeMu.Unlock()

	if err := th.CondvarSignal(id); err != nil {
		t.Fatalf("CondvarSignal: %v", err)
	}
	if got := w1.State(); got != ThreadReady {
		t.Errorf("first waiter %v: state %v, wanted %v", w1, got, ThreadReady)
	}
	if got := w2.State(); got != ThreadBlocked {
		t.Errorf("second waiter %v: state %v, wanted %v", w2, got, ThreadBlocked)
	}
	// Signalling an empty queue is not remembered.
	for i := 0; i < 2; i++ {
		if err := th.CondvarSignal(id); err != nil {
			t.Fatalf("CondvarSignal: %v", err)
		}
	}
	if len(c.queue.threads) != 0 {
		t.Errorf("%d threads still queued", len(c.queue.threads))
	}
}

func TestCondvarWaitRequiresLockedMutex(t *testing.T) {
	_, ps := newQueueTestKernel(t)
	th := ps[1].Leader()
	cid, err := th.CreateCondvar()
	if err != nil {
		t.Fatalf("CreateCondvar: %v", err)
	}
	mid, err := th.CreateMutex(true)
	if err != nil {
		t.Fatalf("CreateMutex: %v", err)
	}
	if err := th.CondvarWait(cid, mid); !linuxerr.Equals(linuxerr.EPERM, err) {
		t.Errorf("CondvarWait with unlocked mutex: got %v, wanted EPERM", err)
	}
	if err := th.CondvarWait(cid, mid+1); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("CondvarWait with unknown mutex: got %v, wanted EINVAL", err)
	}
}

func TestKillInterruptsMutexWait(t *testing.T) {
	k, ps := newQueueTestKernel(t)
	a := ps[1]
	th := a.Leader()
	m := queueOnMutex(t, th)

	if err := k.SendSignal(a.PID(), linux.SIGKILL); err != nil {
		t.Fatalf("SendSignal: %v", err)
	}
	if th.syncQueue != nil || len(m.queue.threads) != 0 {
		t.Errorf("%v still queued after SIGKILL", th)
	}
	if got := th.State(); got != ThreadReady {
		t.Errorf("%v: state %v, wanted %v", th, got, ThreadReady)
	}
	if !th.interrupted.Load() {
		t.Errorf("%v not marked interrupted", th)
	}
	// Nobody was handed the lock, so unlocking releases it.
	k.treeMu.Lock()
	err := k.unlockMutexLocked(m)
	k.treeMu.Unlock()
	if err != nil || m.locked {
		t.Errorf("unlock after interrupt: got (locked %t, %v), wanted (false, nil)", m.locked, err)
	}
}

func TestExitLeavesSyncQueue(t *testing.T) {
	k, ps := newQueueTestKernel(t)
	root, a := ps[0], ps[1]
	nt := spawnTestThread(t, a)
	m := queueOnMutex(t, nt)

	exitProcess(a, ExitStatus{Code: 1})
	if nt.syncQueue != nil || len(m.queue.threads) != 0 {
		t.Errorf("exited %v still queued", nt)
	}
	if _, _, err := k.Reap(root, a.PID()); err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if k.ThreadByID(nt.ThreadID()) != nil {
		t.Errorf("%v not freed after Reap", nt)
	}
}

func TestExecDropsSyncObjects(t *testing.T) {
	_, ps := newQueueTestKernel(t)
	a := ps[1]
	th := a.Leader()
	id, err := th.CreateSemaphore(1)
	if err != nil {
		t.Fatalf("CreateSemaphore: %v", err)
	}
	if _, err := th.Execve("/bin/b", []string{"/bin/b"}, nil); err != nil {
		t.Fatalf("Execve: %v", err)
	}
	if err := th.SemaphoreDown(id); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("SemaphoreDown after exec: got %v, wanted EINVAL", err)
	}
}
