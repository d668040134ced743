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
	"sync"
	"time"

	"github.com/google/btree"

	"rvos.dev/rvos/pkg/errors/linuxerr"
)

// sleepEntry is a pending wakeup in the SleepRegistry.
type sleepEntry struct {
	deadline uint64
	seq      uint64
	t        *Thread
}

func sleepEntryLess(a, b *sleepEntry) bool {
	if a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	return a.seq < b.seq
}

// SleepRegistry holds sleeping threads ordered by deadline. Entries with the
// same deadline are woken in registration order. Each entry holds a
// reference on its thread, so a registered thread is never freed.
type SleepRegistry struct {
	rq *ReadyQueue

	mu      sync.Mutex
	entries *btree.BTreeG[*sleepEntry]
	seq     uint64
}

func (r *SleepRegistry) init(rq *ReadyQueue) {
	r.rq = rq
	r.entries = btree.NewG(16, sleepEntryLess)
}

// Register blocks t until the tick count reaches deadline. t leaves the
// ready queue.
//
// Preconditions: t is running and has no pending entry.
func (r *SleepRegistry) Register(t *Thread, deadline uint64) {
	r.mu.Lock()
	if t.sleep != nil {
		r.mu.Unlock()
		invariantViolation("%v registered to sleep twice", t)
	}
	t.IncRef()
	e := &sleepEntry{deadline: deadline, seq: r.seq, t: t}
	r.seq++
	t.sleep = e
	r.entries.ReplaceOrInsert(e)
	r.mu.Unlock()

	r.rq.Remove(t)
	t.setState(ThreadBlocked)
}

// Cancel removes t's entry. It returns false if t had none.
func (r *SleepRegistry) Cancel(t *Thread) bool {
	r.mu.Lock()
	e := t.sleep
	if e == nil {
		r.mu.Unlock()
		return false
	}
	r.entries.Delete(e)
	t.sleep = nil
	r.mu.Unlock()
	t.DecRef()
	return true
}

// Tick wakes every thread whose deadline is at or before now, in deadline
// order. Entries of threads that exited while asleep are dropped.
func (r *SleepRegistry) Tick(now uint64) {
	var expired []*sleepEntry
	r.mu.Lock()
	for {
		e, ok := r.entries.Min()
		if !ok || e.deadline > now {
			break
		}
		r.entries.DeleteMin()
		e.t.sleep = nil
		expired = append(expired, e)
	}
	r.mu.Unlock()

	for _, e := range expired {
		t := e.t
		if t.State() == ThreadBlocked {
			t.setState(ThreadReady)
			r.rq.Enqueue(t)
			sleepWakeups.Increment()
		}
		t.DecRef()
	}
}

// Contains returns true if t has a pending entry.
func (r *SleepRegistry) Contains(t *Thread) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return t.sleep != nil
}

// Deadline returns t's pending deadline.
func (r *SleepRegistry) Deadline(t *Thread) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.sleep == nil {
		return 0, false
	}
	return t.sleep.deadline, true
}

// Len returns the number of pending entries.
func (r *SleepRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries.Len()
}

// Sleep blocks t for at least d, rounded up to whole ticks. It returns
// EINTR if a signal interrupts the sleep.
//
// Preconditions: t is the current thread.
func (t *Thread) Sleep(d time.Duration) error {
	k := t.k
	if !t.beginSleep(k.Now() + k.durationToTicks(d)) {
		return linuxerr.EINTR
	}
	t.block()
	if t.interrupted.Swap(false) {
		return linuxerr.EINTR
	}
	return nil
}

// beginSleep registers t to sleep until deadline unless it has a deliverable
// signal, in which case it returns false. The check and the registration are
// atomic with respect to signal senders, so a signal sent while t is still
// running either fails the sleep or wakes it.
//
// Preconditions: t is the current thread.
func (t *Thread) beginSleep(deadline uint64) bool {
	k := t.k
	k.treeMu.Lock()
	defer k.treeMu.Unlock()
	if t.hasPendingSignal() {
		return false
	}
	k.sleepers.Register(t, deadline)
	return true
}

// durationToTicks converts d to a tick count, rounding up. A sleep always
// lasts at least one tick.
func (k *Kernel) durationToTicks(d time.Duration) uint64 {
	if d <= 0 {
		return 1
	}
	return uint64((d + k.tickPeriod - 1) / k.tickPeriod)
}
