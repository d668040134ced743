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

	"rvos.dev/rvos/pkg/ilist"
)

// readyEntry links a Thread into the ReadyQueue.
type readyEntry struct {
	ilist.Entry[*readyEntry]

	t *Thread

	// queued is true while the entry is in the queue.
	queued bool
}

// ReadyQueue is the FIFO of runnable threads. Each queued thread holds a
// reference owned by the queue. A thread is queued at most once.
type ReadyQueue struct {
	mu    sync.Mutex
	queue ilist.List[*readyEntry]
	len   int
}

// Enqueue appends t to the tail of the queue. It is a no-op if t is already
// queued.
//
// Preconditions: t has not exited.
func (q *ReadyQueue) Enqueue(t *Thread) {
	if t.State() == ThreadExited {
		invariantViolation("enqueueing exited %v", t)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if t.ready.queued {
		return
	}
	t.IncRef()
	t.ready.queued = true
	q.queue.PushBack(&t.ready)
	q.len++
}

// PickNext removes and returns the thread at the head of the queue, or nil
// if the queue is empty. The queue's reference is transferred to the
// caller.
func (q *ReadyQueue) PickNext() *Thread {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.queue.Front()
	if e == nil {
		return nil
	}
	q.queue.Remove(e)
	e.queued = false
	q.len--
	return e.t
}

// Remove removes t from the queue, returning true if it was queued.
func (q *ReadyQueue) Remove(t *Thread) bool {
	q.mu.Lock()
	if !t.ready.queued {
		q.mu.Unlock()
		return false
	}
	q.queue.Remove(&t.ready)
	t.ready.queued = false
	q.len--
	q.mu.Unlock()
	t.DecRef()
	return true
}

// Contains returns true if t is queued.
func (q *ReadyQueue) Contains(t *Thread) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return t.ready.queued
}

// Len returns the number of queued threads.
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len
}

// ThreadIDs returns the IDs of the queued threads in queue order.
func (q *ReadyQueue) ThreadIDs() []ThreadID {
	q.mu.Lock()
	defer q.mu.Unlock()
	tids := make([]ThreadID, 0, q.len)
	for e := q.queue.Front(); e != nil; e = e.Next() {
		tids = append(tids, e.t.tid)
	}
	return tids
}
