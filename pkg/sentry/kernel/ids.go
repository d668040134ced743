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

	"github.com/google/btree"
)

// idAllocator hands out integer IDs in [base, limit). Released IDs are kept
// in an ordered set and the lowest one is reused before the high watermark
// advances.
type idAllocator struct {
	mu    sync.Mutex
	base  int
	limit int

	// next is the lowest ID never handed out.
	next int

	// free holds released IDs below next.
	free *btree.BTreeG[int]
}

func newIDAllocator(base, limit int) *idAllocator {
	return &idAllocator{
		base:  base,
		limit: limit,
		next:  base,
		free:  btree.NewOrderedG[int](8),
	}
}

// allocate returns the lowest free ID. ok is false if every ID is in use.
func (a *idAllocator) allocate() (id int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.free.DeleteMin(); ok {
		return id, true
	}
	if a.next >= a.limit {
		return 0, false
	}
	id = a.next
	a.next++
	return id, true
}

// release returns id to the allocator. Releasing an ID that is not
// allocated panics.
func (a *idAllocator) release(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < a.base || id >= a.next {
		panic(fmt.Sprintf("releasing id %d that was never allocated (range [%d, %d))", id, a.base, a.next))
	}
	if _, dup := a.free.ReplaceOrInsert(id); dup {
		panic(fmt.Sprintf("id %d released twice", id))
	}
}

// inUse returns the number of allocated IDs.
func (a *idAllocator) inUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next - a.base - a.free.Len()
}

// clone returns an independent allocator with the same IDs in use.
func (a *idAllocator) clone() *idAllocator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &idAllocator{
		base:  a.base,
		limit: a.limit,
		next:  a.next,
		free:  a.free.Clone(),
	}
}
