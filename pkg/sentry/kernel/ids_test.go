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

	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/sentry/arch"
)

func TestIDAllocatorReusesLowest(t *testing.T) {
	a := newIDAllocator(1, 5)
	for want := 1; want < 5; want++ {
		got, ok := a.allocate()
		if !ok || got != want {
			t.Fatalf("allocate: got (%d, %t), wanted (%d, true)", got, ok, want)
		}
	}
	if id, ok := a.allocate(); ok {
		t.Fatalf("allocate on a full allocator: got %d", id)
	}
	a.release(3)
	a.release(2)
	if got := a.inUse(); got != 2 {
		t.Errorf("inUse: got %d, wanted 2", got)
	}
	for _, want := range []int{2, 3} {
		if got, ok := a.allocate(); !ok || got != want {
			t.Errorf("allocate after release: got (%d, %t), wanted (%d, true)", got, ok, want)
		}
	}
}

func TestIDAllocatorBadRelease(t *testing.T) {
	a := newIDAllocator(1, 5)
	id, _ := a.allocate()
	mustPanic(t, "release of an unallocated id", func() { a.release(4) })
	a.release(id)
	mustPanic(t, "double release", func() { a.release(id) })
}

func TestIDAllocatorClone(t *testing.T) {
	a := newIDAllocator(1, 10)
	for i := 0; i < 3; i++ {
		a.allocate()
	}
	a.release(2)
	c := a.clone()
	a.allocate()
	if got, _ := c.allocate(); got != 2 {
		t.Errorf("clone allocate: got %d, wanted 2", got)
	}
	if got, _ := c.allocate(); got != 4 {
		t.Errorf("clone allocate: got %d, wanted 4", got)
	}
	if got := a.inUse(); got != 3 {
		t.Errorf("original inUse: got %d, wanted 3", got)
	}
}

func TestKernelStackPool(t *testing.T) {
	p := NewKernelStackPool(2)
	a, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	b, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a.Top()-b.Top() <= KernelStackSize {
		t.Errorf("stacks %v and %v leave no guard page", a, b)
	}
	if got, want := a.TrapContextAddr(), a.Top()-arch.TrapContextSize; got != want {
		t.Errorf("TrapContextAddr: got %v, wanted %v", got, want)
	}
	if _, err := p.Allocate(); !linuxerr.Equals(linuxerr.ENOMEM, err) {
		t.Fatalf("Allocate from an empty pool: got %v, wanted ENOMEM", err)
	}
	p.Release(a)
	c, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate after Release: %v", err)
	}
	if c.ID() != a.ID() {
		t.Errorf("Allocate after Release: got stack %d, wanted %d", c.ID(), a.ID())
	}
	if *c.TrapContext() != (arch.Registers{}) {
		t.Errorf("reused stack has a stale trap context: %+v", *c.TrapContext())
	}
	if got := p.InUse(); got != 2 {
		t.Errorf("InUse: got %d, wanted 2", got)
	}
}
