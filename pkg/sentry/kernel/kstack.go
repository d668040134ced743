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

	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/sentry/arch"
)

const (
	// KernelStackSize is the size of each kernel stack.
	KernelStackSize = 2 * hostarch.PageSize

	// trampolineAddr is the kernel address of the trap trampoline page.
	// Kernel stacks are laid out below it, each followed by a guard page.
	trampolineAddr hostarch.Addr = 0xffff_ffff_ffff_f000
)

// KernelStack is a thread's kernel stack. The trap context is stored at the
// top of the stack, at TrapContextAddr.
type KernelStack struct {
	id  int
	top hostarch.Addr

	trapContext arch.Registers
}

// kernelStackTop returns the top of the kernel stack with the given id.
func kernelStackTop(id int) hostarch.Addr {
	return trampolineAddr - hostarch.Addr(id)*(KernelStackSize+hostarch.PageSize)
}

// ID returns the stack's slot number.
func (ks *KernelStack) ID() int {
	return ks.id
}

// Top returns the initial kernel stack pointer.
func (ks *KernelStack) Top() hostarch.Addr {
	return ks.top
}

// TrapContextAddr returns the address of the trap context frame.
func (ks *KernelStack) TrapContextAddr() hostarch.Addr {
	return ks.top - arch.TrapContextSize
}

// TrapContext returns the trap context stored on the stack.
func (ks *KernelStack) TrapContext() *arch.Registers {
	return &ks.trapContext
}

// String implements fmt.Stringer.String.
func (ks *KernelStack) String() string {
	return fmt.Sprintf("kstack#%d[%v-%v]", ks.id, ks.top-KernelStackSize, ks.top)
}

// KernelStackPool is the bounded set of kernel stacks.
type KernelStackPool struct {
	ids *idAllocator
}

// NewKernelStackPool returns a pool of n kernel stacks.
func NewKernelStackPool(n int) *KernelStackPool {
	return &KernelStackPool{ids: newIDAllocator(0, n)}
}

// Allocate returns a free kernel stack with a zeroed trap context. It fails
// with ENOMEM when the pool is exhausted.
func (p *KernelStackPool) Allocate() (*KernelStack, error) {
	id, ok := p.ids.allocate()
	if !ok {
		return nil, linuxerr.ENOMEM
	}
	return &KernelStack{id: id, top: kernelStackTop(id)}, nil
}

// Release returns ks to the pool.
func (p *KernelStackPool) Release(ks *KernelStack) {
	p.ids.release(ks.id)
}

// InUse returns the number of allocated stacks.
func (p *KernelStackPool) InUse() int {
	return p.ids.inUse()
}
