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

package platform

import (
	"runtime"
	"sync/atomic"
)

// NumCalleeSaved is the number of callee-saved registers (s0-s11).
const NumCalleeSaved = 12

// KernelRegisters is the register state preserved across a context switch:
// the return address, the kernel stack pointer and the callee-saved
// registers. Caller-saved registers are not part of it.
type KernelRegisters struct {
	RA uint64
	SP uint64
	S  [NumCalleeSaved]uint64
}

// KernelContext is a kernel execution context that can be switched to and
// from.
//
// Each context is backed by a goroutine. Exactly one context holds the hart
// at a time; the others are parked in Switch. A context created with an
// entry function starts its goroutine on the first switch to it.
type KernelContext struct {
	KernelRegisters

	entry   func()
	resume  chan struct{}
	started atomic.Bool
	killed  atomic.Bool
}

// Init prepares c to begin executing entry at the given return address and
// kernel stack pointer. A nil entry denotes the calling goroutine itself,
// which must then be the one holding the hart.
func (c *KernelContext) Init(ra, sp uint64, entry func()) {
	c.RA = ra
	c.SP = sp
	c.entry = entry
	c.resume = make(chan struct{}, 1)
	c.started.Store(entry == nil)
	c.killed.Store(false)
}

// Started returns true if c has run.
func (c *KernelContext) Started() bool {
	return c.started.Load()
}

// Killed returns true if c can no longer be switched to.
func (c *KernelContext) Killed() bool {
	return c.killed.Load()
}

// Kill terminates a context that is not running. A parked goroutine exits
// from its Switch call; a context that never started never will.
//
// Preconditions: c is not the context holding the hart.
func (c *KernelContext) Kill() {
	if !c.killed.CompareAndSwap(false, true) {
		return
	}
	if c.started.Load() {
		c.resume <- struct{}{}
	}
}

// Switch saves the hart's kernel registers into from, loads to, and gives
// the hart to to's goroutine. It returns when another context switches back
// to from.
//
// Preconditions: the calling goroutine holds the hart as from.
func (h *Hart) Switch(from, to *KernelContext) {
	h.transfer(from, to)
	<-from.resume
	if from.killed.Load() {
		runtime.Goexit()
	}
}

// SwitchExit is Switch for a context that will never run again. It does not
// return: the calling goroutine exits once the hart has been handed over.
func (h *Hart) SwitchExit(from, to *KernelContext) {
	from.killed.Store(true)
	h.transfer(from, to)
	runtime.Goexit()
}

func (h *Hart) transfer(from, to *KernelContext) {
	if to.killed.Load() {
		panic("switch to a killed kernel context")
	}
	h.switches.Add(1)
	from.KernelRegisters = h.regs
	h.regs = to.KernelRegisters
	if to.started.CompareAndSwap(false, true) {
		h.live.Add(1)
		go func() {
			defer h.live.Add(-1)
			to.entry()
		}()
		return
	}
	to.resume <- struct{}{}
}

// Registers returns the kernel register file of the context holding the
// hart.
func (h *Hart) Registers() KernelRegisters {
	return h.regs
}
