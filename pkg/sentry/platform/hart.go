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
	"context"
	"sync/atomic"
)

// Hart is a simulated riscv64 hardware thread.
//
// The supervisor timer is driven by the cycle counter, which advances by one
// for every retired user instruction. A timer interrupt is pending once the
// cycle counter reaches the compare value, or when an external source calls
// Raise. With a zero timeslice the cycle timer is disabled and only Raise
// interrupts.
type Hart struct {
	timeslice uint64

	cycles  atomic.Uint64
	timecmp atomic.Uint64

	// external is set by Raise and cleared by Ack.
	external atomic.Bool
	// wake is signalled by Raise for WaitForInterrupt.
	wake chan struct{}

	// regs is the kernel register file: the state saved and restored by
	// Switch. It is only accessed by the goroutine that holds the hart.
	regs KernelRegisters

	switches atomic.Uint64
	live     atomic.Int64
}

// NewHart returns a hart whose timer fires every timeslice retired
// instructions, or never if timeslice is zero.
func NewHart(timeslice uint64) *Hart {
	h := &Hart{
		timeslice: timeslice,
		wake:      make(chan struct{}, 1),
	}
	h.SetNextTrigger()
	return h
}

// Timeslice returns the number of instructions between timer interrupts.
func (h *Hart) Timeslice() uint64 {
	return h.timeslice
}

// Retire accounts for one executed instruction.
func (h *Hart) Retire() {
	h.cycles.Add(1)
}

// Cycles returns the cycle counter.
func (h *Hart) Cycles() uint64 {
	return h.cycles.Load()
}

// SetNextTrigger programs the timer compare value one timeslice from now.
func (h *Hart) SetNextTrigger() {
	if h.timeslice == 0 {
		h.timecmp.Store(^uint64(0))
		return
	}
	h.timecmp.Store(h.cycles.Load() + h.timeslice)
}

// TimerPending returns true if a supervisor timer interrupt is pending.
func (h *Hart) TimerPending() bool {
	return h.cycles.Load() >= h.timecmp.Load() || h.external.Load()
}

// Ack clears an externally raised interrupt. The cycle timer is cleared by
// SetNextTrigger.
func (h *Hart) Ack() {
	h.external.Store(false)
}

// Raise makes a timer interrupt pending. It may be called from any
// goroutine.
func (h *Hart) Raise() {
	h.external.Store(true)
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// WaitForInterrupt blocks until a timer interrupt is pending, like wfi. With
// the cycle timer enabled an idle hart has nothing else to wait for, so the
// cycle counter is advanced to the compare value instead of blocking.
func (h *Hart) WaitForInterrupt(ctx context.Context) error {
	for !h.TimerPending() {
		if h.timeslice != 0 {
			h.cycles.Store(h.timecmp.Load())
			return nil
		}
		select {
		case <-h.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Switches returns the number of context switches performed on h.
func (h *Hart) Switches() uint64 {
	return h.switches.Load()
}

// LiveContexts returns the number of started kernel contexts whose
// goroutines have not yet terminated.
func (h *Hart) LiveContexts() int64 {
	return h.live.Load()
}
