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

// Package platform provides the simulated single-hart riscv64 machine the
// kernel runs on.
//
// A Hart owns the supervisor timer, the cycle counter and the kernel register
// file that context switches save and restore. User code is a Program that
// the kernel steps one instruction at a time against an address space
// implementing Memory; a Program stops by returning a Trap.
package platform

import (
	"fmt"

	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/sentry/arch"
)

// Memory is the user address space seen by a Program.
type Memory interface {
	// CopyIn copies len(dst) bytes from addr. It returns the number of bytes
	// copied and an error if the access faulted.
	CopyIn(addr hostarch.Addr, dst []byte) (int, error)

	// CopyOut copies src to addr. It returns the number of bytes copied and
	// an error if the access faulted.
	CopyOut(addr hostarch.Addr, src []byte) (int, error)
}

// Trap describes why user execution stopped.
type Trap struct {
	// Cause is the scause value of the trap.
	Cause arch.Scause

	// Tval is the faulting address for memory faults and 0 otherwise.
	Tval uint64
}

// String implements fmt.Stringer.String.
func (t Trap) String() string {
	if t.Tval != 0 {
		return fmt.Sprintf("%v (stval=%#x)", t.Cause, t.Tval)
	}
	return t.Cause.String()
}

// Program is user-mode code.
type Program interface {
	// Step executes the instruction at regs.Sepc. If the instruction traps,
	// Step returns the trap and true, leaving regs.Sepc at the trapping
	// instruction. Otherwise it advances regs.Sepc and returns false.
	Step(regs *arch.Registers, mem Memory) (Trap, bool)
}

// Segment binds a Program to the text range it executes from.
type Segment struct {
	Range   hostarch.AddrRange
	Program Program
}

// Segments is a Program that executes the first Segment whose range contains
// the program counter.
type Segments []Segment

// Step implements Program.Step.
func (s Segments) Step(regs *arch.Registers, mem Memory) (Trap, bool) {
	pc := hostarch.Addr(regs.Sepc)
	for _, seg := range s {
		if seg.Range.Contains(pc) {
			return seg.Program.Step(regs, mem)
		}
	}
	return Trap{Cause: arch.InstructionPageFault, Tval: regs.Sepc}, true
}
