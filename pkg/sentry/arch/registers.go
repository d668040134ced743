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

package arch

import (
	"fmt"
	"strconv"
	"strings"
)

// Integer register numbers, by ABI name.
const (
	RegZero = 0
	RegRA   = 1
	RegSP   = 2
	RegGP   = 3
	RegTP   = 4
	RegT0   = 5
	RegT1   = 6
	RegT2   = 7
	RegS0   = 8
	RegS1   = 9
	RegA0   = 10
	RegA1   = 11
	RegA2   = 12
	RegA3   = 13
	RegA4   = 14
	RegA5   = 15
	RegA6   = 16
	RegA7   = 17
	RegS2   = 18
	RegT3   = 28

	// NumRegs is the number of integer registers.
	NumRegs = 32
)

var regNames = [NumRegs]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// RegisterName returns the ABI name of integer register i.
func RegisterName(i int) string {
	if i < 0 || i >= NumRegs {
		return "x" + strconv.Itoa(i)
	}
	return regNames[i]
}

// RegisterByName resolves an ABI name ("a0"), a numeric name ("x10") or the
// alias "fp" to a register number.
func RegisterByName(name string) (int, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "fp" {
		return RegS0, true
	}
	for i, n := range regNames {
		if n == name {
			return i, true
		}
	}
	if rest, ok := strings.CutPrefix(name, "x"); ok {
		if i, err := strconv.Atoi(rest); err == nil && i >= 0 && i < NumRegs {
			return i, true
		}
	}
	return 0, false
}

// sstatus bits.
const (
	SstatusSIE  = 1 << 1
	SstatusSPIE = 1 << 5
	SstatusSPP  = 1 << 8
	SstatusSUM  = 1 << 18
)

// TrapContextSize is the size of Registers as laid out at the top of a
// kernel stack: 32 integer registers followed by sstatus and sepc.
const TrapContextSize = (NumRegs + 2) * 8

// Registers is the user register state saved on trap entry and restored on
// trap return.
//
// Sstatus and Sepc are the supervisor CSRs captured by the trap: Sstatus.SPP
// selects the privilege returned to and Sepc is the user program counter.
type Registers struct {
	X       [NumRegs]uint64
	Sstatus uint64
	Sepc    uint64
}

// NewUserRegisters returns registers that enter user mode at entry with the
// given stack pointer, with interrupts enabled on return.
func NewUserRegisters(entry, sp uint64) Registers {
	var r Registers
	r.Sepc = entry
	r.X[RegSP] = sp
	r.Sstatus = SstatusSPIE
	return r
}

// Fork returns a copy of r for a new thread or process.
func (r *Registers) Fork() Registers {
	return *r
}

// IP returns the user program counter.
func (r *Registers) IP() uint64 {
	return r.Sepc
}

// SetIP sets the user program counter.
func (r *Registers) SetIP(v uint64) {
	r.Sepc = v
}

// Stack returns the user stack pointer.
func (r *Registers) Stack() uint64 {
	return r.X[RegSP]
}

// SetStack sets the user stack pointer.
func (r *Registers) SetStack(v uint64) {
	r.X[RegSP] = v
}

// SetTLS sets the thread pointer.
func (r *Registers) SetTLS(v uint64) {
	r.X[RegTP] = v
}

// SyscallNo returns the syscall number in a7.
func (r *Registers) SyscallNo() uintptr {
	return uintptr(r.X[RegA7])
}

// SyscallArgs returns a0 through a5.
func (r *Registers) SyscallArgs() SyscallArguments {
	var args SyscallArguments
	for i := range args {
		args[i].Value = uintptr(r.X[RegA0+i])
	}
	return args
}

// Return returns the syscall return value in a0.
func (r *Registers) Return() uintptr {
	return uintptr(r.X[RegA0])
}

// SetReturn sets a0.
func (r *Registers) SetReturn(v uintptr) {
	r.X[RegA0] = uint64(v)
}

// UserMode returns true if a trap return would enter user mode.
func (r *Registers) UserMode() bool {
	return r.Sstatus&SstatusSPP == 0
}

// String implements fmt.Stringer.String.
func (r *Registers) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sepc=%#x sstatus=%#x", r.Sepc, r.Sstatus)
	for i := 1; i < NumRegs; i++ {
		if r.X[i] != 0 {
			fmt.Fprintf(&b, " %s=%#x", regNames[i], r.X[i])
		}
	}
	return b.String()
}
