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
	"encoding/binary"
	"fmt"

	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/sentry/arch"
)

// InstructionSize is the size of every Script instruction.
const InstructionSize = 4

// OpCode is a Script instruction.
type OpCode uint8

// Script instructions. Rd, Rs and Imm are interpreted as in the
// corresponding RV64I instruction; branch and jump targets are instruction
// indices.
const (
	OpNop OpCode = iota
	// OpLi loads Imm into Rd.
	OpLi
	// OpAddi sets Rd to Rs+Imm.
	OpAddi
	// OpMv copies Rs into Rd.
	OpMv
	// OpLd loads the doubleword at Rs+Imm into Rd.
	OpLd
	// OpSd stores Rd to the doubleword at Rs+Imm.
	OpSd
	// OpBeqz branches to Target if Rs is zero.
	OpBeqz
	// OpBnez branches to Target if Rs is not zero.
	OpBnez
	// OpJ jumps to Target.
	OpJ
	// OpEcall traps with UserEnvCall.
	OpEcall
	// OpFault traps with cause Imm.
	OpFault
	// OpPushString copies Str and a terminating NUL below sp, keeping sp
	// 16-byte aligned, and sets Rd to its address.
	OpPushString
	// OpCall invokes Fn.
	OpCall
)

var opNames = [...]string{
	OpNop:        "nop",
	OpLi:         "li",
	OpAddi:       "addi",
	OpMv:         "mv",
	OpLd:         "ld",
	OpSd:         "sd",
	OpBeqz:       "beqz",
	OpBnez:       "bnez",
	OpJ:          "j",
	OpEcall:      "ecall",
	OpFault:      "fault",
	OpPushString: "push_string",
	OpCall:       "call",
}

// String implements fmt.Stringer.String.
func (c OpCode) String() string {
	if int(c) < len(opNames) {
		return opNames[c]
	}
	return fmt.Sprintf("OpCode(%d)", c)
}

// ParseOpCode returns the OpCode with the given mnemonic.
func ParseOpCode(name string) (OpCode, bool) {
	for i, n := range opNames {
		if n == name {
			return OpCode(i), true
		}
	}
	return 0, false
}

// Op is one Script instruction.
type Op struct {
	Code   OpCode
	Rd     int
	Rs     int
	Imm    int64
	Target int
	Str    string

	// Fn is run by OpCall. It may modify registers and memory.
	Fn func(regs *arch.Registers, mem Memory)
}

// Script is a Program made of Ops laid out from Entry, one every
// InstructionSize bytes.
type Script struct {
	Entry uint64
	Ops   []Op
}

// Size returns the size of the script's text in bytes.
func (s *Script) Size() uint64 {
	return uint64(len(s.Ops)) * InstructionSize
}

func (s *Script) pcOf(index int) uint64 {
	return s.Entry + uint64(index)*InstructionSize
}

// Step implements Program.Step.
func (s *Script) Step(regs *arch.Registers, mem Memory) (Trap, bool) {
	pc := regs.Sepc
	if pc < s.Entry || (pc-s.Entry)%InstructionSize != 0 || (pc-s.Entry)/InstructionSize >= uint64(len(s.Ops)) {
		return Trap{Cause: arch.InstructionPageFault, Tval: pc}, true
	}
	op := &s.Ops[(pc-s.Entry)/InstructionSize]
	next := pc + InstructionSize
	x := &regs.X
	switch op.Code {
	case OpNop:
	case OpLi:
		x[op.Rd] = uint64(op.Imm)
	case OpAddi:
		x[op.Rd] = x[op.Rs] + uint64(op.Imm)
	case OpMv:
		x[op.Rd] = x[op.Rs]
	case OpLd:
		addr := x[op.Rs] + uint64(op.Imm)
		var buf [8]byte
		if _, err := mem.CopyIn(hostarch.Addr(addr), buf[:]); err != nil {
			return Trap{Cause: arch.LoadPageFault, Tval: addr}, true
		}
		x[op.Rd] = binary.LittleEndian.Uint64(buf[:])
	case OpSd:
		addr := x[op.Rs] + uint64(op.Imm)
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], x[op.Rd])
		if _, err := mem.CopyOut(hostarch.Addr(addr), buf[:]); err != nil {
			return Trap{Cause: arch.StorePageFault, Tval: addr}, true
		}
	case OpBeqz:
		if x[op.Rs] == 0 {
			next = s.pcOf(op.Target)
		}
	case OpBnez:
		if x[op.Rs] != 0 {
			next = s.pcOf(op.Target)
		}
	case OpJ:
		next = s.pcOf(op.Target)
	case OpEcall:
		return Trap{Cause: arch.UserEnvCall}, true
	case OpFault:
		return Trap{Cause: arch.Scause(op.Imm), Tval: pc}, true
	case OpPushString:
		size := (uint64(len(op.Str)) + 1 + 15) &^ 15
		sp := x[arch.RegSP] - size
		buf := make([]byte, len(op.Str)+1)
		copy(buf, op.Str)
		if _, err := mem.CopyOut(hostarch.Addr(sp), buf); err != nil {
			return Trap{Cause: arch.StorePageFault, Tval: sp}, true
		}
		x[arch.RegSP] = sp
		x[op.Rd] = sp
	case OpCall:
		if op.Fn != nil {
			op.Fn(regs, mem)
		}
	default:
		return Trap{Cause: arch.IllegalInstruction, Tval: pc}, true
	}
	x[arch.RegZero] = 0
	regs.Sepc = next
	return Trap{}, false
}

// Li returns an OpLi.
func Li(rd int, imm int64) Op { return Op{Code: OpLi, Rd: rd, Imm: imm} }

// Addi returns an OpAddi.
func Addi(rd, rs int, imm int64) Op { return Op{Code: OpAddi, Rd: rd, Rs: rs, Imm: imm} }

// Mv returns an OpMv.
func Mv(rd, rs int) Op { return Op{Code: OpMv, Rd: rd, Rs: rs} }

// Ld returns an OpLd.
func Ld(rd, rs int, off int64) Op { return Op{Code: OpLd, Rd: rd, Rs: rs, Imm: off} }

// Sd returns an OpSd storing rd.
func Sd(rd, rs int, off int64) Op { return Op{Code: OpSd, Rd: rd, Rs: rs, Imm: off} }

// Beqz returns an OpBeqz.
func Beqz(rs, target int) Op { return Op{Code: OpBeqz, Rs: rs, Target: target} }

// Bnez returns an OpBnez.
func Bnez(rs, target int) Op { return Op{Code: OpBnez, Rs: rs, Target: target} }

// J returns an OpJ.
func J(target int) Op { return Op{Code: OpJ, Target: target} }

// Ecall returns an OpEcall.
func Ecall() Op { return Op{Code: OpEcall} }

// Fault returns an OpFault.
func Fault(cause arch.Scause) Op { return Op{Code: OpFault, Imm: int64(cause)} }

// PushString returns an OpPushString.
func PushString(rd int, s string) Op { return Op{Code: OpPushString, Rd: rd, Str: s} }

// Call returns an OpCall.
func Call(fn func(regs *arch.Registers, mem Memory)) Op { return Op{Code: OpCall, Fn: fn} }

// Syscall returns the instructions that load sysno and args into a7 and a0
// onwards and execute ecall.
func Syscall(sysno uintptr, args ...int64) []Op {
	ops := make([]Op, 0, len(args)+2)
	ops = append(ops, Li(arch.RegA7, int64(sysno)))
	for i, a := range args {
		ops = append(ops, Li(arch.RegA0+i, a))
	}
	return append(ops, Ecall())
}
