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

package workload

import (
	"fmt"
	"strconv"
	"strings"

	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/kernel"
	"rvos.dev/rvos/pkg/sentry/platform"
)

// SyntaxError describes a malformed line of program text.
type SyntaxError struct {
	Line int
	Msg  string
}

// Error implements error.Error.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

type asmLine struct {
	num  int
	op   string
	args []string
}

// Assemble translates program text into a Script based at entry.
//
// Each line holds an optional "label:" followed by one instruction; "#"
// starts a comment. Instructions are the Script opcodes plus the macro
// "syscall <name|number> [arg...]", whose arguments are registers or
// immediates loaded into a0 onwards before ecall. Syscall names resolve
// through table.
func Assemble(text string, entry uint64, table *kernel.SyscallTable) (*platform.Script, error) {
	labels := make(map[string]int)
	var lines []asmLine
	n := 0
	for i, raw := range strings.Split(text, "\n") {
		num := i + 1
		toks, err := tokenize(raw)
		if err != nil {
			return nil, &SyntaxError{num, err.Error()}
		}
		for len(toks) > 0 && strings.HasSuffix(toks[0], ":") {
			label := strings.TrimSuffix(toks[0], ":")
			if label == "" {
				return nil, &SyntaxError{num, "empty label"}
			}
			if _, ok := labels[label]; ok {
				return nil, &SyntaxError{num, fmt.Sprintf("duplicate label %q", label)}
			}
			labels[label] = n
			toks = toks[1:]
		}
		if len(toks) == 0 {
			continue
		}
		l := asmLine{num: num, op: strings.ToLower(toks[0]), args: toks[1:]}
		lines = append(lines, l)
		if l.op == "syscall" {
			if len(l.args) == 0 || len(l.args) > 7 {
				return nil, &SyntaxError{num, "syscall takes a number and at most 6 arguments"}
			}
			n += len(l.args) + 1
		} else {
			n++
		}
	}

	a := assembler{labels: labels, table: table}
	s := &platform.Script{Entry: entry, Ops: make([]platform.Op, 0, n)}
	for _, l := range lines {
		ops, err := a.assemble(l)
		if err != nil {
			return nil, &SyntaxError{l.num, err.Error()}
		}
		s.Ops = append(s.Ops, ops...)
	}
	return s, nil
}

// operands is the operand count of each assemblable opcode.
var operands = map[platform.OpCode]int{
	platform.OpNop:        0,
	platform.OpLi:         2,
	platform.OpAddi:       3,
	platform.OpMv:         2,
	platform.OpLd:         2,
	platform.OpSd:         2,
	platform.OpBeqz:       2,
	platform.OpBnez:       2,
	platform.OpJ:          1,
	platform.OpEcall:      0,
	platform.OpFault:      1,
	platform.OpPushString: 2,
}

type assembler struct {
	labels map[string]int
	table  *kernel.SyscallTable
}

func (a *assembler) assemble(l asmLine) ([]platform.Op, error) {
	if l.op == "syscall" {
		return a.syscall(l.args)
	}
	code, ok := platform.ParseOpCode(l.op)
	if !ok || code == platform.OpCall {
		return nil, fmt.Errorf("unknown instruction %q", l.op)
	}
	want := operands[code]
	if len(l.args) != want {
		return nil, fmt.Errorf("%s takes %d operands, got %d", l.op, want, len(l.args))
	}

	var op platform.Op
	var err error
	switch code {
	case platform.OpNop:
		op = platform.Op{Code: platform.OpNop}
	case platform.OpEcall:
		op = platform.Ecall()
	case platform.OpLi:
		var rd int
		var imm int64
		if rd, err = reg(l.args[0]); err == nil {
			imm, err = immediate(l.args[1])
		}
		op = platform.Li(rd, imm)
	case platform.OpAddi:
		var rd, rs int
		var imm int64
		if rd, err = reg(l.args[0]); err == nil {
			if rs, err = reg(l.args[1]); err == nil {
				imm, err = immediate(l.args[2])
			}
		}
		op = platform.Addi(rd, rs, imm)
	case platform.OpMv:
		var rd, rs int
		if rd, err = reg(l.args[0]); err == nil {
			rs, err = reg(l.args[1])
		}
		op = platform.Mv(rd, rs)
	case platform.OpLd, platform.OpSd:
		var rd, base int
		var off int64
		if rd, err = reg(l.args[0]); err == nil {
			off, base, err = memOperand(l.args[1])
		}
		if code == platform.OpLd {
			op = platform.Ld(rd, base, off)
		} else {
			op = platform.Sd(rd, base, off)
		}
	case platform.OpBeqz, platform.OpBnez:
		var rs, target int
		if rs, err = reg(l.args[0]); err == nil {
			target, err = a.target(l.args[1])
		}
		if code == platform.OpBeqz {
			op = platform.Beqz(rs, target)
		} else {
			op = platform.Bnez(rs, target)
		}
	case platform.OpJ:
		var target int
		target, err = a.target(l.args[0])
		op = platform.J(target)
	case platform.OpFault:
		cause, ok := arch.ParseScause(l.args[0])
		if !ok {
			err = fmt.Errorf("unknown trap cause %q", l.args[0])
		}
		op = platform.Fault(cause)
	case platform.OpPushString:
		var rd int
		var s string
		if rd, err = reg(l.args[0]); err == nil {
			s, err = strconv.Unquote(l.args[1])
		}
		op = platform.PushString(rd, s)
	}
	if err != nil {
		return nil, err
	}
	return []platform.Op{op}, nil
}

// syscall expands the syscall macro. Its length must match the count taken
// in the first pass of Assemble.
func (a *assembler) syscall(args []string) ([]platform.Op, error) {
	sysno, err := a.sysno(args[0])
	if err != nil {
		return nil, err
	}
	ops := make([]platform.Op, 0, len(args)+1)
	ops = append(ops, platform.Li(arch.RegA7, int64(sysno)))
	for i, arg := range args[1:] {
		rd := arch.RegA0 + i
		if rs, ok := arch.RegisterByName(arg); ok {
			ops = append(ops, platform.Mv(rd, rs))
			continue
		}
		imm, err := immediate(arg)
		if err != nil {
			return nil, fmt.Errorf("syscall argument %d: %w", i, err)
		}
		ops = append(ops, platform.Li(rd, imm))
	}
	return append(ops, platform.Ecall()), nil
}

func (a *assembler) sysno(s string) (uintptr, error) {
	if n, err := strconv.ParseUint(s, 0, 32); err == nil {
		return uintptr(n), nil
	}
	if a.table == nil {
		return 0, fmt.Errorf("no syscall table to resolve %q", s)
	}
	return a.table.LookupNo(s)
}

func (a *assembler) target(s string) (int, error) {
	if idx, ok := a.labels[s]; ok {
		return idx, nil
	}
	return 0, fmt.Errorf("undefined label %q", s)
}

func reg(s string) (int, error) {
	r, ok := arch.RegisterByName(s)
	if !ok {
		return 0, fmt.Errorf("unknown register %q", s)
	}
	return r, nil
}

// immediate parses a signed or unsigned 64-bit integer in any base
// strconv accepts.
func immediate(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid immediate %q", s)
	}
	return int64(v), nil
}

// memOperand parses "off(reg)".
func memOperand(s string) (int64, int, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return 0, 0, fmt.Errorf("invalid memory operand %q, want off(reg)", s)
	}
	var off int64
	if open > 0 {
		var err error
		if off, err = immediate(s[:open]); err != nil {
			return 0, 0, err
		}
	}
	base, err := reg(s[open+1 : len(s)-1])
	if err != nil {
		return 0, 0, err
	}
	return off, base, nil
}

// tokenize splits a line on whitespace and commas, keeping Go-quoted strings
// whole and dropping comments.
func tokenize(line string) ([]string, error) {
	var toks []string
	for {
		line = strings.TrimLeft(line, " \t\r,")
		if line == "" || line[0] == '#' {
			return toks, nil
		}
		if line[0] == '"' || line[0] == '`' {
			q, err := strconv.QuotedPrefix(line)
			if err != nil {
				return nil, fmt.Errorf("unterminated string")
			}
			toks = append(toks, q)
			line = line[len(q):]
			continue
		}
		end := strings.IndexAny(line, " \t\r,#")
		if end < 0 {
			end = len(line)
		}
		toks = append(toks, line[:end])
		line = line[end:]
	}
}
