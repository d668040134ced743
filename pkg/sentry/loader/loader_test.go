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

package loader

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/mm"
	"rvos.dev/rvos/pkg/sentry/platform"
)

func readWord(t *testing.T, m *mm.MemoryManager, addr hostarch.Addr) uint64 {
	t.Helper()
	var b [8]byte
	if _, err := m.CopyIn(addr, b[:]); err != nil {
		t.Fatalf("CopyIn(%v): %v", addr, err)
	}
	return hostarch.ByteOrder.Uint64(b[:])
}

func TestLoadScript(t *testing.T) {
	m := mm.NewMemoryManager()
	img := &Image{Name: "/bin/init", Program: &platform.Script{Ops: platform.Syscall(93, 0)}}
	l, err := Load(LoadArgs{
		MemoryManager: m,
		Image:         img,
		Argv:          []string{"init", "-v"},
		Envv:          []string{"HOME=/"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Entry != DefaultTextBase {
		t.Errorf("Entry: got %v, wanted %v", l.Entry, DefaultTextBase)
	}
	if l.StackPointer%stackAlign != 0 {
		t.Errorf("StackPointer %v is not %d-byte aligned", l.StackPointer, stackAlign)
	}

	sp := l.StackPointer
	if argc := readWord(t, m, sp); argc != 2 {
		t.Fatalf("argc: got %d, wanted 2", argc)
	}
	var argv []string
	for i := 0; i < 2; i++ {
		s, err := m.CopyInString(hostarch.Addr(readWord(t, m, sp+hostarch.Addr(8*(i+1)))), 64)
		if err != nil {
			t.Fatalf("CopyInString: %v", err)
		}
		argv = append(argv, s)
	}
	if diff := cmp.Diff([]string{"init", "-v"}, argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	if w := readWord(t, m, sp+24); w != 0 {
		t.Errorf("argv terminator: got %#x", w)
	}
	env, err := m.CopyInString(hostarch.Addr(readWord(t, m, sp+32)), 64)
	if err != nil || env != "HOME=/" {
		t.Errorf("envp[0]: got (%q, %v)", env, err)
	}

	// The auxv follows envp's terminator and ends with AT_NULL.
	auxAddr := sp + 48
	var got linux.Auxv
	for {
		e := linux.AuxEntry{Key: readWord(t, m, auxAddr), Value: readWord(t, m, auxAddr+8)}
		auxAddr += 16
		if e.Key == linux.AT_NULL {
			break
		}
		got = append(got, e)
	}
	if diff := cmp.Diff(l.Auxv, got); diff != "" {
		t.Errorf("auxv on stack mismatch (-want +got):\n%s", diff)
	}

	names := map[string]bool{}
	for _, v := range m.Mappings() {
		names[v.Name] = true
	}
	for _, n := range []string{"text", "[vdso]", "[stack]"} {
		if !names[n] {
			t.Errorf("no %s mapping in %v", n, m.Mappings())
		}
	}
}

func TestVDSOTrampoline(t *testing.T) {
	m := mm.NewMemoryManager()
	l, err := Load(LoadArgs{MemoryManager: m, Image: &Image{Name: "a", Program: &platform.Script{Ops: []platform.Op{platform.Ecall()}}}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	regs := arch.NewUserRegisters(uint64(SigreturnTrampoline), 0)
	var trap platform.Trap
	for i := 0; i < 4; i++ {
		var ok bool
		if trap, ok = l.Program.Step(&regs, m); ok {
			break
		}
	}
	if trap.Cause != arch.UserEnvCall || regs.SyscallNo() != sysRtSigreturn {
		t.Errorf("trampoline: got trap %v with a7=%d, wanted rt_sigreturn", trap, regs.SyscallNo())
	}
}

func TestInterpreterScript(t *testing.T) {
	interp := &Image{Name: "/bin/sh", Program: &platform.Script{Ops: []platform.Op{platform.Ecall()}}}
	script := &Image{Name: "/bin/job", Script: []byte("#! /bin/sh -e -x\nexit 0\n")}
	resolve := func(name string) (*Image, error) {
		if name == interp.Name {
			return interp, nil
		}
		return nil, linuxerr.ENOENT
	}
	l, err := Load(LoadArgs{MemoryManager: mm.NewMemoryManager(), Image: script, Argv: []string{"job", "arg"}, Resolve: resolve})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Image != interp {
		t.Errorf("loaded image: got %v, wanted %v", l.Image, interp)
	}
	if diff := cmp.Diff([]string{"/bin/sh", "-e -x", "/bin/job", "arg"}, l.Argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}

	loop := &Image{Name: "/bin/loop", Script: []byte("#!/bin/loop\n")}
	_, err = Load(LoadArgs{
		MemoryManager: mm.NewMemoryManager(),
		Image:         loop,
		Resolve:       func(string) (*Image, error) { return loop, nil },
	})
	if err != linuxerr.ELOOP {
		t.Errorf("self-interpreting script: got %v, wanted ELOOP", err)
	}

	if _, err := Load(LoadArgs{MemoryManager: mm.NewMemoryManager(), Image: &Image{Name: "bad", Script: []byte("#!\n")}, Resolve: resolve}); err != linuxerr.ENOEXEC {
		t.Errorf("script without interpreter: got %v, wanted ENOEXEC", err)
	}
}

// buildELF returns a minimal static riscv64 executable with one RX PT_LOAD
// segment at vaddr covering the whole file and memsz bytes of memory.
func buildELF(vaddr, entry, memsz uint64, machine uint16) []byte {
	const ehsize, phentsize = 64, 56
	b := make([]byte, ehsize+phentsize+8)
	copy(b, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1})
	le := binary.LittleEndian
	le.PutUint16(b[16:], 2) // ET_EXEC
	le.PutUint16(b[18:], machine)
	le.PutUint32(b[20:], 1)
	le.PutUint64(b[24:], entry)
	le.PutUint64(b[32:], ehsize)
	le.PutUint16(b[52:], ehsize)
	le.PutUint16(b[54:], phentsize)
	le.PutUint16(b[56:], 1)
	le.PutUint16(b[58:], 64)

	ph := b[ehsize:]
	le.PutUint32(ph[0:], 1) // PT_LOAD
	le.PutUint32(ph[4:], 5) // PF_R|PF_X
	le.PutUint64(ph[8:], 0)
	le.PutUint64(ph[16:], vaddr)
	le.PutUint64(ph[24:], vaddr)
	le.PutUint64(ph[32:], uint64(len(b)))
	le.PutUint64(ph[40:], memsz)
	le.PutUint64(ph[48:], hostarch.PageSize)

	copy(b[ehsize+phentsize:], "payload!")
	return b
}

func TestLoadELF(t *testing.T) {
	const vaddr, entry = 0x400000, 0x400078
	m := mm.NewMemoryManager()
	img := &Image{
		Name:    "/bin/elf",
		ELF:     buildELF(vaddr, entry, 2*hostarch.PageSize, 243),
		Program: &platform.Script{Entry: entry, Ops: []platform.Op{platform.Ecall()}},
	}
	l, err := Load(LoadArgs{MemoryManager: m, Image: img})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Entry != entry {
		t.Errorf("Entry: got %v, wanted %#x", l.Entry, entry)
	}
	buf := make([]byte, 8)
	if _, err := m.CopyIn(entry, buf); err != nil || string(buf) != "payload!" {
		t.Errorf("segment contents at entry: got (%q, %v)", buf, err)
	}
	if _, err := m.CopyOut(vaddr, []byte{0}); err != linuxerr.EFAULT {
		t.Errorf("write to text segment: got %v, wanted EFAULT", err)
	}
	wantAux := map[uint64]uint64{
		linux.AT_PHDR:  vaddr + 64,
		linux.AT_PHNUM: 1,
		linux.AT_ENTRY: entry,
	}
	for _, e := range l.Auxv {
		if want, ok := wantAux[e.Key]; ok && e.Value != want {
			t.Errorf("auxv[%d]: got %#x, wanted %#x", e.Key, e.Value, want)
		}
	}

	img.ELF = buildELF(vaddr, entry, hostarch.PageSize, 62 /* EM_X86_64 */)
	if _, err := Load(LoadArgs{MemoryManager: mm.NewMemoryManager(), Image: img}); err != linuxerr.ENOEXEC {
		t.Errorf("x86-64 ELF: got %v, wanted ENOEXEC", err)
	}
}

func TestThreadStacks(t *testing.T) {
	m := mm.NewMemoryManager()
	top0, err := MapStack(m, 0)
	if err != nil {
		t.Fatalf("MapStack(0): %v", err)
	}
	top1, err := MapStack(m, 1)
	if err != nil {
		t.Fatalf("MapStack(1): %v", err)
	}
	if top1 >= top0-StackSize {
		t.Errorf("slot 1 top %v overlaps slot 0 [%v, %v)", top1, top0-StackSize, top0)
	}
	if _, err := MapStack(m, 1); err != linuxerr.EEXIST {
		t.Errorf("mapping slot 1 twice: got %v, wanted EEXIST", err)
	}
	if err := UnmapStack(m, 1); err != nil {
		t.Fatalf("UnmapStack: %v", err)
	}
	if _, err := MapStack(m, 1); err != nil {
		t.Errorf("remapping slot 1: %v", err)
	}
}
