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
	"crypto/rand"

	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/sentry/mm"
)

// stackAlign is the stack pointer alignment required by the psABI.
const stackAlign = 16

// ThreadStackTop returns the top of the user stack in slot. Slot 0 is the
// main thread's stack; each further slot sits below the previous one with a
// guard page between them.
func ThreadStackTop(slot int) hostarch.Addr {
	return StackTop - hostarch.Addr(slot)*(StackSize+hostarch.PageSize)
}

// MapStack maps the user stack for slot and returns its top.
func MapStack(m *mm.MemoryManager, slot int) (hostarch.Addr, error) {
	top := ThreadStackTop(slot)
	if err := m.Map(top-StackSize, StackSize, hostarch.ReadWrite, "[stack]"); err != nil {
		return 0, err
	}
	return top, nil
}

// UnmapStack unmaps the user stack for slot.
func UnmapStack(m *mm.MemoryManager, slot int) error {
	top := ThreadStackTop(slot)
	return m.Unmap(top-StackSize, StackSize)
}

// stackWriter pushes data downwards from a stack top.
type stackWriter struct {
	m   *mm.MemoryManager
	sp  hostarch.Addr
	err error
}

func (s *stackWriter) push(b []byte) hostarch.Addr {
	if s.err != nil {
		return 0
	}
	s.sp -= hostarch.Addr(len(b))
	_, s.err = s.m.CopyOut(s.sp, b)
	return s.sp
}

func (s *stackWriter) pushString(str string) hostarch.Addr {
	b := make([]byte, len(str)+1)
	copy(b, str)
	return s.push(b)
}

// buildStack lays out the initial process stack below top, as the System V
// ABI describes:
//
//	argc, argv[0..argc), NULL, envp[...], NULL, auxv pairs, AT_NULL, ...
//
// followed at higher addresses by the strings they point to. It returns the
// stack pointer and the final auxiliary vector.
func buildStack(m *mm.MemoryManager, top hostarch.Addr, argv, envv []string, auxv linux.Auxv, execfn string) (hostarch.Addr, linux.Auxv, error) {
	s := &stackWriter{m: m, sp: top}

	var random [16]byte
	if _, err := rand.Read(random[:]); err != nil {
		return 0, nil, err
	}
	randomAddr := s.push(random[:])
	execfnAddr := s.pushString(execfn)
	envAddrs := make([]hostarch.Addr, len(envv))
	for i := len(envv) - 1; i >= 0; i-- {
		envAddrs[i] = s.pushString(envv[i])
	}
	argAddrs := make([]hostarch.Addr, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		argAddrs[i] = s.pushString(argv[i])
	}
	if s.err != nil {
		return 0, nil, s.err
	}

	auxv = append(auxv,
		linux.AuxEntry{Key: linux.AT_RANDOM, Value: uint64(randomAddr)},
		linux.AuxEntry{Key: linux.AT_EXECFN, Value: uint64(execfnAddr)},
	)

	words := make([]uint64, 0, 1+len(argv)+1+len(envv)+1+2*(len(auxv)+1))
	words = append(words, uint64(len(argv)))
	for _, a := range argAddrs {
		words = append(words, uint64(a))
	}
	words = append(words, 0)
	for _, a := range envAddrs {
		words = append(words, uint64(a))
	}
	words = append(words, 0)
	for _, e := range auxv {
		words = append(words, e.Key, e.Value)
	}
	words = append(words, linux.AT_NULL, 0)

	buf := make([]byte, 8*len(words))
	for i, w := range words {
		hostarch.ByteOrder.PutUint64(buf[8*i:], w)
	}
	s.sp = (s.sp - hostarch.Addr(len(buf))) &^ (stackAlign - 1)
	s.sp += hostarch.Addr(len(buf))
	sp := s.push(buf)
	if s.err != nil {
		return 0, nil, s.err
	}
	return sp, auxv, nil
}
