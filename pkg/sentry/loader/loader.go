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

// Package loader loads executable images into address spaces.
//
// An Image carries the Program that executes it and, optionally, a static
// riscv64 ELF executable whose segments describe the memory layout. An image
// may instead be an interpreter script ("#!"), which is resolved to the
// interpreter's image.
package loader

import (
	"fmt"

	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/sentry/mm"
	"rvos.dev/rvos/pkg/sentry/platform"
)

const (
	// maxLoaderAttempts is the maximum number of attempts to try to load
	// an interpreter scripts, to prevent loops. 6 (initial + 5 changes) is
	// what the Linux kernel allows (fs/exec.c:search_binary_handler).
	maxLoaderAttempts = 6

	// MaxStackTop is the highest address a user stack may end at; the vdso
	// occupies the page above it.
	MaxStackTop hostarch.Addr = mm.MaxUserAddress - hostarch.PageSize

	// StackTop is the top of the main thread's stack. The page between it
	// and the vdso is a guard.
	StackTop = MaxStackTop - hostarch.PageSize

	// StackSize is the size of every user stack.
	StackSize = 16 * hostarch.PageSize

	// DefaultTextBase is the address a Script's text is mapped at when it
	// does not set an entry point.
	DefaultTextBase hostarch.Addr = 0x10000
)

// Image is a loadable executable.
type Image struct {
	// Name is the path the image is registered under.
	Name string

	// Program executes the image. It is unused for interpreter scripts.
	Program platform.Program

	// ELF optionally holds a static riscv64 ELF executable that provides
	// the memory layout and entry point.
	ELF []byte

	// Script optionally holds an interpreter script.
	Script []byte
}

// String implements fmt.Stringer.String.
func (img *Image) String() string {
	return img.Name
}

// Resolver returns the image registered at name.
type Resolver func(name string) (*Image, error)

// LoadArgs holds the arguments to Load.
type LoadArgs struct {
	// MemoryManager is the empty address space to load into.
	MemoryManager *mm.MemoryManager

	// Image is the executable.
	Image *Image

	// Argv and Envv are the argument and environment vectors.
	Argv []string
	Envv []string

	// Resolve finds interpreters for scripts. If nil, scripts fail to load.
	Resolve Resolver
}

// Loaded describes a loaded image.
type Loaded struct {
	// Image is the image finally loaded, after interpreter resolution.
	Image *Image

	// Entry is the initial program counter.
	Entry hostarch.Addr

	// StackPointer is the initial stack pointer. It points at argc.
	StackPointer hostarch.Addr

	// Auxv is the auxiliary vector placed on the stack.
	Auxv linux.Auxv

	// Argv is the argument vector placed on the stack.
	Argv []string

	// Program executes the address space: the image's text and the vdso.
	Program platform.Program
}

// Load loads args.Image into args.MemoryManager and builds the initial stack.
func Load(args LoadArgs) (Loaded, error) {
	img, argv := args.Image, args.Argv
	for attempt := 1; img.Script != nil; attempt++ {
		if attempt >= maxLoaderAttempts {
			return Loaded{}, linuxerr.ELOOP
		}
		interp, newargv, err := parseInterpreterScript(img.Name, img.Script, argv)
		if err != nil {
			return Loaded{}, err
		}
		if args.Resolve == nil {
			return Loaded{}, linuxerr.ENOEXEC
		}
		next, err := args.Resolve(interp)
		if err != nil {
			log.Infof("Error resolving interpreter %q for %q: %v", interp, img.Name, err)
			return Loaded{}, err
		}
		img, argv = next, newargv
	}
	if img.Program == nil {
		return Loaded{}, linuxerr.ENOEXEC
	}

	m := args.MemoryManager
	var (
		entry hostarch.Addr
		text  hostarch.AddrRange
		auxv  linux.Auxv
	)
	switch {
	case img.ELF != nil:
		info, err := loadELF(m, img.ELF)
		if err != nil {
			return Loaded{}, err
		}
		entry, text, auxv = info.entry, info.text, info.auxv()
	default:
		var err error
		entry, text, err = mapScriptText(m, img.Program)
		if err != nil {
			return Loaded{}, err
		}
		auxv = linux.Auxv{{Key: linux.AT_ENTRY, Value: uint64(entry)}}
	}

	if err := m.Map(VDSOBase, hostarch.PageSize, hostarch.ReadExec, "[vdso]"); err != nil {
		return Loaded{}, err
	}
	auxv = append(auxv,
		linux.AuxEntry{Key: linux.AT_PAGESZ, Value: hostarch.PageSize},
		linux.AuxEntry{Key: linux.AT_SYSINFO_EHDR, Value: uint64(VDSOBase)},
	)

	top, err := MapStack(m, 0)
	if err != nil {
		return Loaded{}, err
	}
	execfn := img.Name
	if len(argv) > 0 {
		execfn = argv[0]
	}
	sp, auxv, err := buildStack(m, top, argv, args.Envv, auxv, execfn)
	if err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Image:        img,
		Entry:        entry,
		StackPointer: sp,
		Auxv:         auxv,
		Argv:         argv,
		Program: platform.Segments{
			{Range: vdsoRange(), Program: vdso},
			{Range: text, Program: img.Program},
		},
	}, nil
}

// mapScriptText maps the text of a Script program.
func mapScriptText(m *mm.MemoryManager, prog platform.Program) (hostarch.Addr, hostarch.AddrRange, error) {
	s, ok := prog.(*platform.Script)
	if !ok {
		return 0, hostarch.AddrRange{}, fmt.Errorf("program %T has no layout: %w", prog, linuxerr.ENOEXEC)
	}
	entry := hostarch.Addr(s.Entry)
	if entry == 0 {
		entry = DefaultTextBase
		s.Entry = uint64(entry)
	}
	size := s.Size()
	if size == 0 {
		size = platform.InstructionSize
	}
	end, ok := entry.AddLength(size)
	if !ok {
		return 0, hostarch.AddrRange{}, linuxerr.ENOEXEC
	}
	start := entry.RoundDown()
	end, ok = end.RoundUp()
	if !ok || end > StackTop-StackSize {
		return 0, hostarch.AddrRange{}, linuxerr.ENOEXEC
	}
	if err := m.Map(start, uint64(end-start), hostarch.ReadExec, "text"); err != nil {
		return 0, hostarch.AddrRange{}, err
	}
	return entry, hostarch.AddrRange{Start: start, End: end}, nil
}
