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
	"bytes"
	"debug/elf"

	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/sentry/mm"
)

const (
	// elfPhoffOffset is the offset of e_phoff in an ELF64 header.
	elfPhoffOffset = 32

	// elfPhentSize is the size of an ELF64 program header.
	elfPhentSize = 56
)

// elfInfo describes a loaded ELF executable.
type elfInfo struct {
	entry hostarch.Addr
	phdr  hostarch.Addr
	phnum int
	text  hostarch.AddrRange
}

func progPerms(flags elf.ProgFlag) hostarch.AccessType {
	return hostarch.AccessType{
		Read:    flags&elf.PF_R != 0,
		Write:   flags&elf.PF_W != 0,
		Execute: flags&elf.PF_X != 0,
	}
}

// loadELF maps the PT_LOAD segments of the static riscv64 executable data
// into m.
func loadELF(m *mm.MemoryManager, data []byte) (elfInfo, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		log.Infof("Error parsing ELF header: %v", err)
		return elfInfo{}, linuxerr.ENOEXEC
	}
	if f.Class != elf.ELFCLASS64 || f.Data != elf.ELFDATA2LSB {
		log.Infof("Unsupported ELF class %v data %v", f.Class, f.Data)
		return elfInfo{}, linuxerr.ENOEXEC
	}
	if f.Machine != elf.EM_RISCV {
		log.Infof("Unsupported ELF machine %v", f.Machine)
		return elfInfo{}, linuxerr.ENOEXEC
	}
	if f.Type != elf.ET_EXEC {
		log.Infof("Unsupported ELF type %v", f.Type)
		return elfInfo{}, linuxerr.ENOEXEC
	}

	info := elfInfo{
		entry: hostarch.Addr(f.Entry),
		phnum: len(f.Progs),
	}
	phoff := hostarch.ByteOrder.Uint64(data[elfPhoffOffset:])
	for _, p := range f.Progs {
		switch p.Type {
		case elf.PT_PHDR:
			info.phdr = hostarch.Addr(p.Vaddr)
			continue
		case elf.PT_LOAD:
		default:
			continue
		}
		if p.Filesz > p.Memsz {
			log.Infof("PT_LOAD segment filesz %#x > memsz %#x", p.Filesz, p.Memsz)
			return elfInfo{}, linuxerr.ENOEXEC
		}
		vaddr := hostarch.Addr(p.Vaddr)
		vend, ok := vaddr.AddLength(p.Memsz)
		if !ok {
			return elfInfo{}, linuxerr.ENOEXEC
		}
		end, ok := vend.RoundUp()
		if !ok {
			return elfInfo{}, linuxerr.ENOEXEC
		}
		perms := progPerms(p.Flags)
		// Segments may share a page; the first one to claim it wins.
		for pg := vaddr.RoundDown(); pg < end; pg += hostarch.PageSize {
			if err := m.Map(pg, hostarch.PageSize, perms, "elf"); err != nil && err != linuxerr.EEXIST {
				return elfInfo{}, err
			}
		}
		if p.Filesz > 0 {
			buf := make([]byte, p.Filesz)
			if _, err := p.ReadAt(buf, 0); err != nil {
				log.Infof("Error reading PT_LOAD segment: %v", err)
				return elfInfo{}, linuxerr.ENOEXEC
			}
			if err := m.Populate(vaddr, buf); err != nil {
				return elfInfo{}, err
			}
		}
		if info.phdr == 0 && p.Off <= phoff && phoff < p.Off+p.Filesz {
			info.phdr = vaddr + hostarch.Addr(phoff-p.Off)
		}
		if perms.Execute && info.text.Length() == 0 {
			info.text = hostarch.AddrRange{Start: vaddr.RoundDown(), End: end}
		}
	}
	if info.text.Length() == 0 {
		log.Infof("ELF has no executable segment")
		return elfInfo{}, linuxerr.ENOEXEC
	}
	return info, nil
}

func (info elfInfo) auxv() linux.Auxv {
	return linux.Auxv{
		{Key: linux.AT_PHDR, Value: uint64(info.phdr)},
		{Key: linux.AT_PHENT, Value: elfPhentSize},
		{Key: linux.AT_PHNUM, Value: uint64(info.phnum)},
		{Key: linux.AT_BASE, Value: 0},
		{Key: linux.AT_ENTRY, Value: uint64(info.entry)},
	}
}
