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

package kernel

import (
	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/loader"
	"rvos.dev/rvos/pkg/sentry/mm"
)

// Execve replaces the image of t's process with the named executable. Every
// other thread of the process exits and t becomes the main thread. The pid
// is unchanged.
//
// On success the trap context has been replaced and the returned control
// suppresses the syscall return value.
//
// Preconditions: t is the current thread.
func (t *Thread) Execve(filename string, argv, envv []string) (*SyscallControl, error) {
	k := t.k
	img, err := k.LookupImage(filename)
	if err != nil {
		return nil, err
	}
	m := mm.NewMemoryManager()
	l, err := loader.Load(loader.LoadArgs{
		MemoryManager: m,
		Image:         img,
		Argv:          argv,
		Envv:          envv,
		Resolve:       k.LookupImage,
	})
	if err != nil {
		m.Destroy()
		return nil, err
	}

	// Past this point exec cannot fail.
	k.treeMu.Lock()
	p := t.Process()
	for o := p.threads.Front(); o != nil; o = o.Next() {
		if o != t {
			k.stopThreadLocked(o, ExitStatus{})
		}
	}
	p.leader = t
	t.stackSlot = 0
	t.clearTID = 0
	p.stackSlots = newIDAllocator(1, maxThreadStacks)
	p.syncObjs = syncTables{}
	k.treeMu.Unlock()

	p.mu.Lock()
	old := p.mm
	p.mm, p.image, p.program = m, l.Image, l.Program
	p.mu.Unlock()
	old.Destroy()

	p.fdTable.RemoveIf(func(_ *FileDescription, flags FDFlags) bool {
		return flags.CloseOnExec
	})
	p.handlers.Reset()
	t.sigFrames = nil
	*t.Regs() = arch.NewUserRegisters(uint64(l.Entry), uint64(l.StackPointer))

	log.Infof("[%d] Process %d executing %s %q", t.tid, p.pid, l.Image.Name, l.Argv)
	return CtrlIgnoreReturn, nil
}
