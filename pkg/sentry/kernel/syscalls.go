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
	"fmt"
	"sort"
	"sync"

	"rvos.dev/rvos/pkg/sentry/arch"
)

// SyscallFn is a syscall implementation.
type SyscallFn func(t *Thread, args arch.SyscallArguments) (uintptr, *SyscallControl, error)

// MissingFn is a syscall to be called when an implementation is missing.
type MissingFn func(t *Thread, sysno uintptr, args arch.SyscallArguments) (uintptr, error)

// SupportLevel is a syscall support level.
type SupportLevel int

// String returns a human readable representation of the support level.
func (l SupportLevel) String() string {
	switch l {
	case SupportUnimplemented:
		return "Unimplemented"
	case SupportPartial:
		return "Partial Support"
	case SupportFull:
		return "Full Support"
	default:
		return "Undocumented"
	}
}

const (
	// SupportUndocumented indicates the syscall is not documented yet.
	SupportUndocumented SupportLevel = iota

	// SupportUnimplemented indicates the syscall is unimplemented.
	SupportUnimplemented

	// SupportPartial indicates the syscall is partially supported.
	SupportPartial

	// SupportFull indicates the syscall is fully supported.
	SupportFull
)

// Syscall includes the syscall implementation and compatibility information.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// Fn is the implementation of the syscall.
	Fn SyscallFn

	// SupportLevel is the level of support implemented.
	SupportLevel SupportLevel

	// Note describes the compatibility of the syscall.
	Note string
}

// SyscallTable is a lookup table of system calls.
type SyscallTable struct {
	// Arch is the architecture that this syscall table targets.
	Arch string

	// Version is the system version information reported by uname.
	Version Version

	// Table is the collection of functions.
	Table map[uintptr]Syscall

	// Missing is the function to call when a syscall is not present in
	// Table. If nil, missing syscalls fail with ENOSYS.
	Missing MissingFn

	// Stracer traces this syscall table. It must be set before the table
	// is used by a running kernel.
	Stracer Stracer
}

// Stracer traces syscall execution.
type Stracer interface {
	// SyscallEnter is called before syscall execution. The returned value
	// is passed to SyscallExit.
	SyscallEnter(t *Thread, sysno uintptr, args arch.SyscallArguments) any

	// SyscallExit is called after syscall execution, including syscalls
	// that exit the calling thread.
	SyscallExit(context any, t *Thread, sysno, rval uintptr, err error)
}

// allSyscallTables contains all known tables.
var (
	allSyscallTablesMu sync.Mutex
	allSyscallTables   []*SyscallTable
)

// RegisterSyscallTable registers a new syscall table for use by a Kernel.
func RegisterSyscallTable(s *SyscallTable) {
	allSyscallTablesMu.Lock()
	defer allSyscallTablesMu.Unlock()
	for _, t := range allSyscallTables {
		if t.Arch == s.Arch {
			panic(fmt.Sprintf("syscall table for %s registered twice", s.Arch))
		}
	}
	allSyscallTables = append(allSyscallTables, s)
}

// SyscallTables returns all registered syscall tables.
func SyscallTables() []*SyscallTable {
	allSyscallTablesMu.Lock()
	defer allSyscallTablesMu.Unlock()
	return append([]*SyscallTable(nil), allSyscallTables...)
}

// LookupSyscallTable returns the SyscallTable registered for arch.
func LookupSyscallTable(a string) (*SyscallTable, bool) {
	allSyscallTablesMu.Lock()
	defer allSyscallTablesMu.Unlock()
	for _, s := range allSyscallTables {
		if s.Arch == a {
			return s, true
		}
	}
	return nil, false
}

// Lookup returns the syscall implementation, if one exists.
func (s *SyscallTable) Lookup(sysno uintptr) SyscallFn {
	if sc, ok := s.Table[sysno]; ok {
		return sc.Fn
	}
	return nil
}

// LookupName looks up a syscall name.
func (s *SyscallTable) LookupName(sysno uintptr) string {
	if sc, ok := s.Table[sysno]; ok {
		return sc.Name
	}
	return fmt.Sprintf("sys_%d", sysno)
}

// LookupNo looks up a syscall number by name.
func (s *SyscallTable) LookupNo(name string) (uintptr, error) {
	for i, syscall := range s.Table {
		if syscall.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("syscall %q not found", name)
}

// Numbers returns the implemented syscall numbers in ascending order.
func (s *SyscallTable) Numbers() []uintptr {
	nums := make([]uintptr, 0, len(s.Table))
	for no := range s.Table {
		nums = append(nums, no)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

// SyscallControl is returned by syscalls to control the behavior of
// Thread.doSyscallInvoke.
type SyscallControl struct {
	// ignoreReturn is true if the syscall must not write its return value
	// to a0. It is used by syscalls that replace the trap context, such as
	// rt_sigreturn and execve.
	ignoreReturn bool

	// exit is set if the calling thread must exit once the syscall has
	// completed, with exitGroup selecting the whole process.
	exit      bool
	exitGroup bool
	status    ExitStatus
}

var (
	// CtrlIgnoreReturn indicates that the syscall has already set up the
	// trap context to return to.
	CtrlIgnoreReturn = &SyscallControl{ignoreReturn: true}
)

// CtrlDoExit is returned by the implementations of the exit syscall.
func CtrlDoExit(es ExitStatus) *SyscallControl {
	return &SyscallControl{exit: true, ignoreReturn: true, status: es}
}

// CtrlDoExitGroup is returned by the implementation of exit_group.
func CtrlDoExitGroup(es ExitStatus) *SyscallControl {
	return &SyscallControl{exit: true, exitGroup: true, ignoreReturn: true, status: es}
}
