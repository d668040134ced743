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

// Package syscalls contains helpers for building syscall tables.
//
// Note that the stubs in this package may merely provide the interface, not
// the actual implementation. It just makes writing syscall stubs
// straightforward.
package syscalls

import (
	"fmt"
	"time"

	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/metric"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/kernel"
)

var unimplementedSyscalls = metric.MustCreateNewUint64Metric("/syscalls/unimplemented", false /* sync */, "Number of calls to syscalls that are stubbed out.")

// unimplementedLog limits the warnings emitted by ErrorWithEvent.
var unimplementedLog = log.BasicRateLimitedLogger(time.Second)

// Supported returns a syscall that is fully supported.
func Supported(name string, fn kernel.SyscallFn) kernel.Syscall {
	return kernel.Syscall{
		Name:         name,
		Fn:           fn,
		SupportLevel: kernel.SupportFull,
	}
}

// PartiallySupported returns a syscall that has a partial implementation.
func PartiallySupported(name string, fn kernel.SyscallFn, note string) kernel.Syscall {
	return kernel.Syscall{
		Name:         name,
		Fn:           fn,
		SupportLevel: kernel.SupportPartial,
		Note:         note,
	}
}

// Error returns a syscall handler that will always give the passed error.
func Error(name string, err error) kernel.Syscall {
	return kernel.Syscall{
		Name: name,
		Fn: func(*kernel.Thread, arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
			return 0, nil, err
		},
		SupportLevel: kernel.SupportUnimplemented,
		Note:         fmt.Sprintf("Returns %q.", err.Error()),
	}
}

// ErrorWithEvent gives a syscall function that records the call as
// unimplemented and returns the passed error.
func ErrorWithEvent(name string, err error) kernel.Syscall {
	return kernel.Syscall{
		Name: name,
		Fn: func(t *kernel.Thread, _ arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
			UnimplementedEvent(t, name)
			return 0, nil, err
		},
		SupportLevel: kernel.SupportUnimplemented,
		Note:         fmt.Sprintf("Returns %q.", err.Error()),
	}
}

// UnimplementedEvent records a call to an unimplemented syscall.
func UnimplementedEvent(t *kernel.Thread, name string) {
	unimplementedSyscalls.Increment()
	unimplementedLog.Warningf("[%d] Unimplemented syscall %s, registers: %v", t.ThreadID(), name, t.Regs())
}
