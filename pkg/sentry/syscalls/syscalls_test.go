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

package syscalls

import (
	"testing"

	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/kernel"
)

func TestError(t *testing.T) {
	sc := Error("brk", linuxerr.ENOMEM)
	if sc.Name != "brk" {
		t.Errorf("Name: got %q, wanted %q", sc.Name, "brk")
	}
	rval, ctrl, err := sc.Fn(nil, arch.SyscallArguments{})
	if rval != 0 || ctrl != nil || !linuxerr.Equals(linuxerr.ENOMEM, err) {
		t.Errorf("Fn: got (%d, %v, %v), wanted (0, nil, ENOMEM)", rval, ctrl, err)
	}
}

func TestSupported(t *testing.T) {
	called := false
	sc := Supported("getpid", func(*kernel.Thread, arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
		called = true
		return 42, nil, nil
	})
	table := &kernel.SyscallTable{Arch: "test", Table: map[uintptr]kernel.Syscall{172: sc}}
	if got := table.LookupName(172); got != "getpid" {
		t.Errorf("LookupName(172): got %q, wanted getpid", got)
	}
	if rval, _, _ := table.Lookup(172)(nil, arch.SyscallArguments{}); rval != 42 || !called {
		t.Errorf("Lookup(172) returned %d (called %v), wanted 42", rval, called)
	}
}

func TestSupportLevels(t *testing.T) {
	for _, tc := range []struct {
		sc   kernel.Syscall
		want kernel.SupportLevel
	}{
		{Supported("getpid", nil), kernel.SupportFull},
		{PartiallySupported("wait4", nil, "no rusage"), kernel.SupportPartial},
		{Error("brk", linuxerr.ENOMEM), kernel.SupportUnimplemented},
		{ErrorWithEvent("mmap", linuxerr.ENOMEM), kernel.SupportUnimplemented},
	} {
		if tc.sc.SupportLevel != tc.want {
			t.Errorf("%s: got support level %v, wanted %v", tc.sc.Name, tc.sc.SupportLevel, tc.want)
		}
	}
	if got := kernel.SupportLevel(42).String(); got != "Undocumented" {
		t.Errorf("SupportLevel(42).String(): got %q, wanted Undocumented", got)
	}
}
