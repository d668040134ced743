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

package linux

import (
	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/kernel"
)

// nodename is the host name reported by uname.
const nodename = "rvos"

// Uname implements linux syscall uname.
func Uname(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	table := t.Kernel().SyscallTable()
	version := table.Version

	// Fill in structure fields.
	var u linux.UtsName
	copy(u.Sysname[:], version.Sysname)
	copy(u.Nodename[:], nodename)
	copy(u.Release[:], version.Release)
	copy(u.Version[:], version.Version)
	copy(u.Machine[:], table.Arch)
	copy(u.Domainname[:], "(none)")

	// Copy out the result.
	var b [linux.SizeOfUtsName]byte
	u.MarshalBytes(b[:])
	va := args[0].Pointer()
	_, err := t.CopyOut(va, b[:])
	return 0, nil, err
}
