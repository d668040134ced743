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
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/sentry/platform"
)

// sysRtSigreturn is rt_sigreturn(2) on riscv64.
const sysRtSigreturn = 139

// VDSOBase is the address the vdso is mapped at in every address space.
const VDSOBase hostarch.Addr = MaxStackTop

// SigreturnTrampoline is the address of the vdso's rt_sigreturn trampoline,
// used as the return address of signal handlers installed without
// SA_RESTORER.
const SigreturnTrampoline = VDSOBase

// vdso is the text of the vdso page.
var vdso = &platform.Script{
	Entry: uint64(VDSOBase),
	Ops:   platform.Syscall(sysRtSigreturn),
}

func vdsoRange() hostarch.AddrRange {
	return hostarch.AddrRange{Start: VDSOBase, End: VDSOBase + hostarch.PageSize}
}
