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

package strace

import (
	"rvos.dev/rvos/pkg/abi"
	"rvos.dev/rvos/pkg/abi/linux"
)

// CloneFlagSet is the set of clone(2) flags.
var CloneFlagSet = abi.FlagSet{
	{
		Flag: linux.CLONE_VM,
		Name: "CLONE_VM",
	},
	{
		Flag: linux.CLONE_FS,
		Name: "CLONE_FS",
	},
	{
		Flag: linux.CLONE_FILES,
		Name: "CLONE_FILES",
	},
	{
		Flag: linux.CLONE_SIGHAND,
		Name: "CLONE_SIGHAND",
	},
	{
		Flag: linux.CLONE_PIDFD,
		Name: "CLONE_PIDFD",
	},
	{
		Flag: linux.CLONE_PTRACE,
		Name: "CLONE_PTRACE",
	},
	{
		Flag: linux.CLONE_VFORK,
		Name: "CLONE_VFORK",
	},
	{
		Flag: linux.CLONE_PARENT,
		Name: "CLONE_PARENT",
	},
	{
		Flag: linux.CLONE_THREAD,
		Name: "CLONE_THREAD",
	},
	{
		Flag: linux.CLONE_NEWNS,
		Name: "CLONE_NEWNS",
	},
	{
		Flag: linux.CLONE_SYSVSEM,
		Name: "CLONE_SYSVSEM",
	},
	{
		Flag: linux.CLONE_SETTLS,
		Name: "CLONE_SETTLS",
	},
	{
		Flag: linux.CLONE_PARENT_SETTID,
		Name: "CLONE_PARENT_SETTID",
	},
	{
		Flag: linux.CLONE_CHILD_CLEARTID,
		Name: "CLONE_CHILD_CLEARTID",
	},
	{
		Flag: linux.CLONE_DETACHED,
		Name: "CLONE_DETACHED",
	},
	{
		Flag: linux.CLONE_UNTRACED,
		Name: "CLONE_UNTRACED",
	},
	{
		Flag: linux.CLONE_CHILD_SETTID,
		Name: "CLONE_CHILD_SETTID",
	},
}

// cloneFlags formats clone(2) flags. The low byte is the exit signal.
func cloneFlags(val uint64) string {
	flags := CloneFlagSet.Parse(val &^ linux.CSIGNAL)
	if sig := linux.Signal(val & linux.CSIGNAL); sig != 0 {
		return flags + "|" + sig.String()
	}
	return flags
}

// waitOptions is the set of wait4(2) options.
var waitOptions = abi.FlagSet{
	{
		Flag: linux.WNOHANG,
		Name: "WNOHANG",
	},
	{
		Flag: linux.WUNTRACED,
		Name: "WUNTRACED",
	},
	{
		Flag: linux.WEXITED,
		Name: "WEXITED",
	},
	{
		Flag: linux.WCONTINUED,
		Name: "WCONTINUED",
	},
	{
		Flag: linux.WNOWAIT,
		Name: "WNOWAIT",
	},
	{
		Flag: linux.WNOTHREAD,
		Name: "__WNOTHREAD",
	},
	{
		Flag: linux.WALL,
		Name: "__WALL",
	},
	{
		Flag: linux.WCLONE,
		Name: "__WCLONE",
	},
}

// dupFlags is the set of dup3(2) flags.
var dupFlags = abi.FlagSet{
	{
		Flag: linux.O_CLOEXEC,
		Name: "O_CLOEXEC",
	},
}

// clockIDs are the clocks accepted by clock_gettime(2).
var clockIDs = abi.ValueSet{
	linux.CLOCK_REALTIME:  "CLOCK_REALTIME",
	linux.CLOCK_MONOTONIC: "CLOCK_MONOTONIC",
}
