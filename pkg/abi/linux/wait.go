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
	"fmt"
)

// Options for waitpid(2), wait4(2), and/or waitid(2), from
// include/uapi/linux/wait.h.
const (
	WNOHANG    = 0x1
	WUNTRACED  = 0x2
	WSTOPPED   = WUNTRACED
	WEXITED    = 0x4
	WCONTINUED = 0x8
	WNOWAIT    = 0x01000000
	WNOTHREAD  = 0x20000000
	WALL       = 0x40000000
	WCLONE     = 0x80000000
)

// WaitStatus represents a thread status, as returned by the wait* family of
// syscalls.
type WaitStatus uint32

// WaitStatusExit returns a WaitStatus representing the given exit status.
// Only the low eight bits of code are kept.
func WaitStatusExit(code int32) WaitStatus {
	return WaitStatus(uint32(code) & 0xff << 8)
}

// WaitStatusTerminationSignal returns a WaitStatus representing termination by
// the given signal.
func WaitStatusTerminationSignal(sig Signal) WaitStatus {
	return WaitStatus(uint32(sig) & 0x7f)
}

// Exited returns true if ws represents a thread that exited normally.
func (ws WaitStatus) Exited() bool {
	return ws&0x7f == 0
}

// ExitStatus returns the lower 8 bits of the exit status represented by ws.
func (ws WaitStatus) ExitStatus() uint32 {
	return uint32(ws>>8) & 0xff
}

// Signaled returns true if ws represents a thread that was killed by a
// signal.
func (ws WaitStatus) Signaled() bool {
	return ws&0x7f != 0 && ws&0x7f != 0x7f
}

// TerminationSignal returns the signal that terminated the thread.
func (ws WaitStatus) TerminationSignal() Signal {
	return Signal(ws & 0x7f)
}

// String implements fmt.Stringer.String.
func (ws WaitStatus) String() string {
	if ws.Exited() {
		return fmt.Sprintf("exit status %d", ws.ExitStatus())
	}
	return fmt.Sprintf("killed by signal %d", ws.TerminationSignal())
}
