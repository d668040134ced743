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

package arch

import "fmt"

// Scause is the value of the scause CSR: the interrupt bit and an exception
// or interrupt code.
type Scause uint64

// InterruptBit is set in Scause for asynchronous interrupts.
const InterruptBit Scause = 1 << 63

// Exception causes.
const (
	InstructionMisaligned Scause = 0
	InstructionFault      Scause = 1
	IllegalInstruction    Scause = 2
	Breakpoint            Scause = 3
	LoadMisaligned        Scause = 4
	LoadFault             Scause = 5
	StoreMisaligned       Scause = 6
	StoreFault            Scause = 7
	UserEnvCall           Scause = 8
	InstructionPageFault  Scause = 12
	LoadPageFault         Scause = 13
	StorePageFault        Scause = 15
)

// Interrupt causes.
const (
	SupervisorSoft     = InterruptBit | 1
	SupervisorTimer    = InterruptBit | 5
	SupervisorExternal = InterruptBit | 9
)

// IsInterrupt returns true for asynchronous causes.
func (c Scause) IsInterrupt() bool {
	return c&InterruptBit != 0
}

// Code returns the cause with the interrupt bit cleared.
func (c Scause) Code() uint64 {
	return uint64(c &^ InterruptBit)
}

// IsMemoryFault returns true for access, misaligned and page faults.
func (c Scause) IsMemoryFault() bool {
	switch c {
	case InstructionMisaligned, InstructionFault, LoadMisaligned, LoadFault,
		StoreMisaligned, StoreFault, InstructionPageFault, LoadPageFault, StorePageFault:
		return true
	}
	return false
}

var causeNames = map[Scause]string{
	InstructionMisaligned: "InstructionMisaligned",
	InstructionFault:      "InstructionFault",
	IllegalInstruction:    "IllegalInstruction",
	Breakpoint:            "Breakpoint",
	LoadMisaligned:        "LoadMisaligned",
	LoadFault:             "LoadFault",
	StoreMisaligned:       "StoreMisaligned",
	StoreFault:            "StoreFault",
	UserEnvCall:           "UserEnvCall",
	InstructionPageFault:  "InstructionPageFault",
	LoadPageFault:         "LoadPageFault",
	StorePageFault:        "StorePageFault",
	SupervisorSoft:        "SupervisorSoft",
	SupervisorTimer:       "SupervisorTimer",
	SupervisorExternal:    "SupervisorExternal",
}

// String implements fmt.Stringer.String.
func (c Scause) String() string {
	if n, ok := causeNames[c]; ok {
		return n
	}
	if c.IsInterrupt() {
		return fmt.Sprintf("Interrupt(%d)", c.Code())
	}
	return fmt.Sprintf("Exception(%d)", c.Code())
}

// ParseScause resolves a cause name as printed by String.
func ParseScause(name string) (Scause, bool) {
	for c, n := range causeNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}
