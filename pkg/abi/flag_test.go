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

package abi

import (
	"testing"
)

func TestFlagSetParse(t *testing.T) {
	fs := FlagSet{
		{Flag: 0x1, Name: "ONE"},
		{Flag: 0x4, Name: "FOUR"},
	}
	for val, want := range map[uint64]string{
		0:     "0x0",
		0x1:   "ONE",
		0x5:   "ONE|FOUR",
		0x105: "ONE|FOUR|0x100",
		0x2:   "0x2",
	} {
		if got := fs.Parse(val); got != want {
			t.Errorf("Parse(%#x): got %q, wanted %q", val, got, want)
		}
	}
}

func TestValueSetParse(t *testing.T) {
	vs := ValueSet{0: "ZERO", 2: "TWO"}
	if got := vs.Parse(2); got != "TWO" {
		t.Errorf("Parse(2): got %q, wanted TWO", got)
	}
	if got := vs.Parse(17); got != "0x11" {
		t.Errorf("Parse(17): got %q, wanted 0x11", got)
	}
	if got := vs.ParseDecimal(17); got != "17" {
		t.Errorf("ParseDecimal(17): got %q, wanted 17", got)
	}
}
