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

package refs

import (
	"testing"
)

type counted struct {
	Refs[counted]
}

func TestDecRefDestroys(t *testing.T) {
	var c counted
	c.InitRefs()
	c.IncRef()
	destroyed := 0
	c.DecRef(func() { destroyed++ })
	if destroyed != 0 {
		t.Fatalf("destroyed with a reference still held")
	}
	c.DecRef(func() { destroyed++ })
	if destroyed != 1 {
		t.Fatalf("destructor ran %d times, wanted 1", destroyed)
	}
	if c.TryIncRef() {
		t.Errorf("TryIncRef on a destroyed object succeeded")
	}
}

func TestDecRefBelowZeroPanics(t *testing.T) {
	var c counted
	c.InitRefs()
	c.DecRef(nil)
	defer func() {
		if recover() == nil {
			t.Errorf("DecRef below zero did not panic")
		}
	}()
	c.DecRef(nil)
}

func TestLeakCheck(t *testing.T) {
	SetLeakMode(LeaksLogWarning)
	defer SetLeakMode(NoLeakChecking)

	var live, freed counted
	live.InitRefs()
	freed.InitRefs()
	freed.DecRef(nil)
	if got := DoLeakCheck(); got != 1 {
		t.Errorf("DoLeakCheck(): got %d leaked objects, wanted 1", got)
	}
	live.DecRef(nil)
	if got := DoLeakCheck(); got != 0 {
		t.Errorf("DoLeakCheck() after release: got %d leaked objects, wanted 0", got)
	}
}

func TestLeakModeFlag(t *testing.T) {
	var m LeakMode
	for _, s := range []string{"disabled", "log-names", "panic"} {
		if err := m.Set(s); err != nil {
			t.Fatalf("Set(%q): %v", s, err)
		}
		if got := m.String(); got != s {
			t.Errorf("String() after Set(%q): got %q", s, got)
		}
	}
	if err := m.Set("bogus"); err == nil {
		t.Errorf("Set(bogus) succeeded")
	}
}

func TestRefType(t *testing.T) {
	var c counted
	if got, want := c.RefType(), "refs.counted"; got != want {
		t.Errorf("RefType(): got %q, wanted %q", got, want)
	}
}
