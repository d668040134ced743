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
	"testing"

	"github.com/google/go-cmp/cmp"
	"rvos.dev/rvos/pkg/errors/linuxerr"
)

// testFile counts closes.
type testFile struct {
	closed int
}

func (f *testFile) Close() error {
	f.closed++
	return nil
}

func runFDTest(t *testing.T, fn func(fdTable *FDTable, file *FileDescription, impl *testFile)) {
	t.Helper() // Don't show in stacks.
	impl := &testFile{}
	file := NewFileDescription("test", impl)
	fdTable := NewFDTable()
	fn(fdTable, file, impl)
}

// TestFDTableMany allocates DefaultMaxFDs FDs, i.e. maxes out the FDTable,
// until there is no room, then makes sure that NewFDAt works and also that if
// we remove one and add one that works too.
func TestFDTableMany(t *testing.T) {
	runFDTest(t, func(fdTable *FDTable, file *FileDescription, _ *testFile) {
		for i := 0; i < DefaultMaxFDs; i++ {
			if _, err := fdTable.NewFDFrom(0, file, FDFlags{}); err != nil {
				t.Fatalf("Allocated %v FDs but wanted to allocate %v", i, DefaultMaxFDs)
			}
		}

		if _, err := fdTable.NewFDFrom(0, file, FDFlags{}); !linuxerr.Equals(linuxerr.EMFILE, err) {
			t.Fatalf("fdTable.NewFDFrom(0, r) in full map: got %v, wanted EMFILE", err)
		}

		if err := fdTable.NewFDAt(1, file, FDFlags{}); err != nil {
			t.Fatalf("fdTable.NewFDAt(1, r, FDFlags{}): got %v, wanted nil", err)
		}

		i := int32(2)
		if f, ok := fdTable.Remove(i); ok {
			f.DecRef()
		}
		if fd, err := fdTable.NewFDFrom(0, file, FDFlags{}); err != nil || fd != i {
			t.Fatalf("Allocated %v FDs but wanted to allocate %v: %v", i, DefaultMaxFDs, err)
		}
	})
}

// TestFDTable does a set of simple tests to make sure simple adds, removes,
// Gets, and DecRefs work.
func TestFDTable(t *testing.T) {
	runFDTest(t, func(fdTable *FDTable, file *FileDescription, impl *testFile) {
		if fd, err := fdTable.NewFDFrom(0, file, FDFlags{}); err != nil || fd != 0 {
			t.Fatalf("Adding an FD to an empty map: got (%d, %v), want (0, nil)", fd, err)
		}
		if fd, err := fdTable.NewFDFrom(3, file, FDFlags{CloseOnExec: true}); err != nil || fd != 3 {
			t.Fatalf("Adding an FD from 3: got (%d, %v), want (3, nil)", fd, err)
		}
		if _, err := fdTable.NewFDFrom(-1, file, FDFlags{}); !linuxerr.Equals(linuxerr.EINVAL, err) {
			t.Fatalf("Adding a negative FD: got %v, want EINVAL", err)
		}

		if err := fdTable.NewFDAt(DefaultMaxFDs+1, file, FDFlags{}); err == nil {
			t.Fatalf("Using an FD that was too large via fdTable.NewFDAt(%v, r, FDFlags{}): got nil, wanted an error", DefaultMaxFDs+1)
		}

		if ref, flags := fdTable.Get(3); ref == nil || !flags.CloseOnExec {
			t.Fatalf("fdTable.Get(3): got (%v, %+v), wanted (%v, CloseOnExec)", ref, flags, file)
		} else {
			ref.DecRef()
		}

		if ref, _ := fdTable.Get(2); ref != nil {
			t.Fatalf("fdTable.Get(2): got a %v, wanted nil", ref)
		}

		if err := fdTable.SetFlags(2, FDFlags{}); !linuxerr.Equals(linuxerr.EBADF, err) {
			t.Fatalf("fdTable.SetFlags(2): got %v, wanted EBADF", err)
		}

		if diff := cmp.Diff([]int32{0, 3}, fdTable.GetFDs()); diff != "" {
			t.Errorf("GetFDs mismatch (-want +got):\n%s", diff)
		}

		ref, ok := fdTable.Remove(0)
		if !ok {
			t.Fatalf("fdTable.Remove(0) for an existing FD: failed, want success")
		}
		ref.DecRef()

		if _, ok := fdTable.Remove(0); ok {
			t.Fatalf("r.Remove(0) for a removed FD: got success, want failure")
		}

		// The table still holds fd 3 and the test holds its own reference.
		if impl.closed != 0 {
			t.Fatalf("file closed %d times while still referenced", impl.closed)
		}
		file.DecRef()
		fdTable.Clear()
		if impl.closed != 1 {
			t.Errorf("file closed %d times after the last reference was dropped, wanted 1", impl.closed)
		}
	})
}

func TestFDTableForkAndCloseOnExec(t *testing.T) {
	runFDTest(t, func(fdTable *FDTable, file *FileDescription, impl *testFile) {
		fdTable.NewFDAt(0, file, FDFlags{})
		fdTable.NewFDAt(1, file, FDFlags{CloseOnExec: true})
		file.DecRef()

		forked := fdTable.Fork()
		forked.RemoveIf(func(_ *FileDescription, flags FDFlags) bool {
			return flags.CloseOnExec
		})
		if diff := cmp.Diff([]int32{0}, forked.GetFDs()); diff != "" {
			t.Errorf("forked table after close-on-exec (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]int32{0, 1}, fdTable.GetFDs()); diff != "" {
			t.Errorf("original table changed (-want +got):\n%s", diff)
		}

		fdTable.Clear()
		if impl.closed != 0 {
			t.Fatalf("shared file closed while the fork still refers to it")
		}
		forked.Clear()
		if impl.closed != 1 {
			t.Errorf("file closed %d times, wanted 1", impl.closed)
		}
	})
}

func TestStdioFDTable(t *testing.T) {
	k := newTestKernel(t, InitKernelArgs{})
	f := k.newStdioFDTable()
	if diff := cmp.Diff([]int32{0, 1, 2}, f.GetFDs()); diff != "" {
		t.Errorf("stdio descriptors (-want +got):\n%s", diff)
	}
	file, _ := f.Get(1)
	defer file.DecRef()
	if got := file.Name(); got != "console" {
		t.Errorf("fd 1 name: got %q, wanted console", got)
	}
	if got := file.ReadRefs(); got != 4 {
		t.Errorf("console refs: got %d, wanted 3 descriptors plus ours", got)
	}
}
