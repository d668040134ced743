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

package mm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/hostarch"
)

const page = hostarch.PageSize

func TestMapOverlap(t *testing.T) {
	mm := NewMemoryManager()
	if err := mm.Map(0x10000, 2*page, hostarch.ReadWrite, "a"); err != nil {
		t.Fatalf("Map: %v", err)
	}
	for _, tc := range []struct {
		addr   hostarch.Addr
		length uint64
		want   error
	}{
		{0x10000, page, linuxerr.EEXIST},
		{0x11000, 2 * page, linuxerr.EEXIST},
		{0xf000, 2 * page, linuxerr.EEXIST},
		{0x10001, page, linuxerr.EINVAL},
		{0x20000, 0, linuxerr.EINVAL},
		{0x12000, page, nil},
		{0xf000, page, nil},
	} {
		if err := mm.Map(tc.addr, tc.length, hostarch.Read, "b"); err != tc.want {
			t.Errorf("Map(%v, %#x): got %v, wanted %v", tc.addr, tc.length, err, tc.want)
		}
	}
	if got, want := mm.MappedBytes(), uint64(4*page); got != want {
		t.Errorf("MappedBytes: got %#x, wanted %#x", got, want)
	}
}

func TestCopyPermissions(t *testing.T) {
	mm := NewMemoryManager()
	if err := mm.Map(0x10000, page, hostarch.ReadExec, "text"); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if err := mm.Map(0x11000, page, hostarch.ReadWrite, "data"); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if _, err := mm.CopyOut(0x10000, []byte{1}); err != linuxerr.EFAULT {
		t.Errorf("CopyOut to read-only mapping: got %v, wanted EFAULT", err)
	}
	if err := mm.Populate(0x10ffe, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Populate across pages: %v", err)
	}
	got := make([]byte, 4)
	if _, err := mm.CopyIn(0x10ffe, got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4}, got); diff != "" {
		t.Errorf("CopyIn mismatch (-want +got):\n%s", diff)
	}
	n, err := mm.CopyIn(0x11ffe, make([]byte, 4))
	if err != linuxerr.EFAULT || n != 2 {
		t.Errorf("CopyIn past the last mapping: got (%d, %v), wanted (2, EFAULT)", n, err)
	}
}

func TestUnmapSplits(t *testing.T) {
	mm := NewMemoryManager()
	if err := mm.Map(0x10000, 4*page, hostarch.ReadWrite, "heap"); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if _, err := mm.CopyOut(0x11000, []byte("gone")); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if err := mm.Unmap(0x11000, 2*page); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	want := []VMA{
		{Range: hostarch.AddrRange{Start: 0x10000, End: 0x11000}, Perms: hostarch.ReadWrite, Name: "heap"},
		{Range: hostarch.AddrRange{Start: 0x13000, End: 0x14000}, Perms: hostarch.ReadWrite, Name: "heap"},
	}
	if diff := cmp.Diff(want, mm.Mappings()); diff != "" {
		t.Errorf("Mappings mismatch (-want +got):\n%s", diff)
	}
	// Remapping the hole yields zeroed memory.
	if err := mm.Map(0x11000, page, hostarch.ReadWrite, "new"); err != nil {
		t.Fatalf("Map: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := mm.CopyIn(0x11000, buf); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if diff := cmp.Diff(make([]byte, 4), buf); diff != "" {
		t.Errorf("remapped page not zeroed (-want +got):\n%s", diff)
	}
}

func TestForkCopies(t *testing.T) {
	mm := NewMemoryManager()
	if err := mm.Map(0x10000, page, hostarch.ReadWrite, "data"); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if _, err := mm.CopyOut(0x10000, []byte("parent")); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	child, err := mm.Fork()
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if _, err := child.CopyOut(0x10000, []byte("child!")); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if err := child.Unmap(0x10000, page); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	buf := make([]byte, 6)
	if _, err := mm.CopyIn(0x10000, buf); err != nil {
		t.Fatalf("parent CopyIn after child unmap: %v", err)
	}
	if string(buf) != "parent" {
		t.Errorf("parent memory: got %q, wanted %q", buf, "parent")
	}
}

func TestCopyInString(t *testing.T) {
	mm := NewMemoryManager()
	if err := mm.Map(0x10000, page, hostarch.ReadWrite, "data"); err != nil {
		t.Fatalf("Map: %v", err)
	}
	// The string ends on the last byte of the only mapped page.
	addr := hostarch.Addr(0x10000 + page - 6)
	if _, err := mm.CopyOut(addr, []byte("hello\x00")); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if s, err := mm.CopyInString(addr, 100); err != nil || s != "hello" {
		t.Errorf("CopyInString: got (%q, %v), wanted hello", s, err)
	}
	if _, err := mm.CopyInString(addr, 3); err != linuxerr.ENAMETOOLONG {
		t.Errorf("CopyInString with short limit: got %v, wanted ENAMETOOLONG", err)
	}
}

func TestCopyInVector(t *testing.T) {
	mm := NewMemoryManager()
	if err := mm.Map(0x10000, page, hostarch.ReadWrite, "data"); err != nil {
		t.Fatalf("Map: %v", err)
	}
	ptrs := make([]byte, 24)
	hostarch.ByteOrder.PutUint64(ptrs[0:], 0x10100)
	hostarch.ByteOrder.PutUint64(ptrs[8:], 0x10200)
	mm.CopyOut(0x10000, ptrs)
	mm.CopyOut(0x10100, []byte("a\x00"))
	mm.CopyOut(0x10200, []byte("bc\x00"))
	got, err := mm.CopyInVector(0x10000, 16, 16)
	if err != nil {
		t.Fatalf("CopyInVector: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "bc"}, got); diff != "" {
		t.Errorf("CopyInVector mismatch (-want +got):\n%s", diff)
	}
	if _, err := mm.CopyInVector(0x10000, 1, 16); err != linuxerr.E2BIG {
		t.Errorf("CopyInVector over the limit: got %v, wanted E2BIG", err)
	}
}

func TestDestroy(t *testing.T) {
	mm := NewMemoryManager()
	if err := mm.Map(0x10000, page, hostarch.ReadWrite, "data"); err != nil {
		t.Fatalf("Map: %v", err)
	}
	mm.Destroy()
	mm.Destroy()
	if !mm.Destroyed() || mm.MappedBytes() != 0 {
		t.Errorf("after Destroy: destroyed %t mapped %d", mm.Destroyed(), mm.MappedBytes())
	}
	if _, err := mm.CopyIn(0x10000, make([]byte, 1)); err != linuxerr.EFAULT {
		t.Errorf("CopyIn after Destroy: got %v, wanted EFAULT", err)
	}
	if _, err := mm.Fork(); err != linuxerr.EFAULT {
		t.Errorf("Fork after Destroy: got %v, wanted EFAULT", err)
	}
}
