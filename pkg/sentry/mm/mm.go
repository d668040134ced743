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

// Package mm implements user address spaces.
//
// A MemoryManager holds a set of non-overlapping page-aligned mappings
// ("vmas") ordered by start address, and lazily allocated page contents.
package mm

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/log"
)

// MaxUserAddress is the highest user address plus one (Sv39).
const MaxUserAddress hostarch.Addr = 1 << 38

// vma is a mapping.
type vma struct {
	hostarch.AddrRange
	perms hostarch.AccessType
	name  string
}

func vmaLess(a, b *vma) bool {
	return a.Start < b.Start
}

// VMA describes a mapping, as returned by MemoryManager.Mappings.
type VMA struct {
	Range hostarch.AddrRange
	Perms hostarch.AccessType
	Name  string
}

// String implements fmt.Stringer.String.
func (v VMA) String() string {
	return fmt.Sprintf("%08x-%08x %s %s", uint64(v.Range.Start), uint64(v.Range.End), v.Perms, v.Name)
}

// MemoryManager is a user address space.
type MemoryManager struct {
	mu sync.Mutex

	// vmas is keyed by start address. Protected by mu.
	vmas *btree.BTreeG[*vma]

	// pages maps page-aligned addresses to their contents. Pages that were
	// never written are absent and read as zeroes. Protected by mu.
	pages map[hostarch.Addr][]byte

	// destroyed is set by Destroy. Protected by mu.
	destroyed bool
}

// NewMemoryManager returns an empty address space.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		vmas:  btree.NewG[*vma](8, vmaLess),
		pages: make(map[hostarch.Addr][]byte),
	}
}

// findLocked returns the vma containing addr, or nil.
//
// Preconditions: mm.mu is locked.
func (mm *MemoryManager) findLocked(addr hostarch.Addr) *vma {
	var found *vma
	mm.vmas.DescendLessOrEqual(&vma{AddrRange: hostarch.AddrRange{Start: addr}}, func(v *vma) bool {
		if v.Contains(addr) {
			found = v
		}
		return false
	})
	return found
}

// overlapsLocked returns true if any vma overlaps ar.
//
// Preconditions: mm.mu is locked.
func (mm *MemoryManager) overlapsLocked(ar hostarch.AddrRange) bool {
	overlaps := false
	mm.vmas.DescendLessOrEqual(&vma{AddrRange: hostarch.AddrRange{Start: ar.End - 1}}, func(v *vma) bool {
		overlaps = v.Overlaps(ar)
		return false
	})
	return overlaps
}

func checkRange(addr hostarch.Addr, length uint64) (hostarch.AddrRange, error) {
	if length == 0 || !addr.IsPageAligned() || length%hostarch.PageSize != 0 {
		return hostarch.AddrRange{}, linuxerr.EINVAL
	}
	end, ok := addr.AddLength(length)
	if !ok || end > MaxUserAddress {
		return hostarch.AddrRange{}, linuxerr.EINVAL
	}
	return hostarch.AddrRange{Start: addr, End: end}, nil
}

// Map creates a mapping of length bytes at addr with the given permissions.
// It fails with EEXIST if the range overlaps an existing mapping.
func (mm *MemoryManager) Map(addr hostarch.Addr, length uint64, perms hostarch.AccessType, name string) error {
	ar, err := checkRange(addr, length)
	if err != nil {
		return err
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.destroyed {
		return linuxerr.EFAULT
	}
	if mm.overlapsLocked(ar) {
		return linuxerr.EEXIST
	}
	mm.vmas.ReplaceOrInsert(&vma{AddrRange: ar, perms: perms, name: name})
	return nil
}

// Unmap removes all mappings in [addr, addr+length), splitting mappings
// that straddle either end.
func (mm *MemoryManager) Unmap(addr hostarch.Addr, length uint64) error {
	ar, err := checkRange(addr, length)
	if err != nil {
		return err
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()

	var hit []*vma
	mm.vmas.Ascend(func(v *vma) bool {
		if v.Start >= ar.End {
			return false
		}
		if v.Overlaps(ar) {
			hit = append(hit, v)
		}
		return true
	})
	for _, v := range hit {
		mm.vmas.Delete(v)
		if v.Start < ar.Start {
			mm.vmas.ReplaceOrInsert(&vma{AddrRange: hostarch.AddrRange{Start: v.Start, End: ar.Start}, perms: v.perms, name: v.name})
		}
		if v.End > ar.End {
			mm.vmas.ReplaceOrInsert(&vma{AddrRange: hostarch.AddrRange{Start: ar.End, End: v.End}, perms: v.perms, name: v.name})
		}
	}
	for page := ar.Start; page < ar.End; page += hostarch.PageSize {
		delete(mm.pages, page)
	}
	return nil
}

// Mappings returns the current mappings in address order.
func (mm *MemoryManager) Mappings() []VMA {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	var out []VMA
	mm.vmas.Ascend(func(v *vma) bool {
		out = append(out, VMA{Range: v.AddrRange, Perms: v.perms, Name: v.name})
		return true
	})
	return out
}

// MappedBytes returns the total size of all mappings.
func (mm *MemoryManager) MappedBytes() uint64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	var n uint64
	mm.vmas.Ascend(func(v *vma) bool {
		n += v.Length()
		return true
	})
	return n
}

// Fork returns a copy of mm. Page contents are copied eagerly.
func (mm *MemoryManager) Fork() (*MemoryManager, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.destroyed {
		return nil, linuxerr.EFAULT
	}
	mm2 := &MemoryManager{
		vmas:  mm.vmas.Clone(),
		pages: make(map[hostarch.Addr][]byte, len(mm.pages)),
	}
	for addr, page := range mm.pages {
		mm2.pages[addr] = append([]byte(nil), page...)
	}
	return mm2, nil
}

// Destroy releases all mappings. Later accesses fault.
func (mm *MemoryManager) Destroy() {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.destroyed {
		return
	}
	mm.destroyed = true
	log.Debugf("Destroying address space with %d vmas and %d pages", mm.vmas.Len(), len(mm.pages))
	mm.vmas.Clear(false)
	mm.pages = nil
}

// Destroyed returns true after Destroy.
func (mm *MemoryManager) Destroyed() bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.destroyed
}
