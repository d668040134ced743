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
	"bytes"

	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/hostarch"
)

// copyLocked copies between buf and [addr, addr+len(buf)). If out is true
// buf is written to memory. Unless force is set, every page touched must be
// mapped with the access type at. It returns the number of bytes copied
// before the first fault.
//
// Preconditions: mm.mu is locked.
func (mm *MemoryManager) copyLocked(addr hostarch.Addr, buf []byte, out bool, at hostarch.AccessType, force bool) (int, error) {
	if mm.destroyed {
		return 0, linuxerr.EFAULT
	}
	done := 0
	for done < len(buf) {
		cur := addr + hostarch.Addr(done)
		if cur < addr {
			return done, linuxerr.EFAULT
		}
		v := mm.findLocked(cur)
		if v == nil || (!force && !v.perms.SupersetOf(at)) {
			return done, linuxerr.EFAULT
		}
		page := cur.RoundDown()
		off := cur.PageOffset()
		n := int(hostarch.PageSize - off)
		if rem := len(buf) - done; n > rem {
			n = rem
		}
		data, ok := mm.pages[page]
		if out {
			if !ok {
				data = make([]byte, hostarch.PageSize)
				mm.pages[page] = data
			}
			copy(data[off:], buf[done:done+n])
		} else if ok {
			copy(buf[done:done+n], data[off:])
		} else {
			clear(buf[done : done+n])
		}
		done += n
	}
	return done, nil
}

// CopyIn copies len(dst) bytes from addr. It fails with EFAULT if any byte
// is not mapped readable.
func (mm *MemoryManager) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.copyLocked(addr, dst, false, hostarch.Read, false)
}

// CopyOut copies src to addr. It fails with EFAULT if any byte is not mapped
// writable.
func (mm *MemoryManager) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.copyLocked(addr, src, true, hostarch.Write, false)
}

// Populate writes src to addr ignoring mapping permissions, as the loader
// does for read-only segments. The range must be mapped.
func (mm *MemoryManager) Populate(addr hostarch.Addr, src []byte) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	_, err := mm.copyLocked(addr, src, true, hostarch.NoAccess, true)
	return err
}

// CopyInString copies a NUL-terminated string of at most maxlen bytes from
// addr. It fails with ENAMETOOLONG if no NUL is found within maxlen bytes.
func (mm *MemoryManager) CopyInString(addr hostarch.Addr, maxlen int) (string, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	var buf []byte
	chunk := make([]byte, 64)
	for len(buf) < maxlen {
		// Don't read across a page boundary in one step so that a string
		// ending just before an unmapped page is still readable.
		cur := addr + hostarch.Addr(len(buf))
		n := int(hostarch.PageSize - cur.PageOffset())
		if n > len(chunk) {
			n = len(chunk)
		}
		if rem := maxlen - len(buf); n > rem {
			n = rem
		}
		if _, err := mm.copyLocked(cur, chunk[:n], false, hostarch.Read, false); err != nil {
			return "", err
		}
		if i := bytes.IndexByte(chunk[:n], 0); i >= 0 {
			return string(append(buf, chunk[:i]...)), nil
		}
		buf = append(buf, chunk[:n]...)
	}
	return "", linuxerr.ENAMETOOLONG
}

// CopyInVector copies a NULL-terminated array of string pointers, as passed
// to execve, from addr. At most maxElems strings of at most maxlen bytes
// each are read.
func (mm *MemoryManager) CopyInVector(addr hostarch.Addr, maxElems, maxlen int) ([]string, error) {
	var v []string
	for i := 0; ; i++ {
		if i >= maxElems {
			return nil, linuxerr.E2BIG
		}
		var b [8]byte
		if _, err := mm.CopyIn(addr+hostarch.Addr(8*i), b[:]); err != nil {
			return nil, err
		}
		ptr := hostarch.ByteOrder.Uint64(b[:])
		if ptr == 0 {
			return v, nil
		}
		s, err := mm.CopyInString(hostarch.Addr(ptr), maxlen)
		if err != nil {
			return nil, err
		}
		v = append(v, s)
	}
}
