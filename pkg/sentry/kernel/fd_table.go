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
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/refs"
)

// DefaultMaxFDs is the number of file descriptors a table may hold.
const DefaultMaxFDs = 1024

// FileDescription is an open resource. Closing the last descriptor that
// refers to it closes its implementation.
type FileDescription struct {
	refs.Refs[FileDescription]

	name string
	impl io.Closer
}

// NewFileDescription returns a FileDescription with one reference.
func NewFileDescription(name string, impl io.Closer) *FileDescription {
	fd := &FileDescription{name: name, impl: impl}
	fd.InitRefs()
	return fd
}

// Name returns the name the description was opened with.
func (fd *FileDescription) Name() string {
	return fd.name
}

// Impl returns the resource behind the description.
func (fd *FileDescription) Impl() io.Closer {
	return fd.impl
}

// DecRef implements RefCounter.DecRef with the close as destructor.
func (fd *FileDescription) DecRef() {
	fd.Refs.DecRef(func() {
		if fd.impl != nil {
			fd.impl.Close()
		}
	})
}

// consoleFile is the resource behind the standard descriptors.
type consoleFile struct {
	w io.Writer
}

// Write implements io.Writer.Write.
func (c *consoleFile) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

// Close implements io.Closer.Close.
func (*consoleFile) Close() error {
	return nil
}

// FDFlags define flags for an individual descriptor.
type FDFlags struct {
	// CloseOnExec indicates the descriptor should be closed on exec.
	CloseOnExec bool
}

// descriptor holds the details about a file descriptor, namely a pointer to
// the file itself and the descriptor flags.
type descriptor struct {
	file  *FileDescription
	flags FDFlags
}

// FDTable is a process's open-resource table. Each descriptor holds a
// reference on its FileDescription.
type FDTable struct {
	mu    sync.RWMutex
	files map[int32]descriptor
	limit int32
}

// NewFDTable returns an empty table.
func NewFDTable() *FDTable {
	return &FDTable{
		files: make(map[int32]descriptor),
		limit: DefaultMaxFDs,
	}
}

// newStdioFDTable returns a table with descriptors 0, 1 and 2 referring to
// the console.
func (k *Kernel) newStdioFDTable() *FDTable {
	f := NewFDTable()
	console := NewFileDescription("console", &consoleFile{w: k.console})
	for fd := int32(0); fd < 3; fd++ {
		// NewFDAt only fails for out of range descriptors.
		_ = f.NewFDAt(fd, console, FDFlags{})
	}
	console.DecRef()
	return f
}

// Size returns the number of file descriptor slots currently allocated.
func (f *FDTable) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.files)
}

// String is a stringer for FDTable.
func (f *FDTable) String() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var b bytes.Buffer
	for _, fd := range f.fds() {
		fmt.Fprintf(&b, "\tfd:%d => name %s\n", fd, f.files[fd].file.name)
	}
	return b.String()
}

// NewFDFrom allocates a new FD guaranteed to be the lowest number available
// greater than or equal to from. This property is important as Unix programs
// tend to count on this allocation order.
func (f *FDTable) NewFDFrom(fd int32, file *FileDescription, flags FDFlags) (int32, error) {
	if fd < 0 {
		// Don't accept negative FDs.
		return 0, linuxerr.EINVAL
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Finds the lowest fd not in the handles map.
	for i := fd; i < f.limit; i++ {
		if _, ok := f.files[i]; !ok {
			file.IncRef()
			f.files[i] = descriptor{file, flags}
			return i, nil
		}
	}
	return -1, linuxerr.EMFILE
}

// NewFDAt sets the file reference for the given FD. If there is an active
// reference for that FD, the ref count for that existing reference is
// decremented.
func (f *FDTable) NewFDAt(fd int32, file *FileDescription, flags FDFlags) error {
	if fd < 0 {
		// Don't accept negative FDs.
		return linuxerr.EBADF
	}
	if fd >= f.limit {
		return linuxerr.EMFILE
	}

	// The old file is released after the table lock is dropped, but before
	// returning, so a replaced descriptor is closed by the time the caller
	// resumes.
	f.mu.Lock()
	oldDesc, oldExists := f.files[fd]
	file.IncRef()
	f.files[fd] = descriptor{file, flags}
	f.mu.Unlock()

	if oldExists {
		oldDesc.file.DecRef()
	}
	return nil
}

// SetFlags sets the flags for the given file descriptor. It fails with EBADF
// if the descriptor is not open.
func (f *FDTable) SetFlags(fd int32, flags FDFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	desc, ok := f.files[fd]
	if !ok {
		return linuxerr.EBADF
	}
	f.files[fd] = descriptor{desc.file, flags}
	return nil
}

// Get returns a reference to the file and the flags for the FD. It returns
// nil if there is no file for the FD. The caller must use DecRef when they
// are done.
func (f *FDTable) Get(fd int32) (*FileDescription, FDFlags) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if desc, ok := f.files[fd]; ok {
		desc.file.IncRef()
		return desc.file, desc.flags
	}
	return nil, FDFlags{}
}

// fds returns the open descriptors in ascending order.
func (f *FDTable) fds() []int32 {
	fds := make([]int32, 0, len(f.files))
	for fd := range f.files {
		fds = append(fds, fd)
	}
	sort.Slice(fds, func(i, j int) bool { return fds[i] < fds[j] })
	return fds
}

// GetFDs returns a list of valid fds.
func (f *FDTable) GetFDs() []int32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fds()
}

// Fork returns an independent FDTable pointing to the same descriptions.
func (f *FDTable) Fork() *FDTable {
	f.mu.RLock()
	defer f.mu.RUnlock()

	clone := NewFDTable()
	clone.limit = f.limit
	for fd, desc := range f.files {
		desc.file.IncRef()
		clone.files[fd] = desc
	}
	return clone
}

// Remove removes an FD from the table, and returns (File, true) if a File
// was found. Callers are expected to decrement the reference count on the
// File. Otherwise returns (nil, false).
func (f *FDTable) Remove(fd int32) (*FileDescription, bool) {
	f.mu.Lock()
	desc, ok := f.files[fd]
	delete(f.files, fd)
	f.mu.Unlock()
	if !ok {
		return nil, false
	}
	return desc.file, true
}

// RemoveIf removes all FDs where cond is true.
func (f *FDTable) RemoveIf(cond func(*FileDescription, FDFlags) bool) {
	var removed []*FileDescription
	f.mu.Lock()
	for fd, desc := range f.files {
		if cond(desc.file, desc.flags) {
			delete(f.files, fd)
			removed = append(removed, desc.file)
		}
	}
	f.mu.Unlock()

	for _, file := range removed {
		file.DecRef()
	}
}

// Clear closes every descriptor.
func (f *FDTable) Clear() {
	f.RemoveIf(func(*FileDescription, FDFlags) bool {
		return true
	})
}
