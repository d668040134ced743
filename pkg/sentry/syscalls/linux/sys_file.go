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
	"io"

	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/kernel"
)

// maxIOSize is the largest single read or write. Longer requests are
// truncated, as Linux does at MAX_RW_COUNT.
const maxIOSize = 1 << 20

// Close implements Linux syscall close(2).
func Close(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	fd := args[0].Int()

	file, ok := t.Process().FDTable().Remove(fd)
	if !ok {
		return 0, nil, linuxerr.EBADF
	}
	file.DecRef()
	return 0, nil, nil
}

// Dup implements Linux syscall dup(2).
func Dup(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	fd := args[0].Int()

	fdt := t.Process().FDTable()
	file, _ := fdt.Get(fd)
	if file == nil {
		return 0, nil, linuxerr.EBADF
	}
	defer file.DecRef()

	newFD, err := fdt.NewFDFrom(0, file, kernel.FDFlags{})
	if err != nil {
		return 0, nil, linuxerr.EMFILE
	}
	return uintptr(newFD), nil, nil
}

// Dup3 implements Linux syscall dup3(2).
func Dup3(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	oldfd := args[0].Int()
	newfd := args[1].Int()
	flags := args[2].Uint()

	if oldfd == newfd {
		return 0, nil, linuxerr.EINVAL
	}
	if flags&^linux.O_CLOEXEC != 0 {
		return 0, nil, linuxerr.EINVAL
	}

	fdt := t.Process().FDTable()
	file, _ := fdt.Get(oldfd)
	if file == nil {
		return 0, nil, linuxerr.EBADF
	}
	defer file.DecRef()

	err := fdt.NewFDAt(newfd, file, kernel.FDFlags{
		CloseOnExec: flags&linux.O_CLOEXEC != 0,
	})
	if err != nil {
		return 0, nil, err
	}
	return uintptr(newfd), nil, nil
}

// Read implements Linux syscall read(2).
func Read(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].SizeT()

	file, _ := t.Process().FDTable().Get(fd)
	if file == nil {
		return 0, nil, linuxerr.EBADF
	}
	defer file.DecRef()

	r, ok := file.Impl().(io.Reader)
	if !ok {
		return 0, nil, linuxerr.EBADF
	}
	if size > maxIOSize {
		size = maxIOSize
	}
	buf := make([]byte, size)
	n, err := r.Read(buf)
	if n > 0 {
		n, err = t.CopyOut(addr, buf[:n])
	}
	return uintptr(n), nil, handleIOError(n != 0, err, linuxerr.EINTR, "read", file)
}

// Write implements Linux syscall write(2).
func Write(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].SizeT()

	file, _ := t.Process().FDTable().Get(fd)
	if file == nil {
		return 0, nil, linuxerr.EBADF
	}
	defer file.DecRef()

	w, ok := file.Impl().(io.Writer)
	if !ok {
		return 0, nil, linuxerr.EBADF
	}
	if size > maxIOSize {
		size = maxIOSize
	}
	buf := make([]byte, size)
	n, cerr := t.CopyIn(addr, buf)
	var err error
	if n > 0 {
		n, err = w.Write(buf[:n])
	}
	if err == nil {
		err = cerr
	}
	return uintptr(n), nil, handleIOError(n != 0, err, linuxerr.EINTR, "write", file)
}
