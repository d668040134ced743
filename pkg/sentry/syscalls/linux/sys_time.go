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
	"time"

	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/kernel"
)

// copyTimespecIn copies a Timespec from the untrusted app range to the kernel.
func copyTimespecIn(t *kernel.Thread, addr hostarch.Addr) (linux.Timespec, error) {
	var (
		b  [linux.SizeOfTimespec]byte
		ts linux.Timespec
	)
	if _, err := t.CopyIn(addr, b[:]); err != nil {
		return ts, err
	}
	ts.UnmarshalBytes(b[:])
	return ts, nil
}

// copyTimespecOut copies a Timespec to the untrusted app range.
func copyTimespecOut(t *kernel.Thread, addr hostarch.Addr, ts *linux.Timespec) error {
	var b [linux.SizeOfTimespec]byte
	ts.MarshalBytes(b[:])
	_, err := t.CopyOut(addr, b[:])
	return err
}

// ClockGettime implements linux syscall clock_gettime(2).
func ClockGettime(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	clockID := args[0].Int()
	addr := args[1].Pointer()

	var ts linux.Timespec
	switch clockID {
	case linux.CLOCK_REALTIME:
		ts = linux.NsecToTimespec(t.Kernel().RealtimeTime().UnixNano())
	case linux.CLOCK_MONOTONIC:
		ts = linux.NsecToTimespec(int64(t.Kernel().MonotonicTime()))
	default:
		return 0, nil, linuxerr.EINVAL
	}
	return 0, nil, copyTimespecOut(t, addr, &ts)
}

// Gettimeofday implements linux syscall gettimeofday(2).
func Gettimeofday(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	tv := args[0].Pointer()
	tz := args[1].Pointer()

	if tv != 0 {
		nowTv := linux.NsecToTimeval(t.Kernel().RealtimeTime().UnixNano())
		var b [linux.SizeOfTimeval]byte
		nowTv.MarshalBytes(b[:])
		if _, err := t.CopyOut(tv, b[:]); err != nil {
			return 0, nil, err
		}
	}

	if tz != 0 {
		// The kernel runs in UTC; struct timezone is all zeroes.
		var zone [8]byte
		_, err := t.CopyOut(tz, zone[:])
		return 0, nil, err
	}
	return 0, nil, nil
}

// Nanosleep implements linux syscall nanosleep(2).
func Nanosleep(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	addr := args[0].Pointer()
	rem := args[1].Pointer()

	ts, err := copyTimespecIn(t, addr)
	if err != nil {
		return 0, nil, err
	}

	if !ts.Valid() {
		return 0, nil, linuxerr.EINVAL
	}

	dur := ts.ToDuration()
	start := t.Kernel().MonotonicTime()
	err = t.Sleep(dur)
	if linuxerr.Equals(linuxerr.EINTR, err) && rem != 0 {
		left := dur - (t.Kernel().MonotonicTime() - start)
		if left < 0 {
			left = 0
		}
		remTs := linux.NsecToTimespec(int64(left / time.Nanosecond))
		if cerr := copyTimespecOut(t, rem, &remTs); cerr != nil {
			return 0, nil, cerr
		}
	}
	return 0, nil, err
}
