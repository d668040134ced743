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

// Package strace implements the logic to print out the input and the return
// value of each traced syscall.
package strace

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/kernel"
)

// DefaultLogMaximumSize is the default LogMaximumSize.
const DefaultLogMaximumSize = 1024

// LogMaximumSize determines the maximum display size for data buffers and
// string vectors.
var LogMaximumSize uint = DefaultLogMaximumSize

// execve string vector bounds.
const (
	execMaxElems   = 256
	execMaxElemLen = 4096
)

// syscallEvent carries what SyscallEnter formatted to SyscallExit.
type syscallEvent struct {
	info   SyscallInfo
	args   arch.SyscallArguments
	output []string
	start  time.Time
}

func dump(t *kernel.Thread, addr hostarch.Addr, size uint, maximumSize uint) string {
	origSize := size
	if size > maximumSize {
		size = maximumSize
	}
	b := make([]byte, size)
	amt, err := t.CopyIn(addr, b)
	if err != nil {
		return fmt.Sprintf("%#x (error decoding string: %s)", addr, err)
	}

	dot := ""
	if uint(amt) < origSize {
		// ... if we truncated the dump.
		dot = "..."
	}

	return fmt.Sprintf("%#x %q%s", addr, b[:amt], dot)
}

func path(t *kernel.Thread, addr hostarch.Addr) string {
	if addr == 0 {
		return "<null>"
	}
	path, err := t.MemoryManager().CopyInString(addr, linux.PATH_MAX)
	if err != nil {
		return fmt.Sprintf("%#x (error decoding path: %s)", addr, err)
	}
	return fmt.Sprintf("%#x %s", addr, path)
}

func stringVector(t *kernel.Thread, addr hostarch.Addr) string {
	if addr == 0 {
		return "<null>"
	}
	vec, err := t.MemoryManager().CopyInVector(addr, execMaxElems, execMaxElemLen)
	if err != nil {
		return fmt.Sprintf("%#x {error copying vector: %v}", addr, err)
	}
	s := fmt.Sprintf("%#x [", addr)
	for i, v := range vec {
		if i != 0 {
			s += ", "
		}

		// Truncate each string to LogMaximumSize.
		if uint(len(v)) > LogMaximumSize {
			s += fmt.Sprintf("%q...", v[:LogMaximumSize])
		} else {
			s += fmt.Sprintf("%q", v)
		}
	}
	s += "]"
	return s
}

func timespec(t *kernel.Thread, addr hostarch.Addr) string {
	if addr == 0 {
		return "null"
	}
	var b [linux.SizeOfTimespec]byte
	if _, err := t.CopyIn(addr, b[:]); err != nil {
		return fmt.Sprintf("%#x (error decoding timespec: %s)", addr, err)
	}
	var tim linux.Timespec
	tim.UnmarshalBytes(b[:])
	return fmt.Sprintf("%#x {sec=%v nsec=%v}", addr, tim.Sec, tim.Nsec)
}

func timeval(t *kernel.Thread, addr hostarch.Addr) string {
	if addr == 0 {
		return "null"
	}
	var b [linux.SizeOfTimeval]byte
	if _, err := t.CopyIn(addr, b[:]); err != nil {
		return fmt.Sprintf("%#x (error decoding timeval: %s)", addr, err)
	}
	var tim linux.Timeval
	tim.UnmarshalBytes(b[:])
	return fmt.Sprintf("%#x {sec=%v usec=%v}", addr, tim.Sec, tim.Usec)
}

func utsname(t *kernel.Thread, addr hostarch.Addr) string {
	if addr == 0 {
		return "null"
	}
	var b [linux.SizeOfUtsName]byte
	if _, err := t.CopyIn(addr, b[:]); err != nil {
		return fmt.Sprintf("%#x (error decoding utsname: %s)", addr, err)
	}
	var u linux.UtsName
	u.UnmarshalBytes(b[:])
	return fmt.Sprintf("%#x %s", addr, u)
}

func waitStatus(t *kernel.Thread, addr hostarch.Addr) string {
	if addr == 0 {
		return "null"
	}
	var b [4]byte
	if _, err := t.CopyIn(addr, b[:]); err != nil {
		return fmt.Sprintf("%#x (error decoding wait status: %s)", addr, err)
	}
	return fmt.Sprintf("%#x {%v}", addr, linux.WaitStatus(hostarch.ByteOrder.Uint32(b[:])))
}

// pre fills in the pre-execution arguments for a system call. If an argument
// cannot be interpreted before the system call is executed, then a hex value
// will be used. Note that a full output slice will always be provided, that
// is len(return) == len(args).
func (i *SyscallInfo) pre(t *kernel.Thread, args arch.SyscallArguments, maximumBlobSize uint) []string {
	var output []string
	for arg := range args {
		if arg >= len(i.format) {
			break
		}
		switch i.format[arg] {
		case FD:
			output = append(output, strconv.Itoa(int(args[arg].Int())))
		case WriteBuffer:
			output = append(output, dump(t, args[arg].Pointer(), args[arg+1].SizeT(), maximumBlobSize))
		case Path:
			output = append(output, path(t, args[arg].Pointer()))
		case ExecveStringVector:
			output = append(output, stringVector(t, args[arg].Pointer()))
		case Timespec:
			output = append(output, timespec(t, args[arg].Pointer()))
		case ClockID:
			output = append(output, clockIDs.ParseDecimal(args[arg].Uint64()))
		case CloneFlags:
			output = append(output, cloneFlags(args[arg].Uint64()))
		case DupFlags:
			output = append(output, dupFlags.Parse(args[arg].Uint64()))
		case WaitOptions:
			output = append(output, waitOptions.Parse(uint64(args[arg].Uint())))
		case Signal:
			output = append(output, signal(args[arg].Uint64()))
		case SignalMaskAction:
			output = append(output, signalMaskActions.Parse(uint64(args[arg].Int())))
		case SigSet:
			output = append(output, sigSet(t, args[arg].Pointer()))
		case SigAction:
			output = append(output, sigAction(t, args[arg].Pointer()))
		case Oct:
			output = append(output, "0o"+strconv.FormatUint(args[arg].Uint64(), 8))
		case Int:
			output = append(output, strconv.FormatInt(int64(args[arg].Int()), 10))
		case Hex:
			fallthrough
		default:
			output = append(output, "0x"+strconv.FormatUint(args[arg].Uint64(), 16))
		}
	}

	return output
}

// post fills in the post-execution arguments for a system call. This modifies
// the given output slice in place with arguments that may only be interpreted
// after the system call has been executed.
func (i *SyscallInfo) post(t *kernel.Thread, args arch.SyscallArguments, rval uintptr, output []string, maximumBlobSize uint) {
	for arg := range output {
		if arg >= len(i.format) {
			break
		}
		switch i.format[arg] {
		case ReadBuffer:
			output[arg] = dump(t, args[arg].Pointer(), uint(rval), maximumBlobSize)
		case WriteBuffer:
			output[arg] = fmt.Sprintf("%#x", args[arg].Pointer())
		case PostTimespec:
			output[arg] = timespec(t, args[arg].Pointer())
		case PostTimeval:
			output[arg] = timeval(t, args[arg].Pointer())
		case Uname:
			output[arg] = utsname(t, args[arg].Pointer())
		case PostWaitStatus:
			output[arg] = waitStatus(t, args[arg].Pointer())
		case PostSigSet:
			output[arg] = sigSet(t, args[arg].Pointer())
		case PostSigAction:
			output[arg] = sigAction(t, args[arg].Pointer())
		}
	}
}

// printEnter prints the given system call entry.
func (i *SyscallInfo) printEnter(t *kernel.Thread, args arch.SyscallArguments) []string {
	output := i.pre(t, args, LogMaximumSize)

	log.Infof("[%d] E %s(%s)", t.ThreadID(), i.name, strings.Join(output, ", "))
	return output
}

// printExit prints the given system call exit.
func (i *SyscallInfo) printExit(t *kernel.Thread, elapsed time.Duration, output []string, args arch.SyscallArguments, retval uintptr, err error) {
	var rval string
	if err == nil {
		// Fill in the output after successful execution.
		i.post(t, args, retval, output, LogMaximumSize)
		rval = fmt.Sprintf("%d (%#x) (%v)", int64(retval), retval, elapsed)
	} else if e, ok := linuxerr.TranslateError(err); ok {
		rval = fmt.Sprintf("%#x errno=%d (%s) (%v)", retval, e.Errno(), err, elapsed)
	} else {
		rval = fmt.Sprintf("%#x (%s) (%v)", retval, err, elapsed)
	}

	log.Infof("[%d] X %s(%s) = %s", t.ThreadID(), i.name, strings.Join(output, ", "), rval)
}

// info returns the SyscallInfo for sysno. Unknown syscalls are named by
// number and have all arguments formatted as hex.
func (s SyscallMap) info(sysno uintptr) SyscallInfo {
	if info, ok := s[sysno]; ok {
		return info
	}
	return SyscallInfo{
		name:   fmt.Sprintf("sys_%d", sysno),
		format: defaultFormat,
	}
}

// SyscallEnter implements kernel.Stracer.SyscallEnter. It logs the syscall
// entry trace.
func (s SyscallMap) SyscallEnter(t *kernel.Thread, sysno uintptr, args arch.SyscallArguments) any {
	info := s.info(sysno)
	return &syscallEvent{
		info:   info,
		args:   args,
		output: info.printEnter(t, args),
		start:  time.Now(),
	}
}

// SyscallExit implements kernel.Stracer.SyscallExit. It logs the syscall
// exit trace.
func (s SyscallMap) SyscallExit(context any, t *kernel.Thread, sysno, rval uintptr, err error) {
	ev, ok := context.(*syscallEvent)
	if !ok {
		return
	}
	ev.info.printExit(t, time.Since(ev.start), ev.output, ev.args, rval, err)
}

// filter traces only the selected syscalls.
type filter struct {
	SyscallMap
	only map[uintptr]struct{}
}

// SyscallEnter implements kernel.Stracer.SyscallEnter.
func (f filter) SyscallEnter(t *kernel.Thread, sysno uintptr, args arch.SyscallArguments) any {
	if _, ok := f.only[sysno]; !ok {
		return nil
	}
	return f.SyscallMap.SyscallEnter(t, sysno, args)
}

// Enable turns on tracing for table. If names is empty every syscall is
// traced, including ones table does not implement. Otherwise only the named
// syscalls are.
func Enable(table *kernel.SyscallTable, names []string) error {
	m, ok := Lookup(table.Arch)
	if !ok {
		return fmt.Errorf("no strace formats for architecture %q", table.Arch)
	}
	if len(names) == 0 {
		table.Stracer = m
		return nil
	}
	only := make(map[uintptr]struct{}, len(names))
	for _, name := range names {
		sysno, err := table.LookupNo(name)
		if err != nil {
			return fmt.Errorf("invalid syscall %q: %w", name, err)
		}
		only[sysno] = struct{}{}
	}
	table.Stracer = filter{SyscallMap: m, only: only}
	return nil
}

// Disable turns off tracing for table.
func Disable(table *kernel.SyscallTable) {
	table.Stracer = nil
}
