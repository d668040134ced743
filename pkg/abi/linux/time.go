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
	"encoding/binary"
	"time"
)

// Timespec represents struct timespec in <time.h>.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// SizeOfTimespec is the size of a Timespec in user memory.
const SizeOfTimespec = 16

// Valid returns whether the timespec contains valid values.
func (ts Timespec) Valid() bool {
	return !(ts.Sec < 0 || ts.Nsec < 0 || ts.Nsec >= int64(time.Second))
}

// ToNsec returns the nanosecond representation.
func (ts Timespec) ToNsec() int64 {
	return int64(ts.Sec)*int64(time.Second) + int64(ts.Nsec)
}

// ToDuration returns the safe nanosecond representation as time.Duration.
func (ts Timespec) ToDuration() time.Duration {
	return time.Duration(ts.ToNsec())
}

// NsecToTimespec translates nanoseconds to Timespec.
func NsecToTimespec(nsec int64) (ts Timespec) {
	ts.Sec = nsec / int64(time.Second)
	ts.Nsec = nsec % int64(time.Second)
	return
}

// MarshalBytes serializes ts into dst.
func (ts *Timespec) MarshalBytes(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:], uint64(ts.Sec))
	binary.LittleEndian.PutUint64(dst[8:], uint64(ts.Nsec))
}

// UnmarshalBytes deserializes ts from src.
func (ts *Timespec) UnmarshalBytes(src []byte) {
	ts.Sec = int64(binary.LittleEndian.Uint64(src[0:]))
	ts.Nsec = int64(binary.LittleEndian.Uint64(src[8:]))
}

// Timeval represents struct timeval in <time.h>.
type Timeval struct {
	Sec  int64
	Usec int64
}

// SizeOfTimeval is the size of a Timeval in user memory.
const SizeOfTimeval = 16

// NsecToTimeval translates nanosecond to Timeval.
func NsecToTimeval(nsec int64) (tv Timeval) {
	nsec += 999 // round up to microsecond
	tv.Sec = nsec / int64(time.Second)
	tv.Usec = nsec % int64(time.Second) / int64(time.Microsecond)
	return
}

// MarshalBytes serializes tv into dst.
func (tv *Timeval) MarshalBytes(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:], uint64(tv.Sec))
	binary.LittleEndian.PutUint64(dst[8:], uint64(tv.Usec))
}

// UnmarshalBytes deserializes tv from src.
func (tv *Timeval) UnmarshalBytes(src []byte) {
	tv.Sec = int64(binary.LittleEndian.Uint64(src[0:]))
	tv.Usec = int64(binary.LittleEndian.Uint64(src[8:]))
}
