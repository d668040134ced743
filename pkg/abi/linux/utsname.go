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

// UTSLen is the maximum length of strings contained in fields of UtsName.
const UTSLen = 64

// UtsName represents struct utsname, the struct returned by uname(2).
type UtsName struct {
	Sysname    [UTSLen + 1]byte
	Nodename   [UTSLen + 1]byte
	Release    [UTSLen + 1]byte
	Version    [UTSLen + 1]byte
	Machine    [UTSLen + 1]byte
	Domainname [UTSLen + 1]byte
}

// SizeOfUtsName is the size of a UtsName in user memory.
const SizeOfUtsName = 6 * (UTSLen + 1)

// utsNameString converts a UtsName entry to a string without NULs.
func utsNameString(s [UTSLen + 1]byte) string {
	// The NUL bytes will remain even in a cast to string. We must
	// explicitly strip them.
	for i, b := range s {
		if b == 0 {
			return string(s[:i])
		}
	}
	return string(s[:])
}

func (u UtsName) String() string {
	return "{" +
		"Sysname: " + utsNameString(u.Sysname) + ", " +
		"Nodename: " + utsNameString(u.Nodename) + ", " +
		"Release: " + utsNameString(u.Release) + ", " +
		"Version: " + utsNameString(u.Version) + ", " +
		"Machine: " + utsNameString(u.Machine) + ", " +
		"Domainname: " + utsNameString(u.Domainname) +
		"}"
}

// MarshalBytes serializes u into dst.
func (u *UtsName) MarshalBytes(dst []byte) {
	for i, f := range [...]*[UTSLen + 1]byte{&u.Sysname, &u.Nodename, &u.Release, &u.Version, &u.Machine, &u.Domainname} {
		copy(dst[i*(UTSLen+1):], f[:])
	}
}

// UnmarshalBytes deserializes u from src.
func (u *UtsName) UnmarshalBytes(src []byte) {
	for i, f := range [...]*[UTSLen + 1]byte{&u.Sysname, &u.Nodename, &u.Release, &u.Version, &u.Machine, &u.Domainname} {
		copy(f[:], src[i*(UTSLen+1):])
	}
}
