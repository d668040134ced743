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
	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/errors/linuxerr"
	"rvos.dev/rvos/pkg/hostarch"
	"rvos.dev/rvos/pkg/sentry/kernel"
)

// copyInSigSet copies in a sigset_t, checks its size, and ensures that KILL and
// STOP are clear.
func copyInSigSet(t *kernel.Thread, sigSetAddr hostarch.Addr, size uint) (linux.SignalSet, error) {
	if size != linux.SignalSetSize {
		return 0, linuxerr.EINVAL
	}
	var b [linux.SignalSetSize]byte
	if _, err := t.CopyIn(sigSetAddr, b[:]); err != nil {
		return 0, err
	}
	mask := hostarch.ByteOrder.Uint64(b[:])
	return linux.SignalSet(mask) &^ linux.UnblockableSignals, nil
}

// copyOutSigSet copies out a sigset_t.
func copyOutSigSet(t *kernel.Thread, sigSetAddr hostarch.Addr, mask linux.SignalSet) error {
	var b [linux.SignalSetSize]byte
	hostarch.ByteOrder.PutUint64(b[:], uint64(mask))
	_, err := t.CopyOut(sigSetAddr, b[:])
	return err
}
