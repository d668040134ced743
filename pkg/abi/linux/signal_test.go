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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSignalSetLowest(t *testing.T) {
	for _, tc := range []struct {
		set  SignalSet
		want Signal
	}{
		{0, 0},
		{SignalSetOf(SIGKILL), SIGKILL},
		{MakeSignalSet(SIGTERM, SIGUSR1, SIGCHLD), SIGUSR1},
		{MakeSignalSet(SIGHUP, Signal(64)), SIGHUP},
		{SignalSetOf(Signal(64)), Signal(64)},
	} {
		if got := tc.set.Lowest(); got != tc.want {
			t.Errorf("%#x.Lowest(): got %v, wanted %v", uint64(tc.set), got, tc.want)
		}
	}
}

func TestForEachSignal(t *testing.T) {
	want := []Signal{SIGINT, SIGKILL, SIGCHLD, Signal(40)}
	var got []Signal
	ForEachSignal(MakeSignalSet(want...), func(sig Signal) {
		got = append(got, sig)
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ForEachSignal mismatch (-want +got):\n%s", diff)
	}
}

func TestSignalString(t *testing.T) {
	for sig, want := range map[Signal]string{
		SIGKILL:    "SIGKILL",
		SIGCHLD:    "SIGCHLD",
		Signal(34): "SIGRTMIN+2",
		Signal(99): "signal 99",
	} {
		if got := sig.String(); got != want {
			t.Errorf("Signal(%d).String(): got %q, wanted %q", int(sig), got, want)
		}
	}
}

func TestSigActionBytes(t *testing.T) {
	want := SigAction{
		Handler:  0x10040,
		Flags:    SA_RESTORER | SA_NODEFER,
		Restorer: 0x10080,
		Mask:     MakeSignalSet(SIGUSR2),
	}
	buf := make([]byte, SigActionSize)
	want.MarshalBytes(buf)
	var got SigAction
	got.UnmarshalBytes(buf)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SigAction mismatch (-want +got):\n%s", diff)
	}
	if !got.IsNoDefer() || got.IsResetHandler() || !got.HasRestorer() {
		t.Errorf("flag accessors on %v returned the wrong values", got)
	}
}

func TestWaitStatus(t *testing.T) {
	ws := WaitStatusExit(5)
	if !ws.Exited() || ws.ExitStatus() != 5 || uint32(ws) != 5<<8 {
		t.Errorf("WaitStatusExit(5): got %#x (%v)", uint32(ws), ws)
	}
	// Synthetic fault codes keep only their low byte.
	if ws := WaitStatusExit(-2); ws.ExitStatus() != 0xfe {
		t.Errorf("WaitStatusExit(-2).ExitStatus(): got %#x, wanted 0xfe", ws.ExitStatus())
	}
	ws = WaitStatusTerminationSignal(SIGKILL)
	if ws.Exited() || !ws.Signaled() || ws.TerminationSignal() != SIGKILL {
		t.Errorf("WaitStatusTerminationSignal(SIGKILL): got %#x (%v)", uint32(ws), ws)
	}
}
