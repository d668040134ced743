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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"rvos.dev/rvos/pkg/refs"
)

func newTestFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	if err := testFlags.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return testFlags
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newTestFlags(t))
	if err != nil {
		t.Fatal(err)
	}
	// All defaults doesn't require setting flags.
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
	if want := 10 * time.Millisecond; c.TickPeriod != want {
		t.Errorf("TickPeriod=%v, want: %v", c.TickPeriod, want)
	}
}

func TestFromFlags(t *testing.T) {
	testFlags := newTestFlags(t)
	for name, val := range map[string]string{
		"debug":         "true",
		"timeslice":     "0",
		"realtime":      "true",
		"max-threads":   "16",
		"ref-leak-mode": "panic",
	} {
		if err := testFlags.Lookup(name).Value.Set(val); err != nil {
			t.Errorf("Flag set %q: %v", name, err)
		}
	}

	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Debug {
		t.Errorf("Debug=%v, want: true", c.Debug)
	}
	if c.Timeslice != 0 || !c.Realtime {
		t.Errorf("Timeslice=%d Realtime=%v, want: 0 true", c.Timeslice, c.Realtime)
	}
	if want := 16; c.MaxThreads != want {
		t.Errorf("MaxThreads=%v, want: %v", c.MaxThreads, want)
	}
	if want := refs.LeaksPanic; c.ReferenceLeak != want {
		t.Errorf("ReferenceLeak=%v, want: %v", c.ReferenceLeak, want)
	}
}

func TestToFlagsFromFlags(t *testing.T) {
	want := []string{"--debug=true", "--log-format=json", "--tick-period=1ms"}
	c, err := NewFromFlags(newTestFlags(t, want...))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, c.ToFlags()); diff != "" {
		t.Errorf("ToFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestValidationFail(t *testing.T) {
	for _, tc := range []struct {
		name  string
		flags []string
		error string
	}{
		{"log-format", []string{"--log-format=xml"}, "invalid log format"},
		{"no-clock", []string{"--timeslice=0"}, "requires --realtime"},
		{"tick-period", []string{"--tick-period=0s"}, "tick-period must be positive"},
		{"max-threads", []string{"--max-threads=0"}, "max-threads must be positive"},
		{"kernel-stacks", []string{"--kernel-stacks=-1"}, "kernel-stacks must be positive"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewFromFlags(newTestFlags(t, tc.flags...))
			if err == nil || !strings.Contains(err.Error(), tc.error) {
				t.Errorf("NewFromFlags(%v) got error: %v, want: %q", tc.flags, err, tc.error)
			}
		})
	}
}

func TestStraceSyscallList(t *testing.T) {
	c, err := NewFromFlags(newTestFlags(t, "--strace", "--strace-syscalls=write,clone"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"write", "clone"}, c.StraceSyscallList()); diff != "" {
		t.Errorf("StraceSyscallList() mismatch (-want +got):\n%s", diff)
	}
	if want := uint(1024); c.StraceLogSize != want {
		t.Errorf("StraceLogSize=%d, want: %d", c.StraceLogSize, want)
	}
	c.StraceSyscalls = ""
	if got := c.StraceSyscallList(); got != nil {
		t.Errorf("StraceSyscallList() = %v, want nil", got)
	}
}

func TestOverride(t *testing.T) {
	testFlags := newTestFlags(t)
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Override(testFlags, "timeslice", "50"); err != nil {
		t.Fatalf("Override(timeslice): %v", err)
	}
	if c.Timeslice != 50 {
		t.Errorf("Timeslice=%d, want: 50", c.Timeslice)
	}
	if err := c.Override(testFlags, "debug-log", "/tmp/x"); err == nil {
		t.Errorf("Override(debug-log) succeeded, want error")
	}
	if err := c.Override(testFlags, "max-threads", "0"); err == nil {
		t.Errorf("Override(max-threads=0) succeeded, want error")
	}
	if err := c.Override(testFlags, "no-such-flag", "1"); err == nil {
		t.Errorf("Override(no-such-flag) succeeded, want error")
	}
}

func TestApplyOverrides(t *testing.T) {
	testFlags := newTestFlags(t, "--max-threads=8")
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.ApplyOverrides(testFlags, map[string]string{
		"max-threads": "99",
		"timeslice":   "7",
	})
	if err != nil {
		t.Fatal(err)
	}
	// Explicit command line flags win.
	if got.MaxThreads != 8 {
		t.Errorf("MaxThreads=%d, want: 8", got.MaxThreads)
	}
	if got.Timeslice != 7 {
		t.Errorf("Timeslice=%d, want: 7", got.Timeslice)
	}
	// The original is left untouched.
	if c.Timeslice != 10000 {
		t.Errorf("original Timeslice=%d, want: 10000", c.Timeslice)
	}
}

func TestCopy(t *testing.T) {
	c, err := NewFromFlags(newTestFlags(t, "--debug"))
	if err != nil {
		t.Fatal(err)
	}
	cp := c.Copy()
	if diff := cmp.Diff(c, cp); diff != "" {
		t.Errorf("Copy mismatch (-want +got):\n%s", diff)
	}
	cp.Debug = false
	if !c.Debug {
		t.Errorf("modifying the copy changed the original")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		name string
		data string
	}{
		{"conf.toml", "debug = true\ntimeslice = 500\ntick-period = \"2ms\"\nmax-threads = 9\n"},
		{"conf.yaml", "debug: true\ntimeslice: 500\ntick-period: 2ms\nmax-threads: 9\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name)
			if err := os.WriteFile(path, []byte(tc.data), 0644); err != nil {
				t.Fatal(err)
			}
			testFlags := newTestFlags(t, "--max-threads=3")
			if err := LoadFile(testFlags, path); err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			c, err := NewFromFlags(testFlags)
			if err != nil {
				t.Fatal(err)
			}
			// The command line wins over the file.
			want := []string{"--debug=true", "--timeslice=500", "--tick-period=2ms", "--max-threads=3"}
			if diff := cmp.Diff(want, c.ToFlags()); diff != "" {
				t.Errorf("ToFlags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{
		"unknown.toml": "colour = \"blue\"\n",
		"nested.yaml":  "debug:\n  a: 1\n",
		"bad.toml":     "timeslice = \"many\"\n",
		"conf.ini":     "debug=1\n",
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		if err := LoadFile(newTestFlags(t), path); err == nil {
			t.Errorf("LoadFile(%s) succeeded, want error", name)
		}
	}
}
