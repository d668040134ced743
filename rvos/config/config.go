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

// Package config provides basic infrastructure to set configuration settings
// for rvos. Each setting that can be changed from the command line must be
// added to Config, tagged with the flag name, and registered in
// RegisterFlags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohae/deepcopy"
	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/refs"
)

// Config holds configuration that is not part of a workload.
type Config struct {
	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// DebugLog is the path to log debug information to, if not empty. It
	// may contain %TIMESTAMP% and %COMMAND%.
	DebugLog string `flag:"debug-log"`

	// LogFormat is the log format: text, json, json-k8s or logrus.
	LogFormat string `flag:"log-format"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr"`

	// Timeslice is the number of user instructions a thread runs between
	// timer interrupts. Zero disables the instruction timer; only the
	// realtime ticker raises interrupts then.
	Timeslice uint64 `flag:"timeslice"`

	// TickPeriod is the simulated time that passes per timer interrupt.
	TickPeriod time.Duration `flag:"tick-period"`

	// Realtime raises a timer interrupt every TickPeriod of wall time.
	Realtime bool `flag:"realtime"`

	// MaxThreads bounds the number of live thread IDs.
	MaxThreads int `flag:"max-threads"`

	// KernelStacks is the number of kernel stacks.
	KernelStacks int `flag:"kernel-stacks"`

	// ReferenceLeak sets reference leak check mode.
	ReferenceLeak refs.LeakMode `flag:"ref-leak-mode"`

	// LogRateLimit is the minimum interval between repeated warnings about
	// unknown syscalls.
	LogRateLimit time.Duration `flag:"log-rate-limit"`

	// Strace indicates that strace should be enabled.
	Strace bool `flag:"strace"`

	// StraceSyscalls is the set of syscalls to trace (comma-separated
	// values). If Strace is true and this string is empty, then all
	// syscalls will be traced.
	StraceSyscalls string `flag:"strace-syscalls"`

	// StraceLogSize is the max size of data blobs to display.
	StraceLogSize uint `flag:"strace-log-size"`
}

var validLogFormats = map[string]struct{}{
	"text":     {},
	"json":     {},
	"json-k8s": {},
	"logrus":   {},
}

func (c *Config) validate() error {
	if _, ok := validLogFormats[c.LogFormat]; !ok {
		return fmt.Errorf("invalid log format %q, must be 'text', 'json', 'json-k8s' or 'logrus'", c.LogFormat)
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick-period must be positive, got %v", c.TickPeriod)
	}
	if c.Timeslice == 0 && !c.Realtime {
		return fmt.Errorf("timeslice=0 requires --realtime, otherwise time never advances")
	}
	if c.MaxThreads <= 0 {
		return fmt.Errorf("max-threads must be positive, got %d", c.MaxThreads)
	}
	if c.KernelStacks <= 0 {
		return fmt.Errorf("kernel-stacks must be positive, got %d", c.KernelStacks)
	}
	if c.LogRateLimit < 0 {
		return fmt.Errorf("log-rate-limit must not be negative, got %v", c.LogRateLimit)
	}
	return nil
}

// StraceSyscallList returns the syscalls named by StraceSyscalls.
func (c *Config) StraceSyscallList() []string {
	if c.StraceSyscalls == "" {
		return nil
	}
	return strings.Split(c.StraceSyscalls, ",")
}

// Copy returns a deep copy of c.
func (c *Config) Copy() *Config {
	return deepcopy.Copy(c).(*Config)
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	for _, f := range c.ToFlags() {
		log.Infof("\t%s", f)
	}
	log.Infof("\tTimeslice: %d, TickPeriod: %v, Realtime: %t", c.Timeslice, c.TickPeriod, c.Realtime)
}
