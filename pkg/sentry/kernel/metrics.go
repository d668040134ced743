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
	"rvos.dev/rvos/pkg/metric"
)

// Trap causes, as reported by the trap counter.
const (
	trapSyscall    = "syscall"
	trapTimer      = "timer"
	trapFault      = "fault"
	trapIllegal    = "illegal"
	trapBreakpoint = "breakpoint"
	trapUnknown    = "unknown"
)

var (
	threadsCreated = metric.MustCreateNewUint64Metric("/kernel/threads_created", false /* sync */, "Number of threads created.")
	threadsExited  = metric.MustCreateNewUint64Metric("/kernel/threads_exited", false /* sync */, "Number of threads that exited.")
	threadsFreed   = metric.MustCreateNewUint64Metric("/kernel/threads_freed", false /* sync */, "Number of thread control blocks freed.")

	processesCreated  = metric.MustCreateNewUint64Metric("/kernel/processes_created", false /* sync */, "Number of processes created.")
	processesExited   = metric.MustCreateNewUint64Metric("/kernel/processes_exited", false /* sync */, "Number of processes whose main thread exited.")
	processesReaped   = metric.MustCreateNewUint64Metric("/kernel/processes_reaped", false /* sync */, "Number of processes reaped by their parent.")
	orphansReparented = metric.MustCreateNewUint64Metric("/kernel/orphans_reparented", false /* sync */, "Number of processes moved to the root process after their parent exited.")

	contextSwitches = metric.MustCreateNewUint64Metric("/kernel/context_switches", false /* sync */, "Number of switches from the idle context into a thread.")
	timerTicks      = metric.MustCreateNewUint64Metric("/kernel/timer_ticks", false /* sync */, "Number of timer interrupts serviced.")
	sleepWakeups    = metric.MustCreateNewUint64Metric("/kernel/sleep_wakeups", false /* sync */, "Number of threads woken by sleep deadline expiry.")

	signalsDelivered = metric.MustCreateNewUint64Metric("/kernel/signals_delivered", false /* sync */, "Number of signals acted on at trap return.",
		metric.NewField("action", []string{"handler", "terminate", "ignore"}))

	traps = metric.MustCreateNewUint64Metric("/kernel/traps", false /* sync */, "Number of user traps by cause.",
		metric.NewField("cause", []string{trapSyscall, trapTimer, trapFault, trapIllegal, trapBreakpoint, trapUnknown}))
)
