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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"rvos.dev/rvos/pkg/abi/linux"
	"rvos.dev/rvos/pkg/log"
	"rvos.dev/rvos/pkg/metric"
	"rvos.dev/rvos/pkg/sentry/kernel"
	"rvos.dev/rvos/pkg/sentry/strace"
	sentrylinux "rvos.dev/rvos/pkg/sentry/syscalls/linux"
	"rvos.dev/rvos/rvos/config"
	"rvos.dev/rvos/rvos/workload"
)

// idleTimeout bounds the wait for thread goroutines to unwind after the
// kernel stops.
const idleTimeout = 5 * time.Second

// Run implements subcommands.Command for the "run" command.
type Run struct {
	metrics string
	env     stringFlags
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "boot the kernel and run a workload until its init process exits"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] <workload file> - boot the kernel and run a workload.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.metrics, "metrics", "", "write metrics in Prometheus text format to this file once the workload exits.")
	f.Var(&r.env, "env", "KEY=VALUE added to the init environment. May be repeated.")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	waitStatus := args[1].(*kernel.ExitStatus)

	w, err := workload.Load(f.Arg(0))
	if err != nil {
		Fatalf("loading workload: %v", err)
	}
	conf, err = conf.ApplyOverrides(flag.CommandLine, w.Kernel)
	if err != nil {
		Fatalf("%v", err)
	}
	w.Env = append(w.Env, r.env.GetArray()...)

	es, err := runWorkload(ctx, conf, w, os.Stdout, true /* forwardSignals */)
	if err != nil {
		Fatalf("running workload: %v", err)
	}
	if r.metrics != "" {
		if err := writeMetrics(r.metrics); err != nil {
			Fatalf("writing metrics: %v", err)
		}
	}
	*waitStatus = es
	return subcommands.ExitSuccess
}

// runWorkload boots a kernel configured by conf, runs w's init process until
// it exits, and returns its exit status.
func runWorkload(ctx context.Context, conf *config.Config, w *workload.Workload, console io.Writer, forwardSignals bool) (kernel.ExitStatus, error) {
	// Tracing is enabled on a private copy of the table.
	table := *sentrylinux.RISCV64
	if conf.Strace {
		if err := strace.Enable(&table, conf.StraceSyscallList()); err != nil {
			return kernel.ExitStatus{}, err
		}
		strace.LogMaximumSize = conf.StraceLogSize
	}
	imgs, err := w.Build(&table)
	if err != nil {
		return kernel.ExitStatus{}, err
	}
	k := new(kernel.Kernel)
	if err := k.Init(kernel.InitKernelArgs{
		Timeslice:    conf.Timeslice,
		TickPeriod:   conf.TickPeriod,
		MaxThreads:   conf.MaxThreads,
		KernelStacks: conf.KernelStacks,
		SyscallTable: &table,
		Images:       imgs,
		Console:      console,
		LogRateLimit: conf.LogRateLimit,
	}); err != nil {
		return kernel.ExitStatus{}, fmt.Errorf("initializing kernel: %w", err)
	}
	root, err := k.Boot(w.Init, w.Args, w.Env)
	if err != nil {
		return kernel.ExitStatus{}, err
	}

	// The helpers below stop as soon as the kernel loop returns.
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	var es kernel.ExitStatus
	g.Go(func() error {
		defer stop()
		var err error
		es, err = k.Run(runCtx)
		return err
	})
	if conf.Realtime {
		g.Go(func() error {
			ticker := time.NewTicker(conf.TickPeriod)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return nil
				case <-ticker.C:
					k.RaiseInterrupt()
				}
			}
		})
	}
	if forwardSignals {
		g.Go(func() error {
			return forwardHostSignals(runCtx, k, root.PID())
		})
	}
	runErr := g.Wait()

	idleCtx, cancel := context.WithTimeout(context.Background(), idleTimeout)
	defer cancel()
	if err := k.WaitIdle(idleCtx); err != nil {
		log.Warningf("Thread goroutines did not exit: %v", err)
	}
	log.Infof("Kernel stopped after %d ticks and %d context switches", k.Now(), k.Hart().Switches())
	if runErr != nil {
		return kernel.ExitStatus{}, runErr
	}
	return es, nil
}

// forwardHostSignals delivers SIGINT, SIGTERM and SIGHUP received by rvos to
// the init process.
func forwardHostSignals(ctx context.Context, k *kernel.Kernel, pid kernel.ThreadID) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM, unix.SIGHUP)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-ch:
			sig := linux.Signal(s.(unix.Signal))
			log.Infof("Forwarding host signal %v to process %d", sig, pid)
			if err := k.SendSignal(pid, sig); err != nil {
				log.Warningf("Forwarding %v: %v", sig, err)
			}
		}
	}
}

func writeMetrics(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := metric.WritePrometheusText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
