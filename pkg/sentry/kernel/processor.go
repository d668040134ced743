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
	"context"
	"errors"
	"sync"

	"rvos.dev/rvos/pkg/sentry/platform"
)

// ErrAllThreadsBlocked is returned by Kernel.Run when no thread is runnable
// and no sleeping thread remains to be woken.
var ErrAllThreadsBlocked = errors.New("all threads are blocked and no timer is pending")

// Processor is the hart's scheduling slot. It holds the thread currently
// running on the hart and the idle context that threads switch back to.
type Processor struct {
	k *Kernel

	mu sync.Mutex

	// current is the running thread, or nil while idle. The slot holds a
	// reference on it.
	current *Thread

	// idle is the kernel context of the goroutine running Loop.
	idle platform.KernelContext
}

// Current returns the thread holding the hart, or nil.
func (p *Processor) Current() *Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Run makes t current and switches to it. It returns once t has switched
// back to the idle context. The caller's reference on t, as returned by
// ReadyQueue.PickNext, passes to the slot and is dropped after the switch.
//
// Preconditions: the calling goroutine is running Loop.
func (p *Processor) Run(t *Thread) {
	p.mu.Lock()
	if cur := p.current; cur != nil {
		p.mu.Unlock()
		invariantViolation("running %v while %v holds the processor", t, cur)
	}
	p.current = t
	p.mu.Unlock()

	t.setState(ThreadRunning)
	contextSwitches.Increment()
	p.k.hart.Switch(&p.idle, &t.kctx)
	p.reclaim()
}

// reclaim empties the slot after a switch back to idle. An exited thread
// cannot release its own kernel stack while running on it, so that is done
// here.
func (p *Processor) reclaim() {
	p.mu.Lock()
	t := p.current
	p.current = nil
	p.mu.Unlock()

	if t.State() == ThreadExited {
		t.releaseKernelStack()
	}
	t.DecRef()
}

// switchToIdle suspends t, the current thread, until it is run again.
func (p *Processor) switchToIdle(t *Thread) {
	p.k.hart.Switch(&t.kctx, &p.idle)
}

// exitSwitch switches away from t for the last time. It does not return.
func (p *Processor) exitSwitch(t *Thread) {
	p.k.hart.SwitchExit(&t.kctx, &p.idle)
}

// Loop is the idle loop. It runs threads from the ready queue and services
// timer interrupts while the queue is empty. It returns the root process's
// exit status once the root process has exited. It returns an error if ctx
// is cancelled or no thread can make progress.
func (p *Processor) Loop(ctx context.Context) (ExitStatus, error) {
	k := p.k
	p.idle.Init(0, 0, nil)

	// Cancellation preempts the running thread.
	stop := context.AfterFunc(ctx, k.hart.Raise)
	defer stop()

	for {
		if es, ok := k.rootExitStatus(); ok {
			return es, nil
		}
		if err := ctx.Err(); err != nil {
			return ExitStatus{}, err
		}
		if t := k.rq.PickNext(); t != nil {
			p.Run(t)
			continue
		}
		if k.sleepers.Len() == 0 {
			return ExitStatus{}, ErrAllThreadsBlocked
		}
		if err := k.hart.WaitForInterrupt(ctx); err != nil {
			return ExitStatus{}, err
		}
		k.serviceTimer()
	}
}
