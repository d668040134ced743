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
	"rvos.dev/rvos/pkg/sentry/arch"
	"rvos.dev/rvos/pkg/sentry/kernel"
)

// MutexCreate implements mutex_create(blocking). A blocking value of 1
// creates a mutex that queues contending threads; any other value creates
// one they spin on, yielding the hart.
func MutexCreate(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	id, err := t.CreateMutex(args[0].Uint64() == 1)
	return uintptr(id), nil, err
}

// MutexLock implements mutex_lock(id).
func MutexLock(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return 0, nil, t.LockMutex(int(args[0].Int()))
}

// MutexUnlock implements mutex_unlock(id).
func MutexUnlock(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return 0, nil, t.UnlockMutex(int(args[0].Int()))
}

// SemaphoreCreate implements semaphore_create(count).
func SemaphoreCreate(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	id, err := t.CreateSemaphore(args[0].Uint64())
	return uintptr(id), nil, err
}

// SemaphoreUp implements semaphore_up(id).
func SemaphoreUp(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return 0, nil, t.SemaphoreUp(int(args[0].Int()))
}

// SemaphoreDown implements semaphore_down(id).
func SemaphoreDown(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return 0, nil, t.SemaphoreDown(int(args[0].Int()))
}

// CondvarCreate implements condvar_create(). Its argument is unused.
func CondvarCreate(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	id, err := t.CreateCondvar()
	return uintptr(id), nil, err
}

// CondvarSignal implements condvar_signal(id).
func CondvarSignal(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return 0, nil, t.CondvarSignal(int(args[0].Int()))
}

// CondvarWait implements condvar_wait(condvar, mutex).
func CondvarWait(t *kernel.Thread, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return 0, nil, t.CondvarWait(int(args[0].Int()), int(args[1].Int()))
}
