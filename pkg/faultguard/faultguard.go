// Copyright 2018 The gVisor Authors.
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

// Package faultguard converts synchronous memory faults raised while
// executing a bounded region into a non-local return from that
// region, instead of process termination.
//
// The C original installs a sigaction for SIGSEGV/SIGBUS and uses
// setjmp/longjmp to rewind the stack. The Go runtime already ships
// the equivalent primitive for exactly this class of fault:
// runtime/debug.SetPanicOnFault converts a synchronous invalid-memory
// access into a recoverable panic instead of a fatal crash. Guard
// pins the calling goroutine to its OS thread for the duration of the
// region, since SetPanicOnFault is per-M, mirroring the spec's
// per-thread counter model.
package faultguard

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"
)

// Guard is a thread-local fault-recovery scope. The zero value is
// ready to use. A Guard must not be shared between goroutines that
// run concurrently on different OS threads; each guarded goroutine
// should own its own Guard, matching the spec's "per-thread" state.
type Guard struct {
	counter atomic.Int64
}

// New returns a ready-to-use Guard.
func New() *Guard {
	return &Guard{}
}

// Depth returns the current nesting depth of guarded regions on this
// Guard. It is zero outside of any Region call. Exposed for tests
// that verify re-entrancy (P2).
func (g *Guard) Depth() int64 {
	return g.counter.Load()
}

// Region runs fn. If fn triggers a synchronous memory fault —
// dereferencing an invalid or attacker-chosen pointer — Region
// recovers from it and returns false instead of letting the fault
// terminate the process. If fn completes normally, Region returns
// true. Nested calls to Region are allowed: the innermost call
// recovers its own fault without disturbing outer regions, and the
// counter observed before entry equals the counter observed after
// exit for any well-nested sequence (P2).
//
// Any panic that is not runtime.Error-shaped (i.e. not a fault or a
// nil-pointer-style runtime panic) is not ours to swallow and is
// re-raised, since this primitive exists to contain memory faults,
// not general application panics.
func (g *Guard) Region(fn func()) (completed bool) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	g.counter.Add(1)
	prevArmed := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(prevArmed)
		g.counter.Add(-1)
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); !ok {
				panic(r)
			}
			completed = false
		}
	}()

	fn()
	completed = true
	return
}
