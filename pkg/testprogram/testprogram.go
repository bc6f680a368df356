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

// Package testprogram is the down-call seam the spec reserves for an
// externally-provided test-program generator (spec §6: "the core
// expects the test-program generator to provide ... test()"). The
// generator itself is out of scope; this package only provides the
// registry a generator would hook into from its own init(), plus one
// trivial built-in program used by this repository's own tests.
package testprogram

import (
	"fmt"
	"sync"

	"github.com/loom-systems/syzharness/pkg/faultguard"
	"github.com/loom-systems/syzharness/pkg/pseudosyscall"
)

// Func is the down-call a test body implements: it receives an
// executor wired to the iteration's fault guard and calls
// Execute/Execute... repeatedly, per spec §6's "execute_syscall is
// the only primitive the generator uses to reach the kernel".
type Func func(exec *pseudosyscall.Executor)

var (
	mu       sync.Mutex
	registry = map[string]Func{}
)

func init() {
	Register("probe", func(exec *pseudosyscall.Executor) {
		exec.Execute(pseudosyscall.SYZ_TEST, pseudosyscall.Args{})
	})
}

// Register adds a named test program. Intended to be called from a
// generator package's init().
func Register(name string, fn Func) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

// Lookup returns the named program, if any.
func Lookup(name string) (Func, bool) {
	mu.Lock()
	defer mu.Unlock()
	fn, ok := registry[name]
	return fn, ok
}

// Run looks up name and invokes it with a fresh guard, returning an
// error if the name isn't registered.
func Run(name string) error {
	fn, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("no test program registered under %q", name)
	}
	fn(pseudosyscall.New(faultguard.New()))
	return nil
}
