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

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/loom-systems/syzharness/pkg/diag"
)

// glibc-internal thread-cancellation signals. Reset to ignore at
// startup so a stray cancellation delivered to the main thread can't
// tear it down (spec §6, "Signals handled").
const (
	sigCancel = syscall.Signal(0x20)
	sigSetXID = syscall.Signal(0x21)
)

// setupMainProcess is the harness's one-shot up-call prelude (spec
// §2): install the signal policy, create a private scratch directory,
// and chdir into it. It returns the scratch directory's path.
func setupMainProcess() string {
	signal.Ignore(sigCancel, sigSetXID)

	dir, err := os.MkdirTemp(".", "syzkaller.")
	if err != nil {
		diag.FailErrno(err, "creating scratch directory failed")
	}
	if err := os.Chmod(dir, 0777); err != nil {
		diag.FailErrno(err, "chmod %s failed", dir)
	}
	if err := os.Chdir(dir); err != nil {
		diag.FailErrno(err, "chdir %s failed", dir)
	}
	return dir
}
