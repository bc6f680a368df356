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
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/loom-systems/syzharness/pkg/diag"
	"github.com/loom-systems/syzharness/pkg/testprogram"
)

// iterateCommand is the hidden subcommand RepeatLoop self re-execs
// into once per iteration (spec §5): chdir into the iteration's
// private directory and run the registered test program to
// completion or to a fault/crash.
type iterateCommand struct {
	test  string
	iter  int
	debug bool
}

func (*iterateCommand) Name() string     { return "__iterate" }
func (*iterateCommand) Synopsis() string { return "internal: run one test program iteration" }
func (*iterateCommand) Usage() string    { return "__iterate --test=... --iter=N\n" }

func (c *iterateCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.test, "test", "probe", "registered test program to run")
	f.IntVar(&c.iter, "iter", 0, "iteration number, names the scratch subdirectory")
	f.BoolVar(&c.debug, "debug", false, "enable the debug channel")
}

func (c *iterateCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	diag.SetDebug(c.debug)

	dir := fmt.Sprintf("./%d", c.iter)
	if err := os.Chdir(dir); err != nil {
		diag.FailErrno(err, "chdir %s failed", dir)
	}

	if err := testprogram.Run(c.test); err != nil {
		diag.FailErrno(err, "running test program %q failed", c.test)
	}
	return subcommands.ExitSuccess
}
