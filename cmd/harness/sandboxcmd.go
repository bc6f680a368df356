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
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/loom-systems/syzharness/pkg/diag"
	"github.com/loom-systems/syzharness/pkg/repeatloop"
	"github.com/loom-systems/syzharness/pkg/sandbox"
)

// sandboxCommand is the hidden subcommand a runCommand self re-execs
// into. It is the sandbox process of spec §4.4/§4.5: it applies the
// chosen SandboxProfile and then never returns — it drives RepeatLoop
// until killed.
type sandboxCommand struct {
	kind      string
	uid, gid  int
	test      string
	timeoutMS int
	debug     bool
}

func (*sandboxCommand) Name() string     { return "__sandbox" }
func (*sandboxCommand) Synopsis() string { return "internal: apply a sandbox profile and loop" }
func (*sandboxCommand) Usage() string    { return "__sandbox --kind=... [flags]\n" }

func (c *sandboxCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", "", "sandbox kind: none, setuid, or namespace")
	f.IntVar(&c.uid, "uid", 0, "real uid of the invoking harness process")
	f.IntVar(&c.gid, "gid", 0, "real gid of the invoking harness process")
	f.StringVar(&c.test, "test", "probe", "registered test program to run per iteration")
	f.IntVar(&c.timeoutMS, "timeout-ms", int(repeatloop.DefaultTimeout.Milliseconds()), "per-iteration timeout in milliseconds")
	f.BoolVar(&c.debug, "debug", false, "enable the debug channel")
}

func (c *sandboxCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	diag.SetDebug(c.debug)

	kind, err := sandbox.ParseKind(c.kind)
	if err != nil {
		diag.FailErrno(err, "resolving sandbox kind failed")
	}
	sandbox.RunChild(kind, c.uid, c.gid)

	self, err := os.Executable()
	if err != nil {
		diag.FailErrno(err, "resolving own executable path failed")
	}

	iterArgs := []string{"__iterate", "--test=" + c.test}
	if c.debug {
		iterArgs = append(iterArgs, "--debug")
	}

	opts := repeatloop.Options{
		SelfExe:       self,
		IterationArgs: iterArgs,
		Timeout:       time.Duration(c.timeoutMS) * time.Millisecond,
		Console:       c.debug,
	}
	// RepeatLoop with no MaxIterations runs until this process is
	// killed (spec's "the sandbox process never returns to the
	// parent"), so this call does not return in production use.
	_ = repeatloop.Run(ctx, opts)
	return subcommands.ExitSuccess
}
