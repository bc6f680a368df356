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
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"github.com/loom-systems/syzharness/pkg/config"
	"github.com/loom-systems/syzharness/pkg/diag"
	"github.com/loom-systems/syzharness/pkg/sandbox"
)

// runCommand is the up-call entry point (spec §6): setup_main_process,
// pick a SandboxProfile, and self re-exec into it.
type runCommand struct {
	configPath string
}

func (*runCommand) Name() string     { return "run" }
func (*runCommand) Synopsis() string { return "run the harness against a single test program" }
func (*runCommand) Usage() string    { return "run [--config=path]\n" }

func (c *runCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to an optional TOML config file")
}

func (c *runCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		diag.FailErrno(err, "loading config %q failed", c.configPath)
	}
	diag.SetDebug(cfg.Debug)

	setupMainProcess()

	kind, err := cfg.Kind()
	if err != nil {
		diag.FailErrno(err, "resolving sandbox kind failed")
	}

	self, err := os.Executable()
	if err != nil {
		diag.FailErrno(err, "resolving own executable path failed")
	}

	args := []string{
		"__sandbox",
		"--kind=" + string(kind),
		fmt.Sprintf("--uid=%d", os.Getuid()),
		fmt.Sprintf("--gid=%d", os.Getgid()),
		"--test=" + cfg.TestProgram,
		fmt.Sprintf("--timeout-ms=%d", cfg.Timeout().Milliseconds()),
	}
	if cfg.Debug {
		args = append(args, "--debug")
	}

	child, err := sandbox.Spawn(kind, self, args)
	if err != nil {
		diag.FailErrno(err, "spawning sandbox process failed")
	}

	return subcommands.ExitStatus(waitAndRelaySignals(child))
}

// waitAndRelaySignals waits for the sandbox process while forwarding
// SIGINT/SIGTERM to its process group, so an operator hitting Ctrl-C
// on the harness tears down the whole sandboxed tree instead of
// orphaning it. It returns the exit status to propagate.
func waitAndRelaySignals(child *exec.Cmd) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return child.Wait()
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case s := <-sigCh:
			_ = syscall.Kill(-child.Process.Pid, s.(syscall.Signal))
		case <-ctx.Done():
		}
		return nil
	})

	err := g.Wait()
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	diag.FailErrno(err, "waiting for sandbox process failed")
	return int(diag.FAIL)
}
