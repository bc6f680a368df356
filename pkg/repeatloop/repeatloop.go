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

// Package repeatloop implements the per-iteration fork / timeout-
// bounded wait / working-directory reclamation state machine (spec
// §4.5). As with pkg/sandbox, "fork" is implemented as a self
// re-exec rather than a raw fork (see SPEC_FULL.md §1.1).
package repeatloop

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/containerd/console"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/loom-systems/syzharness/pkg/diag"
)

var log = logrus.WithField("component", "repeatloop")

// pollInterval is how often the parent polls waitpid for the
// iteration child (spec §4.5 step 3).
const pollInterval = time.Millisecond

// DefaultTimeout is the per-iteration wall-clock bound (spec §4.5).
const DefaultTimeout = 5 * time.Second

// maxReclaimRetries is the magic, undocumented-in-the-original
// bound on remove_dir's whole-directory retry loop. Preserved
// verbatim per the spec's open questions: no rationale is recorded,
// so none is invented here.
const maxReclaimRetries = 100

// Options configures a run of the loop.
type Options struct {
	// SelfExe is the harness's own executable path, used to self
	// re-exec each iteration child.
	SelfExe string
	// IterationArgs is prepended to the per-iteration argv, before
	// the "--iter=N" flag this package appends. It tells the re-
	// exec'd process which hidden subcommand and test program to run
	// (see cmd/harness).
	IterationArgs []string
	// Timeout bounds each iteration; zero means DefaultTimeout.
	Timeout time.Duration
	// MaxIterations bounds the loop for testability; zero means run
	// until ctx is cancelled (spec's "for iter = 0, 1, 2, …").
	MaxIterations int
	// Console, when true, attaches a real pty to the iteration
	// child's stdio instead of the null device, so a developer
	// attached to a terminal can watch a single repro run live. Only
	// meaningful when diag.DebugEnabled().
	Console bool
}

// Run executes the state machine until ctx is cancelled or
// opts.MaxIterations iterations have completed. It returns nil only
// when MaxIterations is reached; a cancelled context returns
// ctx.Err(). Any harness-level failure exits the process directly via
// pkg/diag (spec: RepeatLoop never "returns" an ExitClass, it raises
// one).
func Run(ctx context.Context, opts Options) error {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	for iter := 0; opts.MaxIterations == 0 || iter < opts.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		runIteration(iter, opts, timeout)
	}
	return nil
}

func runIteration(iter int, opts Options, timeout time.Duration) {
	dir := fmt.Sprintf("./%d", iter)
	if err := os.Mkdir(dir, 0777); err != nil {
		diag.FailErrno(err, "mkdir %s failed", dir)
	}

	args := append(append([]string{}, opts.IterationArgs...), "--iter="+strconv.Itoa(iter))
	cmd := exec.Command(opts.SelfExe, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGKILL,
		Setpgid:   true,
	}
	closeStdio := attachStdio(cmd, opts.Console)

	if err := cmd.Start(); err != nil {
		diag.FailErrno(err, "forking iteration %d failed", iter)
	}
	start := time.Now()
	pid := cmd.Process.Pid

	waitIteration(pid, start, timeout)
	closeStdio()
	reclaim(dir)
}

// attachStdio wires the iteration child's stdio. In debug mode it
// allocates a real pty via containerd/console and forwards the
// master's output to the harness's own stdout so an operator watching
// the run sees the test program's output live; otherwise the child is
// wired to /dev/null. The returned func releases whatever fds
// attachStdio opened and must be called once the child has been
// reaped, since runIteration allocates a fresh pair every iteration.
func attachStdio(cmd *exec.Cmd, wantConsole bool) func() {
	if wantConsole && diag.DebugEnabled() {
		master, replicaPath, err := console.NewPty()
		if err == nil {
			replica, rerr := os.OpenFile(replicaPath, os.O_RDWR, 0)
			if rerr == nil {
				cmd.Stdin, cmd.Stdout, cmd.Stderr = replica, replica, replica
				// TIOCSCTTY needs a session leader; setsid also makes
				// the child a process-group leader, so Setpgid is off.
				cmd.SysProcAttr.Setpgid = false
				cmd.SysProcAttr.Setsid = true
				cmd.SysProcAttr.Setctty = true
				go io.Copy(os.Stdout, master)
				return func() {
					replica.Close()
					master.Close()
				}
			}
			master.Close()
		}
	}
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		diag.FailErrno(err, "opening %s failed", os.DevNull)
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = null, null, null
	return func() { null.Close() }
}

// waitIteration polls for the child's exit, killing it if it runs
// past timeout (spec §4.5 step 3). It always reaps the child before
// returning (B2: no leaked zombies).
func waitIteration(pid int, start time.Time, timeout time.Duration) {
	var status unix.WaitStatus
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		got, err := unix.Wait4(pid, &status, unix.WNOHANG|unix.WALL, nil)
		if err != nil {
			log.Debugf("wait4(%d) failed: %v", pid, err)
			return
		}
		if got == pid {
			return
		}
		if time.Since(start) > timeout {
			log.Debugf("iteration pid %d exceeded %s, killing", pid, timeout)
			_ = unix.Kill(-pid, unix.SIGKILL) // process group
			_ = unix.Kill(pid, unix.SIGKILL)  // in case it left its group
			if _, err := unix.Wait4(pid, &status, unix.WALL, nil); err != nil {
				log.Debugf("blocking wait4(%d) after kill failed: %v", pid, err)
			}
			return
		}
	}
}
