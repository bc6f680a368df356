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

// Package sandbox implements the harness's three privilege-dropping
// preludes. Exactly one Kind is active per harness run (invariant c).
//
// The C original forks the sandbox process directly. This package
// instead spawns it by self re-exec (see SPEC_FULL.md §1.1): the
// parent starts a fresh copy of its own binary as a hidden
// subcommand, with an os/exec.Cmd.SysProcAttr that encodes everything
// that would otherwise happen between fork() and the payload —
// death signal, new session, and (for the namespace profile) the
// atomic clone into new user/pid/uts/net namespaces. The spawned
// process then runs RunChild, which performs the remainder of the
// prelude — the parts that only make sense executed by the new
// process itself (rlimits, unshares, uid/gid maps, pivot/chroot,
// capability drop) — before handing off to the repeat loop.
package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/loom-systems/syzharness/pkg/diag"
)

var log = logrus.WithField("component", "sandbox")

// Kind is one of the three alternative isolation strategies.
type Kind string

const (
	None      Kind = "none"
	Setuid    Kind = "setuid"
	Namespace Kind = "namespace"
)

// ParseKind validates a configured sandbox kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case None, Setuid, Namespace:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown sandbox kind %q", s)
	}
}

// unprivilegedUID is the conventional "nobody" id the Setuid profile
// switches to.
const unprivilegedUID = 65534

// Spawn starts the sandbox process for kind by self re-exec,
// returning immediately with the child's pid (mirroring "fork;
// parent returns child pid" for every profile). exe is the harness's
// own executable path (os.Executable()); args is the hidden-
// subcommand argv the child should run under (see cmd/harness).
func Spawn(kind Kind, exe string, args []string) (*exec.Cmd, error) {
	cmd := exec.Command(exe, args...)
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		// Step 1 of the common prelude: kill the child if we die.
		Pdeathsig: syscall.SIGKILL,
		// Step 2: new session (and, as a side effect of setsid, a new
		// process group with this process as its leader).
		Setsid: true,
	}
	if kind == Namespace {
		cmd.SysProcAttr.Cloneflags = unix.CLONE_NEWUSER | unix.CLONE_NEWPID | unix.CLONE_NEWUTS | unix.CLONE_NEWNET
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning %s sandbox: %w", kind, err)
	}
	return cmd, nil
}

// CommonPrelude runs the four steps every profile shares, from inside
// the freshly spawned sandbox process (spec §4.4). Steps 1–2
// (pdeathsig, setsid) already happened at spawn time via SysProcAttr;
// this covers the two steps that must run in the new process itself.
func CommonPrelude() {
	setResourceLimits()
	// Step 4: three separate unshares. Gvisor-class hosts have seen
	// EINVAL when these are combined into a single call.
	for _, flag := range []int{unix.CLONE_NEWNS, unix.CLONE_NEWIPC, unix.CLONE_IO} {
		if err := unix.Unshare(flag); err != nil {
			log.Debugf("unshare(%#x) failed (tolerated): %v", flag, err)
		}
	}
}

func setResourceLimits() {
	const (
		mib = 1 << 20
	)
	limits := []struct {
		resource int
		cur, max uint64
	}{
		{unix.RLIMIT_AS, 128 * mib, 128 * mib},
		{unix.RLIMIT_FSIZE, mib, mib},
		{unix.RLIMIT_STACK, mib, mib},
		{unix.RLIMIT_CORE, 0, 0},
	}
	for _, l := range limits {
		rlim := unix.Rlimit{Cur: l.cur, Max: l.max}
		if err := unix.Setrlimit(l.resource, &rlim); err != nil {
			diag.FailErrno(err, "setrlimit(%d, %d) failed", l.resource, l.cur)
		}
	}
}

// RunChild performs the profile-specific tail of the prelude from
// inside the sandbox process, after CommonPrelude. realUID/realGID
// are only meaningful for Namespace (they become the single entry in
// the new user namespace's uid_map/gid_map).
func RunChild(kind Kind, realUID, realGID int) {
	CommonPrelude()
	switch kind {
	case None:
		// Nothing further.
	case Setuid:
		runSetuid()
	case Namespace:
		runNamespace(realUID, realGID)
	default:
		diag.Fail("unknown sandbox kind %q", kind)
	}
}

func runSetuid() {
	if err := unix.Setgroups(nil); err != nil {
		diag.FailErrno(err, "setgroups([]) failed")
	}
	if err := unix.Setresgid(unprivilegedUID, unprivilegedUID, unprivilegedUID); err != nil {
		diag.FailErrno(err, "setresgid(%d) failed", unprivilegedUID)
	}
	if err := unix.Setresuid(unprivilegedUID, unprivilegedUID, unprivilegedUID); err != nil {
		diag.FailErrno(err, "setresuid(%d) failed", unprivilegedUID)
	}
}
