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

package sandbox

import (
	"fmt"
	"os"

	"github.com/syndtr/gocapability/capability"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/loom-systems/syzharness/pkg/diag"
)

// runNamespace is the tail of the Namespace profile (spec §4.4). The
// process is already inside new user/pid/uts/net namespaces by the
// time this runs, because Spawn entered them atomically via
// SysProcAttr.Cloneflags.
func runNamespace(realUID, realGID int) {
	// Step 2: best-effort — absent on kernels without setgroups
	// restriction support.
	if err := os.WriteFile("/proc/self/setgroups", []byte("deny"), 0644); err != nil {
		diag.Debug("writing /proc/self/setgroups failed (tolerated): %v", err)
	}

	// Step 3: map exactly one uid/gid pair. Failure here is FAIL: the
	// namespace is useless without it.
	if err := os.WriteFile("/proc/self/uid_map", []byte(fmt.Sprintf("0 %d 1\n", realUID)), 0644); err != nil {
		diag.FailErrno(err, "writing /proc/self/uid_map failed")
	}
	if err := os.WriteFile("/proc/self/gid_map", []byte(fmt.Sprintf("0 %d 1\n", realGID)), 0644); err != nil {
		diag.FailErrno(err, "writing /proc/self/gid_map failed")
	}

	bringUpLoopback()

	// Step 4: scratch tree, tmpfs, recursive-private /dev bind mount.
	const (
		scratch = "./syz-tmp"
		newroot = scratch + "/newroot"
		devdir  = newroot + "/dev"
		pivot   = scratch + "/pivot"
	)
	if err := os.MkdirAll(scratch, 0777); err != nil {
		diag.FailErrno(err, "mkdir %s failed", scratch)
	}
	if err := unix.Mount("syz-tmp", scratch, "tmpfs", 0, ""); err != nil {
		diag.FailErrno(err, "mount tmpfs on %s failed", scratch)
	}
	if err := os.MkdirAll(newroot, 0777); err != nil {
		diag.FailErrno(err, "mkdir %s failed", newroot)
	}
	if err := os.MkdirAll(devdir, 0777); err != nil {
		diag.FailErrno(err, "mkdir %s failed", devdir)
	}
	if err := unix.Mount("/dev", devdir, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		diag.FailErrno(err, "bind mount /dev onto %s failed", devdir)
	}
	if err := unix.Mount("", devdir, "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		diag.Debug("marking %s private failed (tolerated): %v", devdir, err)
	}
	if err := os.MkdirAll(pivot, 0777); err != nil {
		diag.FailErrno(err, "mkdir %s failed", pivot)
	}

	// Step 5: pivot is best-effort (S6): some hosts/container-in-
	// container setups refuse pivot_root entirely.
	if err := unix.PivotRoot(scratch, pivot); err != nil {
		diag.Debug("pivot_root failed, falling back to chdir(%s): %v", scratch, err)
		if err := unix.Chdir(scratch); err != nil {
			diag.FailErrno(err, "chdir(%s) fallback failed", scratch)
		}
	} else {
		if err := unix.Chdir("/"); err != nil {
			diag.FailErrno(err, "chdir(/) after pivot_root failed")
		}
		if err := unix.Unmount("/pivot", unix.MNT_DETACH); err != nil {
			diag.Debug("detaching old root failed (tolerated): %v", err)
		}
	}

	// Step 6.
	if err := unix.Chroot("./newroot"); err != nil {
		diag.FailErrno(err, "chroot(./newroot) failed")
	}
	if err := unix.Chdir("/"); err != nil {
		diag.FailErrno(err, "chdir(/) after chroot failed")
	}

	// Step 7: drop CAP_SYS_PTRACE so a test can no longer ptrace a
	// parent process; it can still ptrace its own descendants, which
	// is all the fuzzer needs (P4).
	dropPtrace()
}

// bringUpLoopback brings the loopback interface up inside the fresh
// network namespace. Spec §4.4 is silent on network usability inside
// the sandbox; without this, any test syscall that opens an AF_INET
// socket and binds/connects to 127.0.0.1 fails uninterestingly before
// it can exercise anything. Best-effort: a namespace without a
// working netlink subsystem (e.g. CONFIG_NET disabled) still sandboxes
// correctly, it just can't reach loopback.
func bringUpLoopback() {
	link, err := netlink.LinkByName("lo")
	if err != nil {
		diag.Debug("loopback link lookup failed (tolerated): %v", err)
		return
	}
	if err := netlink.LinkSetUp(link); err != nil {
		diag.Debug("bringing up loopback failed (tolerated): %v", err)
	}
}

// dropPtrace clears CAP_SYS_PTRACE from the effective, permitted and
// inheritable capability sets (spec §4.4 step 7, P4).
func dropPtrace() {
	caps, err := capability.NewPid2(0)
	if err != nil {
		diag.FailErrno(err, "reading capability set failed")
	}
	if err := caps.Load(); err != nil {
		diag.FailErrno(err, "loading capability set failed")
	}
	const vectors = capability.EFFECTIVE | capability.PERMITTED | capability.INHERITABLE
	caps.Unset(vectors, capability.CAP_SYS_PTRACE)
	if err := caps.Apply(vectors); err != nil {
		diag.FailErrno(err, "writing capability set failed")
	}
}
