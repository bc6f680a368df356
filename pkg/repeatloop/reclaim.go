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

package repeatloop

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"

	"github.com/loom-systems/syzharness/pkg/diag"
)

// errNotEmpty signals that rmdir saw ENOTEMPTY and the whole
// directory needs another readdir pass (spec §4.5 remove_dir).
var errNotEmpty = errors.New("directory not empty after reclaim pass")

// reclaim removes dir, the non-trivial piece of RepeatLoop (spec
// §4.5). A test program can leave behind bind mounts, nested mounts,
// and read-only mounts; a single rm -rf pass is not a fixed point, so
// this retries whole-directory passes up to maxReclaimRetries times,
// detach-unmounting busy paths as it goes. Persistent failure exits
// RETRY — this is a transient, not a harness-logic, condition (§7).
func reclaim(dir string) {
	attempt := func() error {
		return reclaimPass(dir)
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), maxReclaimRetries)
	if err := backoff.Retry(attempt, policy); err != nil {
		diag.RetryErrno(err, "reclaiming %s failed after %d retries", dir, maxReclaimRetries)
	}
}

// reclaimPass performs one readdir+unlink+rmdir pass over dir. It
// returns errNotEmpty if rmdir found entries recreated during the
// pass (triggering another backoff.Retry attempt), or nil on success.
// A read-only filesystem is not retried: an EROFS from the rmdir of
// dir ends the pass with nil (dir is left in place), and an EROFS
// from unlinking an individual entry silently gives up on that entry.
// Too many open files on opening dir exits RETRY via diag directly.
func reclaimPass(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		if errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE) {
			diag.RetryErrno(err, "opening %s failed: too many open files", dir)
		}
		return err
	}
	entries, err := f.ReadDir(-1)
	f.Close()
	if err != nil {
		return err
	}

	for _, e := range entries {
		name := e.Name()
		if name == "." || name == ".." {
			continue
		}
		path := filepath.Join(dir, name)
		removeEntry(path)
	}

	if err := rmdirBusy(dir); err != nil {
		if errors.Is(err, unix.ENOTEMPTY) {
			return errNotEmpty
		}
		if errors.Is(err, unix.EROFS) {
			return nil // give up on this entry, per spec
		}
		return err
	}
	return nil
}

// removeEntry recurses into directories and unlinks files, retrying
// busy unlinks with a detach-unmount in between.
func removeEntry(path string) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return
	}
	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		_ = reclaimPass(path)
		_ = rmdirBusy(path)
		return
	}

	for i := 0; i < maxReclaimRetries; i++ {
		err := unix.Unlink(path)
		if err == nil {
			return
		}
		if errors.Is(err, unix.EROFS) {
			return // silently give up on this entry
		}
		if !errors.Is(err, unix.EBUSY) {
			return
		}
		_ = unix.Unmount(path, unix.MNT_DETACH)
	}
}

// rmdirBusy attempts rmdir, detach-unmounting and retrying while the
// target reports EBUSY.
func rmdirBusy(path string) error {
	var err error
	for i := 0; i < maxReclaimRetries; i++ {
		err = unix.Rmdir(path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EBUSY) {
			return err
		}
		_ = unix.Unmount(path, unix.MNT_DETACH)
	}
	return err
}
