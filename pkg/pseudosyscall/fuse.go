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

package pseudosyscall

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// targetPath reads a NUL-terminated path from a raw, attacker-chosen
// address, inside the executor's fault guard (B1-style bound: never
// reads past 1024 bytes regardless of what's actually mapped there).
func (e *Executor) targetPath(ptr Word) (string, bool) {
	if ptr == 0 {
		return "", false
	}
	var buf [1024]byte
	ok := false
	e.guard.Region(func() {
		ok = copyTemplate(&buf, ptr)
	})
	if !ok {
		return "", false
	}
	return cString(buf[:]), true
}

// fuseOptions builds the fuse mount options string exactly per spec
// §4.3/§6: rootmode masks off the low two bits of mode before
// emitting in octal, and those same two low bits separately gate
// default_permissions (bit 0) and allow_other (bit 1). This conflates
// one field with two flags; the layout is preserved verbatim because
// downstream reproducers depend on it bit-for-bit (see design notes,
// open questions).
func fuseOptions(fd int, mode, uid, gid, maxread Word) string {
	var b strings.Builder
	fmt.Fprintf(&b, "fd=%d,user_id=%d,group_id=%d,rootmode=0%o", fd, uid, gid, mode&^3)
	if maxread != 0 {
		fmt.Fprintf(&b, ",max_read=%d", maxread)
	}
	if mode&1 != 0 {
		b.WriteString(",default_permissions")
	}
	if mode&2 != 0 {
		b.WriteString(",allow_other")
	}
	return b.String()
}

// fuseMount implements SYZ_FUSE_MOUNT (spec §4.3). The mount result
// is deliberately ignored: even a half-mounted fuse endpoint may
// produce useful fuzzing state.
func (e *Executor) fuseMount(target, mode, uid, gid, maxread, flags Word) Word {
	path, ok := e.targetPath(target)
	if !ok {
		return ^Word(0)
	}
	fd, err := unix.Open("/dev/fuse", unix.O_RDWR, 0)
	if err != nil {
		return ^Word(0)
	}
	opts := fuseOptions(fd, mode, uid, gid, maxread)
	_ = unix.Mount("", path, "fuse", uintptr(flags), opts)
	return Word(fd)
}

// fuseblkMount implements SYZ_FUSEBLK_MOUNT (spec §4.3): as fuseMount
// but it additionally creates a block-special device node at blkdev
// (major 7, minor 199 — the conventional loop-device-adjacent major
// syzkaller uses for this purpose) before mounting filesystem type
// "fuseblk". If the mknod fails, the fuse fd is returned without
// attempting the mount.
func (e *Executor) fuseblkMount(target, blkdev, mode, uid, gid, maxread, blksize, flags Word) Word {
	targetPath, ok := e.targetPath(target)
	if !ok {
		return ^Word(0)
	}
	fd, err := unix.Open("/dev/fuse", unix.O_RDWR, 0)
	if err != nil {
		return ^Word(0)
	}

	blkdevPath, ok := e.targetPath(blkdev)
	if !ok {
		return Word(fd)
	}
	dev := unix.Mkdev(7, 199)
	if err := unix.Mknod(blkdevPath, unix.S_IFBLK|0600, int(dev)); err != nil {
		return Word(fd)
	}

	opts := fuseOptions(fd, mode, uid, gid, maxread)
	if blksize != 0 {
		opts += fmt.Sprintf(",blksize=%d", blksize)
	}
	_ = unix.Mount("", targetPath, "fuseblk", uintptr(flags), opts)
	return Word(fd)
}
