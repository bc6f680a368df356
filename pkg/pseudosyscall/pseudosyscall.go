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

// Package pseudosyscall implements the trampoline that resolves a
// numeric opcode to either a raw Linux syscall or one of a small set
// of composite "syz_" helper operations. No operation in this package
// raises a diag.ExitClass: every error is returned to the caller as a
// machine word, exactly as a real syscall would.
package pseudosyscall

import (
	"fmt"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/loom-systems/syzharness/pkg/faultguard"
)

var log = logrus.WithField("component", "pseudosyscall")

// Word is a machine word: an argument or a return value of a
// pseudo-syscall, wide enough to carry either a pointer or a syscall
// return value.
type Word = uintptr

// Opcode selects which pseudo-syscall to dispatch. The zero value is
// the same opcode as Raw(0), the raw syscall number 0.
type Opcode struct {
	// kind distinguishes Raw from the fixed helper set.
	kind opKind
	// nr is the kernel syscall number, valid only when kind == kindRaw.
	nr uintptr
}

type opKind int

const (
	kindRaw opKind = iota
	kindTest
	kindOpenDev
	kindOpenPts
	kindFuseMount
	kindFuseblkMount
)

// Raw builds an opcode that forwards to the host's raw syscall entry
// point with syscall number nr.
func Raw(nr uintptr) Opcode { return Opcode{kind: kindRaw, nr: nr} }

// The fixed composite-helper opcodes (spec §4.3).
var (
	SYZ_TEST          = Opcode{kind: kindTest}         //nolint:stylecheck // wire-format name
	SYZ_OPEN_DEV      = Opcode{kind: kindOpenDev}      //nolint:stylecheck
	SYZ_OPEN_PTS      = Opcode{kind: kindOpenPts}      //nolint:stylecheck
	SYZ_FUSE_MOUNT    = Opcode{kind: kindFuseMount}    //nolint:stylecheck
	SYZ_FUSEBLK_MOUNT = Opcode{kind: kindFuseblkMount} //nolint:stylecheck
)

// Args is the fixed nine-word argument vector every pseudo-syscall
// accepts; unused trailing words are ignored by the opcodes that
// don't need them.
type Args [9]Word

// Executor dispatches pseudo-syscalls, wrapping the memory accesses
// that touch attacker-controlled pointers in a fault guard so that a
// bogus pointer from the test program degrades to an error return
// instead of terminating the harness.
type Executor struct {
	guard *faultguard.Guard
}

// New returns an Executor that guards its unsafe memory accesses with
// guard. Passing a nil guard is valid: the Executor then uses a fresh
// guard of its own, so fault recovery is always on.
func New(guard *faultguard.Guard) *Executor {
	if guard == nil {
		guard = faultguard.New()
	}
	return &Executor{guard: guard}
}

// Execute dispatches op with arguments a, returning either a
// successful result or an encoded error, by the host kernel's
// convention for syscalls (negative value) or -1 for helper-internal
// open failures. Execute is total over Opcode: any opcode built with
// Raw falls through to the raw-syscall arm, so there is no "unknown
// opcode" failure mode (P5).
func (e *Executor) Execute(op Opcode, a Args) Word {
	switch op.kind {
	case kindTest:
		return 0
	case kindOpenDev:
		return e.openDev(a[0], a[1], a[2])
	case kindOpenPts:
		return e.openPts(a[0], a[1])
	case kindFuseMount:
		return e.fuseMount(a[0], a[1], a[2], a[3], a[4], a[5])
	case kindFuseblkMount:
		return e.fuseblkMount(a[0], a[1], a[2], a[3], a[4], a[5], a[6], a[7])
	default:
		return e.raw(op.nr, a)
	}
}

func (e *Executor) raw(nr uintptr, a Args) Word {
	r1, _, errno := unix.Syscall6(nr, a[0], a[1], a[2], a[3], a[4], a[5])
	if errno != 0 {
		return negErrno(errno)
	}
	return r1
}

func negErrno(errno unix.Errno) Word {
	return Word(^uintptr(errno) + 1)
}

// devNodePath builds the /dev/char or /dev/block path SYZ_OPEN_DEV
// resolves a0 to, per the real syzkaller convention (common_linux.h):
// 0x0c selects char, 0x0b selects block. Returns ok=false when a0
// isn't one of those two selectors, meaning a0 is instead a raw
// template pointer.
func devNodePath(a0, a1, a2 Word) (path string, ok bool) {
	switch a0 {
	case 0x0c:
		return fmt.Sprintf("/dev/char/%d:%d", a1%256, a2%256), true
	case 0x0b:
		return fmt.Sprintf("/dev/block/%d:%d", a1%256, a2%256), true
	default:
		return "", false
	}
}

// openDev implements SYZ_OPEN_DEV (spec §4.3). a0 is either a small
// integer selecting /dev/char or /dev/block, or a pointer to a
// NUL-terminated template containing '#' placeholders.
func (e *Executor) openDev(a0, a1, a2 Word) Word {
	if path, ok := devNodePath(a0, a1, a2); ok {
		log.Debugf("syz_open_dev: %s", path)
		return e.open(path, unix.O_RDWR, 0)
	}

	var buf [1024]byte
	ok := false
	e.guard.Region(func() {
		ok = copyTemplate(&buf, a0)
	})
	if !ok {
		return ^Word(0) // -1
	}

	n := a1
	for i := range buf {
		if buf[i] == '#' {
			buf[i] = byte('0' + n%10)
			n /= 10
		}
	}
	path := cString(buf[:])
	log.Debugf("syz_open_dev: %s flags=%#x", path, a2)
	return e.open(path, int(int32(a2)), 0)
}

// copyTemplate copies a NUL-terminated string starting at the raw
// address ptr into buf, truncating to len(buf)-1 bytes and always
// terminating. Runs inside a fault guard because ptr is attacker-
// controlled (B1): the caller may hand us any word as a "pointer".
func copyTemplate(buf *[1024]byte, ptr Word) bool {
	if ptr == 0 {
		return false
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), len(buf)-1) //nolint:govet // deliberate raw-pointer read of a guarded region
	i := 0
	for ; i < len(src); i++ {
		b := src[i]
		buf[i] = b
		if b == 0 {
			return true
		}
	}
	buf[i] = 0
	return true
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// openPts implements SYZ_OPEN_PTS (spec §4.3): a0 is a pty master fd,
// a1 is the flags to open the resolved /dev/pts/<n> slave with.
func (e *Executor) openPts(a0, a1 Word) Word {
	n, err := unix.IoctlGetInt(int(a0), unix.TIOCGPTN)
	if err != nil {
		log.Debugf("syz_open_pts: TIOCGPTN failed: %v", err)
		return ^Word(0)
	}
	path := fmt.Sprintf("/dev/pts/%d", n)
	return e.open(path, int(int32(a1)), 0)
}

func (e *Executor) open(path string, flags int, mode uint32) Word {
	fd, err := unix.Open(path, flags, mode)
	if err != nil {
		return ^Word(0)
	}
	return Word(fd)
}
