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

// Package diag implements the harness's exit discipline: three fatal
// exit classes and an opt-in debug channel, shared by every other
// package in this module.
package diag

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ExitClass is one of the harness's closed set of non-zero exit codes.
type ExitClass int

// The three exit classes the harness itself can produce. Any other
// nonzero exit observed by the supervisor is a signal-delivered
// termination, not one of these.
const (
	// FAIL means the harness detected a logical precondition violation:
	// bad input, or setup that should never fail on a sane host.
	FAIL ExitClass = 67
	// KERNEL_ERROR means the test observed an illegal kernel response.
	// Only ever produced by code built with the executor tag.
	KERNEL_ERROR ExitClass = 68 //nolint:revive,stylecheck // exported exit-class name mirrors the spec's enumeration
	// RETRY means a transient condition; the supervisor should relaunch.
	RETRY ExitClass = 69
)

var log = logrus.New()

func init() {
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
}

// debugFlag gates Debug. It is set once by SetDebug before any
// goroutine other than the main one is running, and is never written
// again; concurrent reads after that point are safe by construction,
// not by synchronization.
var debugFlag bool

// SetDebug enables or disables the debug channel. Call once, at
// startup, before forking into any sandbox or iteration process.
func SetDebug(on bool) {
	debugFlag = on
	if on {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// DebugEnabled reports whether SetDebug(true) was called.
func DebugEnabled() bool {
	return debugFlag
}

// Debug emits a message to standard output when the debug channel is
// enabled; otherwise it is a no-op. Unlike the fatal operations below
// it never terminates the process.
func Debug(format string, args ...any) {
	if !debugFlag {
		return
	}
	log.Debugf(format, args...)
	os.Stdout.Sync()
}

// Fail reports a harness-owned logical error with no underlying errno
// (a precondition violation rather than a failed syscall) and exits
// with FAIL. It never returns. Call sites with a real error in scope
// should use FailErrno instead, per spec §4.1(iii).
func Fail(format string, args ...any) {
	fatal(FAIL, 0, format, args...)
}

// Retry reports a transient condition outside the harness's control
// with no underlying errno and exits with RETRY. It never returns.
// Call sites with a real error in scope should use RetryErrno instead.
func Retry(format string, args ...any) {
	fatal(RETRY, 0, format, args...)
}

// FailErrno is like Fail but appends the numeric value of errno to the
// message, per the spec's "(iii) for fail and retry appends the
// numeric value of the most recent errno captured at entry" contract.
func FailErrno(errno error, format string, args ...any) {
	fatal(FAIL, toErrno(errno), format, args...)
}

// RetryErrno is the RETRY analogue of FailErrno.
func RetryErrno(errno error, format string, args ...any) {
	fatal(RETRY, toErrno(errno), format, args...)
}

func toErrno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}

func fatal(class ExitClass, errno unix.Errno, format string, args ...any) {
	os.Stdout.Sync()
	msg := fmt.Sprintf(format, args...)
	if errno != 0 {
		fmt.Fprintf(os.Stderr, "%s: errno %d (%s)\n", msg, int(errno), errno.Error())
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(int(class))
}
