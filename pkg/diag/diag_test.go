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

package diag

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// Fail and Retry call os.Exit, so they're exercised via a re-exec'd
// subprocess rather than in-process, following the standard
// TestHelperProcess pattern from os/exec's own tests.
func TestFailExitsWithFailClass(t *testing.T) {
	out, err := runHelper(t, "fail")
	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok, "expected an ExitError, got %v (output %q)", err, out)
	require.Equal(t, int(FAIL), exitErr.ExitCode())
	require.Contains(t, string(out), "boom")
}

func TestRetryExitsWithRetryClass(t *testing.T) {
	out, err := runHelper(t, "retry")
	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok, "expected an ExitError, got %v (output %q)", err, out)
	require.Equal(t, int(RETRY), exitErr.ExitCode())
	require.Contains(t, string(out), "errno")
}

func runHelper(t *testing.T, mode string) ([]byte, error) {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", mode)
	cmd.Env = append(os.Environ(), "DIAG_WANT_HELPER_PROCESS=1")
	return cmd.CombinedOutput()
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("DIAG_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		return
	}
	switch args[1] {
	case "fail":
		Fail("boom")
	case "retry":
		RetryErrno(unix.EINTR, "interrupted")
	}
}
