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
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netns"
)

func TestParseKind(t *testing.T) {
	for _, s := range []string{"none", "setuid", "namespace"} {
		k, err := ParseKind(s)
		require.NoError(t, err)
		require.Equal(t, Kind(s), k)
	}
	_, err := ParseKind("bogus")
	require.Error(t, err)
}

func TestSpawnNoneRunsAndExits(t *testing.T) {
	self, err := exec.LookPath("true")
	if err != nil {
		t.Skip("no 'true' binary on this host")
	}
	cmd, err := Spawn(None, self, nil)
	require.NoError(t, err)
	require.NoError(t, cmd.Wait())
}

// TestNamespaceProfileGetsDistinctNetNS is a P4-adjacent integration
// check: a process cloned with CLONE_NEWNET must observe a different
// network namespace inode than the parent. Requires privilege to
// create user+net namespaces, which CI often lacks.
func TestNamespaceProfileGetsDistinctNetNS(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("requires root (or permissive unprivileged userns) to create namespaces")
	}
	self, err := os.Executable()
	require.NoError(t, err)

	parentNS, err := netns.Get()
	require.NoError(t, err)
	defer parentNS.Close()

	cmd, err := Spawn(Namespace, self, []string{"-test.run=^$"})
	require.NoError(t, err)
	defer cmd.Process.Kill()

	childNS, err := netns.GetFromPid(cmd.Process.Pid)
	if err != nil {
		t.Skipf("could not inspect child netns (tolerated in restricted CI): %v", err)
	}
	defer childNS.Close()
	require.False(t, parentNS.Equal(childNS))
}
