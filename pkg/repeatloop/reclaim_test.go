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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReclaimPassRemovesNestedTree(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "iter")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0777))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "file"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top-level"), []byte("x"), 0644))

	require.NoError(t, reclaimPass(dir))
	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestReclaimPassOnEmptyDirSucceeds(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.Mkdir(dir, 0777))
	require.NoError(t, reclaimPass(dir))
}

func TestRemoveEntryRecursesIntoDirectories(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "sub", "deeper")
	require.NoError(t, os.MkdirAll(nested, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "f"), []byte("x"), 0644))

	removeEntry(filepath.Join(root, "sub"))
	_, err := os.Stat(filepath.Join(root, "sub"))
	require.True(t, os.IsNotExist(err))
}

func TestRmdirBusyOnMissingPathReturnsError(t *testing.T) {
	err := rmdirBusy(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}
