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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loom-systems/syzharness/pkg/sandbox"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 5*time.Second, cfg.Timeout())

	kind, err := cfg.Kind()
	require.NoError(t, err)
	require.Equal(t, sandbox.Namespace, kind)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.toml")
	contents := `
sandbox_kind = "setuid"
debug = true
iteration_timeout_ms = 250
test_program = "probe"
`
	require.NoError(t, writeFile(path, contents))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "setuid", cfg.SandboxKind)
	require.True(t, cfg.Debug)
	require.Equal(t, 250*time.Millisecond, cfg.Timeout())
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.Error(t, err)
}

func TestKindRejectsUnknownValue(t *testing.T) {
	cfg := Default()
	cfg.SandboxKind = "chroot-jail"
	_, err := cfg.Kind()
	require.Error(t, err)
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
