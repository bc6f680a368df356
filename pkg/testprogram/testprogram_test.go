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

package testprogram

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loom-systems/syzharness/pkg/pseudosyscall"
)

func TestProbeIsRegisteredByDefault(t *testing.T) {
	fn, ok := Lookup("probe")
	require.True(t, ok)
	require.NotNil(t, fn)
}

func TestRunUnknownNameErrors(t *testing.T) {
	err := Run("does-not-exist")
	require.Error(t, err)
}

func TestRunInvokesRegisteredFunc(t *testing.T) {
	called := false
	Register("local-echo", func(exec *pseudosyscall.Executor) {
		called = true
		exec.Execute(pseudosyscall.SYZ_TEST, pseudosyscall.Args{})
	})
	require.NoError(t, Run("local-echo"))
	require.True(t, called)
}

func TestRegisterOverwritesExistingName(t *testing.T) {
	Register("overwrite-me", func(*pseudosyscall.Executor) {})
	first, _ := Lookup("overwrite-me")

	calledSecond := false
	Register("overwrite-me", func(*pseudosyscall.Executor) { calledSecond = true })
	second, _ := Lookup("overwrite-me")

	require.NoError(t, Run("overwrite-me"))
	require.True(t, calledSecond)
	_ = first
	_ = second
}
