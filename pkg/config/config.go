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

// Package config loads the harness's small, ambient configuration:
// which sandbox profile to use, whether the debug channel is on, and
// the per-iteration timeout. Everything the spec itself says about
// these values (§6, §7) is a default here; a TOML file can override
// them for local experimentation, the way runsc layers a config file
// underneath its flags.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/loom-systems/syzharness/pkg/sandbox"
)

// Config is the harness's full ambient configuration.
type Config struct {
	// SandboxKind selects one of "none", "setuid", "namespace".
	SandboxKind string `toml:"sandbox_kind"`
	// Debug enables the diagnostics debug channel.
	Debug bool `toml:"debug"`
	// IterationTimeoutMS bounds each RepeatLoop iteration, in
	// milliseconds. Zero means the spec default (5000ms).
	IterationTimeoutMS int `toml:"iteration_timeout_ms"`
	// TestProgram names a program registered in pkg/testprogram to
	// run inside each iteration child.
	TestProgram string `toml:"test_program"`
}

// Default returns the configuration the spec itself describes: the
// namespace profile, debug off, a 5s timeout, and the built-in probe
// test program.
func Default() Config {
	return Config{
		SandboxKind: string(sandbox.Namespace),
		Debug:       false,
		TestProgram: "probe",
	}
}

// Load reads path as TOML and overlays it on top of Default. An empty
// path is not an error — it just means the defaults apply, matching
// the spec's "the harness is invoked ... with no command-line
// arguments relevant to the core". A non-empty path that cannot be
// read or decoded is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config %q: %w", path, err)
	}
	return cfg, nil
}

// Timeout returns the configured per-iteration timeout, or the spec
// default if unset.
func (c Config) Timeout() time.Duration {
	if c.IterationTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.IterationTimeoutMS) * time.Millisecond
}

// Kind validates and returns the configured sandbox kind.
func (c Config) Kind() (sandbox.Kind, error) {
	return sandbox.ParseKind(c.SandboxKind)
}
