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

// Binary harness is the per-program execution harness described in
// SPEC_FULL.md: a single binary that, invoked with no arguments, runs
// the up-call entry point ("run"), and which re-execs itself into two
// hidden subcommands as it forks its sandbox process and, per
// iteration, its test-invocation child.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&runCommand{}, "")
	subcommands.Register(&sandboxCommand{}, "internal use only")
	subcommands.Register(&iterateCommand{}, "internal use only")

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}
	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
