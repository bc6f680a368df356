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

//go:build executor

package diag

// KernelError reports an observed kernel anomaly and exits with
// KERNEL_ERROR. It is only compiled into the executor build; a
// standalone reproducer binary built without the executor tag does
// not expose this symbol at all.
func KernelError(format string, args ...any) {
	fatal(KERNEL_ERROR, 0, format, args...)
}
