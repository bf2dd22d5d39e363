/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command fetchop-stress checks that atomic fetch-and-op operations stay
// atomic under multi-threaded contention.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/srediag/fetchop/pkg/stress"
)

// exitCode maps the error of a command to the process status: 0 when every
// scenario passed, 2 when an atomicity check failed, 1 otherwise.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, stress.ErrMismatch), errors.Is(err, stress.ErrProbe):
		return 2
	default:
		return 1
	}
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fetchop-stress:", err)
	}
	os.Exit(exitCode(err))
}
