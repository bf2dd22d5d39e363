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

package stress_test

import (
	"context"
	"fmt"

	"github.com/srediag/fetchop/internal/logging"
	"github.com/srediag/fetchop/pkg/stress"
)

func ExampleRunner_Execute() {
	config := stress.DefaultConfig()
	config.Workers = 4
	config.Rounds = 2
	config.Iterations = 100
	config.Scenarios = []string{stress.ScenarioAdd, stress.ScenarioNand}
	logging.SetLevel(logging.LevelNoPrint)

	ctx := context.Background()
	r, err := stress.NewRunner(ctx, config)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer r.Close(ctx)

	if err := r.Execute(ctx); err != nil {
		fmt.Println(err)
		return
	}
	for _, res := range r.Results() {
		fmt.Println(res.Scenario, res.Passed, res.Actual)
	}
	// Output:
	// fetch_and_add true 401
	// fetch_and_nand true 0
}
