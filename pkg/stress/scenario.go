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

package stress

import (
	"fmt"

	"github.com/srediag/fetchop/pkg/fetchop"
)

const (
	ScenarioAdd  = "fetch_and_add"
	ScenarioSub  = "fetch_and_sub"
	ScenarioOr   = "fetch_and_or"
	ScenarioAnd  = "fetch_and_and"
	ScenarioXor  = "fetch_and_xor"
	ScenarioNand = "fetch_and_nand"
)

var scenarioNames = []string{ScenarioAdd, ScenarioSub, ScenarioOr, ScenarioAnd, ScenarioXor, ScenarioNand}

// ScenarioNames returns the names of the default scenarios in run order.
func ScenarioNames() []string {
	return append([]string(nil), scenarioNames...)
}

// Probe is a single-threaded check run before contention: starting from
// Start, applying the operation with Operand must return Start and leave
// fetchop.Apply(op, Start, Operand) behind.
type Probe[T fetchop.Word] struct {
	Start   T
	Operand T
}

// Scenario is one contention block: Workers threads each apply Op with
// Operand(worker) Iterations times to a cell reset to Initial, repeated
// Rounds times.
type Scenario[T fetchop.Word] struct {
	Name       string
	Op         fetchop.Op
	Workers    int
	Iterations int
	Rounds     int
	Initial    T
	Operand    func(worker int) T
	Probe      Probe[T]
}

// Validate reports whether the scenario is runnable and its final value is
// independent of the interleaving.
func (s Scenario[T]) Validate() error {
	if s.Workers < 1 || s.Iterations < 1 || s.Rounds < 1 {
		return fmt.Errorf("%w: %s needs positive workers, iterations and rounds, got %d/%d/%d",
			ErrInvalidConfig, s.Name, s.Workers, s.Iterations, s.Rounds)
	}
	if s.Operand == nil {
		return fmt.Errorf("%w: %s has no operand", ErrInvalidConfig, s.Name)
	}
	// nand only commutes with itself when it degenerates to complement
	if s.Op == fetchop.Nand {
		for w := 0; w < s.Workers; w++ {
			if s.Operand(w) != fetchop.AllOnes[T]() {
				return fmt.Errorf("%w: %s worker %d nand operand %#x", ErrUnpredictable, s.Name, w, s.Operand(w))
			}
		}
	}
	return nil
}

// Expected returns the cell value after one round. Every valid scenario is
// order-independent, so folding the workers one after another gives the
// same value as any interleaving.
func (s Scenario[T]) Expected() T {
	v := s.Initial
	for w := 0; w < s.Workers; w++ {
		x := s.Operand(w)
		for i := 0; i < s.Iterations; i++ {
			v = fetchop.Apply(s.Op, v, x)
		}
	}
	return v
}

// Ops is the number of fetch-and-op calls made by one round.
func (s Scenario[T]) Ops() int64 {
	return int64(s.Workers) * int64(s.Iterations)
}

func constant[T fetchop.Word](x T) func(int) T {
	return func(int) T { return x }
}

func bit[T fetchop.Word](worker int) T {
	return T(1) << worker
}

func notBit[T fetchop.Word](worker int) T {
	return ^(T(1) << worker)
}

// DefaultScenarios returns the six contention blocks for the given worker
// count. The masks of the or, and and xor blocks need workers+1 bits of T.
func DefaultScenarios[T fetchop.Word](workers int) ([]Scenario[T], error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: workers %d", ErrInvalidConfig, workers)
	}
	if workers >= fetchop.Bits[T]() {
		return nil, fmt.Errorf("%w: %d workers on a %d-bit word", ErrWordTooNarrow, workers, fetchop.Bits[T]())
	}
	// An odd number of complements leaves the cell complemented.
	oddWorkers := workers
	if oddWorkers%2 == 0 {
		oddWorkers--
	}
	sentinel := T(1) << workers
	full := T(1)<<(workers+1) - 1
	return []Scenario[T]{
		{
			Name:       ScenarioAdd,
			Op:         fetchop.Add,
			Workers:    workers,
			Iterations: 10000,
			Rounds:     1,
			Initial:    1,
			Operand:    constant[T](1),
			Probe:      Probe[T]{Start: 5, Operand: 10},
		},
		{
			Name:       ScenarioSub,
			Op:         fetchop.Sub,
			Workers:    workers,
			Iterations: 10000,
			Rounds:     1,
			Initial:    1,
			Operand:    constant[T](1),
			Probe:      Probe[T]{Start: 5, Operand: 10},
		},
		{
			Name:       ScenarioOr,
			Op:         fetchop.Or,
			Workers:    workers,
			Iterations: 1,
			Rounds:     100,
			Initial:    sentinel,
			Operand:    bit[T],
			Probe:      Probe[T]{Start: 5, Operand: 9},
		},
		{
			Name:       ScenarioAnd,
			Op:         fetchop.And,
			Workers:    workers,
			Iterations: 1,
			Rounds:     100,
			Initial:    full,
			Operand:    notBit[T],
			Probe:      Probe[T]{Start: 5, Operand: 9},
		},
		{
			Name:    ScenarioXor,
			Op:      fetchop.Xor,
			Workers: workers,
			// odd so that the masks do not cancel themselves out
			Iterations: 9999,
			Rounds:     100,
			Initial:    sentinel,
			Operand:    notBit[T],
			Probe:      Probe[T]{Start: 5, Operand: 9},
		},
		{
			Name:       ScenarioNand,
			Op:         fetchop.Nand,
			Workers:    oddWorkers,
			Iterations: 9999,
			Rounds:     100,
			Initial:    0,
			Operand:    constant(fetchop.AllOnes[T]()),
			Probe:      Probe[T]{Start: 5, Operand: 9},
		},
	}, nil
}

// ConfiguredScenarios returns the default scenarios with the overrides and
// filter of config applied.
func ConfiguredScenarios[T fetchop.Word](config *Config) ([]Scenario[T], error) {
	all, err := DefaultScenarios[T](config.Workers)
	if err != nil {
		return nil, err
	}
	selected := make(map[string]bool, len(config.Scenarios))
	for _, n := range config.Scenarios {
		selected[n] = true
	}
	out := all[:0]
	for _, sc := range all {
		if len(selected) > 0 && !selected[sc.Name] {
			continue
		}
		if config.Iterations > 0 {
			sc.Iterations = config.Iterations
		}
		if config.Rounds > 0 {
			sc.Rounds = config.Rounds
		}
		out = append(out, sc)
	}
	return out, nil
}
