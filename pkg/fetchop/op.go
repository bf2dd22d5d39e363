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

package fetchop

import (
	"errors"
	"fmt"
	"strings"
)

// Op identifies the binary function applied by a fetch-and-op.
type Op uint8

const (
	Add Op = iota
	Sub
	Or
	And
	Xor
	Nand
	opCount
)

var ErrUnknownOp = errors.New("unknown fetch-and-op")

var opNames = [opCount]string{
	Add:  "add",
	Sub:  "sub",
	Or:   "or",
	And:  "and",
	Xor:  "xor",
	Nand: "nand",
}

// Ops returns every supported operation in declaration order.
func Ops() []Op {
	return []Op{Add, Sub, Or, And, Xor, Nand}
}

func (o Op) String() string {
	if o < opCount {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Native reports whether sync/atomic provides a single instruction for o.
// Xor and Nand are implemented as compare-and-swap loops.
func (o Op) Native() bool {
	return o == Add || o == Sub || o == Or || o == And
}

// ParseOp parses the lower-case name of an operation.
func ParseOp(s string) (Op, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range opNames {
		if n == name {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

func (o Op) MarshalText() ([]byte, error) {
	if o >= opCount {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOp, uint8(o))
	}
	return []byte(opNames[o]), nil
}

func (o *Op) UnmarshalText(b []byte) error {
	op, err := ParseOp(string(b))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// Apply computes the new value op would store given the prior value old
// and operand x. Arithmetic wraps in two's complement.
func Apply[T Word](op Op, old, x T) T {
	switch op {
	case Add:
		return old + x
	case Sub:
		return old - x
	case Or:
		return old | x
	case And:
		return old & x
	case Xor:
		return old ^ x
	case Nand:
		return ^(old & x)
	}
	panic(fmt.Sprintf("fetchop: apply %v", op))
}
