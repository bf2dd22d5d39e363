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
	"sync/atomic"
)

// Every fetch-and-op below returns the value stored at p before the update.
// p must be naturally aligned for the width of T.

// FetchAdd atomically adds x to *p.
func FetchAdd[T Word](p *T, x T) T {
	if is32[T]() {
		return T(atomic.AddUint32(u32(p), uint32(x)) - uint32(x))
	}
	return T(atomic.AddUint64(u64(p), uint64(x)) - uint64(x))
}

// FetchSub atomically subtracts x from *p.
func FetchSub[T Word](p *T, x T) T {
	if is32[T]() {
		return T(atomic.AddUint32(u32(p), ^uint32(x)+1) + uint32(x))
	}
	return T(atomic.AddUint64(u64(p), ^uint64(x)+1) + uint64(x))
}

// FetchOr atomically stores *p | x.
func FetchOr[T Word](p *T, x T) T {
	if is32[T]() {
		return T(atomic.OrUint32(u32(p), uint32(x)))
	}
	return T(atomic.OrUint64(u64(p), uint64(x)))
}

// FetchAnd atomically stores *p & x.
func FetchAnd[T Word](p *T, x T) T {
	if is32[T]() {
		return T(atomic.AndUint32(u32(p), uint32(x)))
	}
	return T(atomic.AndUint64(u64(p), uint64(x)))
}

// FetchXor atomically stores *p ^ x.
func FetchXor[T Word](p *T, x T) T {
	old, _ := Update(p, func(v T) T { return v ^ x })
	return old
}

// FetchNand atomically stores ^(*p & x).
func FetchNand[T Word](p *T, x T) T {
	old, _ := Update(p, func(v T) T { return ^(v & x) })
	return old
}

// Update atomically replaces *p with f(*p) using a compare-and-swap loop.
// f may be called more than once and must be free of side effects.
// retries is the number of failed compare-and-swap attempts.
func Update[T Word](p *T, f func(T) T) (old T, retries int) {
	for {
		old = Load(p)
		if CompareAndSwap(p, old, f(old)) {
			return old, retries
		}
		retries++
	}
}

// Fetch applies op to *p with operand x.
func Fetch[T Word](op Op, p *T, x T) T {
	old, _ := FetchCounted(op, p, x)
	return old
}

// FetchCounted is Fetch that also reports how many compare-and-swap attempts
// failed. Operations with a native instruction always report zero.
func FetchCounted[T Word](op Op, p *T, x T) (old T, retries int) {
	switch op {
	case Add:
		return FetchAdd(p, x), 0
	case Sub:
		return FetchSub(p, x), 0
	case Or:
		return FetchOr(p, x), 0
	case And:
		return FetchAnd(p, x), 0
	case Xor:
		return Update(p, func(v T) T { return v ^ x })
	case Nand:
		return Update(p, func(v T) T { return ^(v & x) })
	}
	panic("fetchop: fetch " + op.String())
}

func Load[T Word](p *T) T {
	if is32[T]() {
		return T(atomic.LoadUint32(u32(p)))
	}
	return T(atomic.LoadUint64(u64(p)))
}

func Store[T Word](p *T, v T) {
	if is32[T]() {
		atomic.StoreUint32(u32(p), uint32(v))
		return
	}
	atomic.StoreUint64(u64(p), uint64(v))
}

// CompareAndSwap stores new at p if *p equals old and reports whether it did.
func CompareAndSwap[T Word](p *T, old, new T) bool {
	if is32[T]() {
		return atomic.CompareAndSwapUint32(u32(p), uint32(old), uint32(new))
	}
	return atomic.CompareAndSwapUint64(u64(p), uint64(old), uint64(new))
}
