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
	"math/bits"
	"unsafe"
)

// Word is the set of integer types with a native atomic width.
// int, uint and uintptr follow the platform word size.
type Word interface {
	~int32 | ~uint32 | ~int64 | ~uint64 | ~int | ~uint | ~uintptr
}

// NativeBits is the width in bits of the platform word.
const NativeBits = bits.UintSize

// Bits returns the width of T in bits.
func Bits[T Word]() int {
	var v T
	return int(unsafe.Sizeof(v)) * 8
}

// AllOnes returns the value of T with every bit set.
func AllOnes[T Word]() T {
	var v T
	return ^v
}

func is32[T Word]() bool {
	var v T
	return unsafe.Sizeof(v) == 4
}

func u32[T Word](p *T) *uint32 {
	return (*uint32)(unsafe.Pointer(p))
}

func u64[T Word](p *T) *uint64 {
	return (*uint64)(unsafe.Pointer(p))
}
