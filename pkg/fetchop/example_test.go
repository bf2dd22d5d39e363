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

package fetchop_test

import (
	"fmt"

	"github.com/srediag/fetchop/pkg/fetchop"
)

func ExampleFetchNand() {
	var n int32 = 5
	prev := fetchop.FetchNand(&n, 9)
	fmt.Println(prev, n)
	// Output: 5 -2
}

func ExampleUpdate() {
	var n uint64 = 3
	old, _ := fetchop.Update(&n, func(v uint64) uint64 { return v << 4 })
	fmt.Println(old, n)
	// Output: 3 48
}

func ExampleFetch() {
	var flags uint32 = 1 << 8
	for w := 0; w < 4; w++ {
		fetchop.Fetch(fetchop.Or, &flags, uint32(1)<<w)
	}
	fmt.Printf("%#x\n", fetchop.Load(&flags))
	// Output: 0x10f
}
