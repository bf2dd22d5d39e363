// Package fetchop provides atomic fetch-and-op primitives (add, sub, or, and,
// xor, nand) over any integer type with a native atomic width.
//
// Every operation returns the value observed before the update. Add, Sub, Or
// and And map to single sync/atomic instructions. Xor and Nand have no native
// instruction and are built on Update, a load/compute/compare-and-swap loop
// that retries until no other writer intervened.
//
// Example usage:
//
//	var n int
//	prev := fetchop.FetchAdd(&n, 10)
//	prev = fetchop.FetchNand(&n, 9)
//	old, retries := fetchop.Update(&n, func(v int) int { return v * 2 })
//
// int, uint and uintptr follow the platform word size, so the same code runs
// 32-bit wide on 386/arm and 64-bit wide on amd64/arm64.
package fetchop
