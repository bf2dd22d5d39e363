//go:build !linux

package shm

import (
	"context"
	"fmt"
	"unsafe"
)

// MapRegion returns a region backed by process memory. Cells placed in it are
// contended across threads of this process only.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, opts.Size)
	}
	// uint64 backing keeps the base 8-byte aligned.
	words := make([]uint64, (opts.Size+7)/8)
	return &MappedRegion{Addr: unsafeBytes(words)[:opts.Size]}, nil
}

// UnmapRegion releases a region returned by MapRegion.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region != nil {
		region.Addr = nil
	}
	return nil
}

func unsafeBytes(words []uint64) []byte {
	if len(words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)
}
