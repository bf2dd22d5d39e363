package shm

import (
	"fmt"
	"unsafe"
)

// Word is an integer type with a native atomic width.
type Word interface {
	~int32 | ~uint32 | ~int64 | ~uint64 | ~int | ~uint | ~uintptr
}

// WordAt returns a typed pointer to the word at offset in region. The offset
// must be aligned to the size of T so atomic instructions on it are valid.
func WordAt[T Word](region *MappedRegion, offset int) (*T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if region == nil || offset < 0 || offset+size > len(region.Addr) {
		return nil, fmt.Errorf("%w: offset %d size %d", ErrOutOfRange, offset, size)
	}
	p := unsafe.Pointer(&region.Addr[offset])
	if uintptr(p)%uintptr(size) != 0 {
		return nil, fmt.Errorf("%w: offset %d to %d bytes", ErrMisaligned, offset, size)
	}
	return (*T)(p), nil
}
