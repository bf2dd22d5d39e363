// Package shm contains platform-specific helpers for placing contended cells
// in shared memory.
package shm

import (
	"errors"
)

var (
	ErrInvalidSize = errors.New("shm: invalid region size")
	ErrNoSpace     = errors.New("shm: not enough space left on /dev/shm")
	ErrOutOfRange  = errors.New("shm: offset out of range")
	ErrMisaligned  = errors.New("shm: offset not aligned")
	ErrExists      = errors.New("shm: region already exists")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	// Shared is false when the platform fell back to process memory.
	Shared bool

	fd   int
	path string
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	// Name of the file under /dev/shm. Empty maps an anonymous memfd.
	Name   string
	Size   int
	Create bool
}

// Function implementations are provided in platform-specific files (platform_linux.go, platform_other.go).
