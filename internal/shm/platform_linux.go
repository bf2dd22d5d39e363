//go:build linux

package shm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

const devShm = "/dev/shm"

// MapRegion maps or creates a shared memory region (Linux implementation).
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, opts.Size)
	}
	var (
		fd   int
		path string
		err  error
	)
	if opts.Name == "" {
		fd, err = unix.MemfdCreate("fetchop", unix.MFD_CLOEXEC)
		if err != nil {
			return nil, fmt.Errorf("memfd_create: %w", err)
		}
	} else {
		path = filepath.Join(devShm, opts.Name)
		flags := unix.O_RDWR | unix.O_CLOEXEC
		if opts.Create {
			if !canCreateOnDevShm(uint64(opts.Size), path) {
				return nil, fmt.Errorf("%w: path %s size %d", ErrNoSpace, path, opts.Size)
			}
			flags |= unix.O_CREAT | unix.O_EXCL
		}
		fd, err = unix.Open(path, flags, 0600)
		if errors.Is(err, unix.EEXIST) {
			return nil, fmt.Errorf("%w: %s, remove it if a previous run was interrupted: %w", ErrExists, path, err)
		}
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
	}
	if opts.Create || opts.Name == "" {
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			closeAndRemove(fd, path, opts.Create)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		closeAndRemove(fd, path, opts.Create)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	region := &MappedRegion{
		Addr:   addr,
		Shared: true,
		fd:     fd,
	}
	if opts.Create {
		region.path = path
	}
	return region, nil
}

// UnmapRegion unmaps and closes the shared memory region (Linux implementation).
// The backing file is removed if this process created it.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	closeAndRemove(region.fd, region.path, region.path != "")
	return nil
}

func closeAndRemove(fd int, path string, remove bool) {
	_ = unix.Close(fd)
	if remove && path != "" {
		_ = unix.Unlink(path)
	}
}

// canCreateOnDevShm reports whether /dev/shm has room for size bytes. Paths
// outside /dev/shm are always allowed.
func canCreateOnDevShm(size uint64, path string) bool {
	if !strings.HasPrefix(path, devShm) {
		return true
	}
	stat, err := disk.Usage(devShm)
	if err != nil {
		return true
	}
	return stat.Free >= size
}
