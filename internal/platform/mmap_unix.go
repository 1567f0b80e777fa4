//go:build unix

package platform

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// numCPU reports the host's hardware thread count via sched_getaffinity,
// falling back to runtime.NumCPU if the syscall is unavailable.
func numCPU() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err == nil {
		return set.Count()
	}
	return runtime.NumCPU()
}

// NewRegion reserves size bytes of anonymous, zero-filled virtual memory via
// mmap, matching the source VM's semispace reservation strategy (large
// heaps are reserved up front rather than grown by repeated allocation).
func NewRegion(size int) (*Region, error) {
	if size <= 0 {
		size = 1
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("platform: mmap %d bytes: %w", size, err)
	}
	r := &Region{bytes: data}
	r.free = func() { _ = unix.Munmap(data) }
	return r, nil
}
