//go:build !unix

package platform

import "runtime"

// numCPU falls back to the Go runtime's own view of available processors
// on platforms without a sched_getaffinity equivalent wired up here.
func numCPU() int {
	return runtime.NumCPU()
}

// NewRegion reserves size bytes from the Go heap. Non-unix targets don't
// get the mmap-backed reservation mmap_unix.go provides, but the region
// still satisfies its caller in vm/process.go since nothing depends on the
// memory being demand-paged.
func NewRegion(size int) (*Region, error) {
	if size <= 0 {
		size = 1
	}
	return &Region{bytes: make([]byte, size)}, nil
}
