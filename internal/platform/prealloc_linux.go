//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves destination space up front. A full disk then fails
// before any data moves, and extents stay contiguous. Advisory only.
//
//nolint:gosec // G115: Fd() fits in int
func preallocate(fd *os.File, size int64) {
	if size <= 0 {
		return
	}
	//nolint:errcheck // unsupported filesystems return EOPNOTSUPP, which is fine
	unix.Fallocate(int(fd.Fd()), 0, 0, size)
}
