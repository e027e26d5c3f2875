//go:build !linux

package meta

import "golang.org/x/sys/unix"

// setTimesFd sets timestamps by path. AT_EMPTY_PATH is Linux-only.
func setTimesFd(_ int, path string, times []unix.Timespec) error {
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, times, 0)
}
