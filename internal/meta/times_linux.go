//go:build linux

package meta

import "golang.org/x/sys/unix"

// setTimesFd sets timestamps on an open descriptor via AT_EMPTY_PATH,
// falling back to the path for kernels/filesystems that reject it.
func setTimesFd(rawFd int, path string, times []unix.Timespec) error {
	if err := unix.UtimesNanoAt(rawFd, "", times, unix.AT_EMPTY_PATH); err != nil {
		if err2 := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, 0); err2 != nil {
			return err
		}
	}
	return nil
}
