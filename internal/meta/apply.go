package meta

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Source carries the metadata of a scanned source node.
type Source struct {
	Mode    os.FileMode
	ModTime time.Time
	AccTime time.Time
	UID     uint32
	GID     uint32
	Path    string // absolute source path, read for xattrs
}

// Applier writes source metadata onto destination nodes per its flag set.
type Applier struct {
	flags Flags
}

// NewApplier creates an Applier for the given flags.
func NewApplier(flags Flags) *Applier {
	return &Applier{flags: flags}
}

// Flags returns the applier's flag set.
func (a *Applier) Flags() Flags { return a.flags }

// modeBits returns the mode bits the flag set replicates. Attributes covers
// the permission bits; Security widens to setuid/setgid/sticky.
func (a *Applier) modeBits(mode os.FileMode) (uint32, bool) {
	switch {
	case a.flags.Security:
		return unixMode(mode), true
	case a.flags.Attributes:
		return uint32(mode.Perm()), true
	default:
		return 0, false
	}
}

// unixMode converts FileMode permission, setuid/setgid and sticky bits to
// their syscall encoding. FileMode keeps the special bits in its high word.
func unixMode(mode os.FileMode) uint32 {
	bits := uint32(mode.Perm())
	if mode&os.ModeSetuid != 0 {
		bits |= unix.S_ISUID
	}
	if mode&os.ModeSetgid != 0 {
		bits |= unix.S_ISGID
	}
	if mode&os.ModeSticky != 0 {
		bits |= unix.S_ISVTX
	}
	return bits
}

// ApplyFd applies metadata to an open file descriptor. Temp files get their
// metadata here, before the atomic rename, so the final path never exists
// with wrong metadata.
func (a *Applier) ApplyFd(fd *os.File, src Source) error {
	rawFd := int(fd.Fd())

	if a.flags.Timestamps {
		times := []unix.Timespec{
			unix.NsecToTimespec(src.AccTime.UnixNano()),
			unix.NsecToTimespec(src.ModTime.UnixNano()),
		}
		if err := setTimesFd(rawFd, fd.Name(), times); err != nil {
			return fmt.Errorf("utimensat: %w", err)
		}
	}

	if bits, ok := a.modeBits(src.Mode); ok {
		if err := unix.Fchmod(rawFd, bits); err != nil {
			return fmt.Errorf("fchmod: %w", err)
		}
	}

	if a.flags.Security && src.Path != "" {
		if err := copyXattrs(src.Path, rawFd); err != nil {
			return err
		}
	}

	// Ownership last — may fail without CAP_CHOWN.
	if a.flags.Owner {
		_ = unix.Fchown(rawFd, int(src.UID), int(src.GID))
	}

	return nil
}

// ApplyPath applies metadata to an existing node by path (directories, and
// nodes whose content stayed in place). A write-protected target gets the
// write bit lifted for the update and the original mode put back.
func (a *Applier) ApplyPath(path string, src Source) error {
	err := a.applyPath(path, src)
	if err == nil || !errors.Is(err, os.ErrPermission) {
		return err
	}

	fi, statErr := os.Lstat(path)
	if statErr != nil || fi.Mode().Perm()&0o200 != 0 {
		return err
	}
	if chmodErr := os.Chmod(path, fi.Mode().Perm()|0o200); chmodErr != nil {
		return err
	}
	if _, replacing := a.modeBits(src.Mode); !replacing {
		// The flag set leaves mode alone, so the original mode must come
		// back whether or not the retry succeeds.
		defer func() { _ = os.Chmod(path, fi.Mode().Perm()) }()
	}
	return a.applyPath(path, src)
}

func (a *Applier) applyPath(path string, src Source) error {
	if a.flags.Timestamps {
		times := []unix.Timespec{
			unix.NsecToTimespec(src.AccTime.UnixNano()),
			unix.NsecToTimespec(src.ModTime.UnixNano()),
		}
		if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, 0); err != nil {
			return fmt.Errorf("utimensat %s: %w", path, err)
		}
	}

	if bits, ok := a.modeBits(src.Mode); ok {
		if err := unix.Chmod(path, bits); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
	}

	if a.flags.Owner {
		_ = unix.Lchown(path, int(src.UID), int(src.GID))
	}

	return nil
}

// ApplySymlink applies what a symlink can carry: its own timestamps and
// ownership. Mode bits on symlinks are ignored by the kernel.
func (a *Applier) ApplySymlink(path string, src Source) error {
	if a.flags.Timestamps {
		times := []unix.Timespec{
			unix.NsecToTimespec(src.AccTime.UnixNano()),
			unix.NsecToTimespec(src.ModTime.UnixNano()),
		}
		_ = unix.UtimesNanoAt(unix.AT_FDCWD, path, times, unix.AT_SYMLINK_NOFOLLOW)
	}
	if a.flags.Owner {
		_ = unix.Lchown(path, int(src.UID), int(src.GID))
	}
	return nil
}

func copyXattrs(srcPath string, dstFd int) error {
	// List xattrs on source.
	sz, err := unix.Listxattr(srcPath, nil)
	if err != nil || sz == 0 {
		return nil // no xattrs or not supported
	}

	buf := make([]byte, sz)
	sz, err = unix.Listxattr(srcPath, buf)
	if err != nil {
		return nil
	}

	// Parse null-separated attribute names.
	for _, name := range parseXattrNames(buf[:sz]) {
		val, err := getXattr(srcPath, name)
		if err != nil {
			continue
		}
		_ = unix.Fsetxattr(dstFd, name, val, 0)
	}

	return nil
}

func getXattr(path, name string) ([]byte, error) {
	sz, err := unix.Getxattr(path, name, nil)
	if err != nil || sz == 0 {
		return nil, err
	}
	buf := make([]byte, sz)
	_, err = unix.Getxattr(path, name, buf)
	return buf, err
}

func parseXattrNames(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}
