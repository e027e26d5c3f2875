//go:build darwin

package platform

import (
	"errors"

	"golang.org/x/sys/unix"
)

// CopyFile tries clonefile(2) for a CoW copy on APFS, then falls back to
// the portable read/write loop.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	switch err := unix.Clonefile(params.SrcPath, params.DstFd.Name(), 0); {
	case err == nil:
		return CopyResult{BytesWritten: params.SrcSize, Method: Clonefile}, nil
	case !isFallbackCloneErr(err):
		return CopyResult{}, err
	}

	preallocate(params.DstFd, params.SrcSize)
	return copyReadWrite(params)
}

// isFallbackCloneErr covers non-APFS volumes, cross-device clones, and the
// destination already existing (clonefile refuses to overwrite).
func isFallbackCloneErr(err error) bool {
	for _, fallback := range []error{unix.ENOTSUP, unix.EXDEV, unix.EEXIST} {
		if errors.Is(err, fallback) {
			return true
		}
	}
	return false
}
