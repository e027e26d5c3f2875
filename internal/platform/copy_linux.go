//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// CopyFile picks the fastest syscall the kernel and the two filesystems
// allow, falling through on cross-device or unsupported errors.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	preallocate(params.DstFd, params.SrcSize)

	for _, attempt := range []func(CopyFileParams) (CopyResult, error){
		copyFileRange,
		copySendfile,
	} {
		result, err := attempt(params)
		if err == nil || !isFallbackErr(err) {
			return result, err
		}
	}
	return copyReadWrite(params)
}

// spliceFn performs one kernel-side transfer step, advancing its own file
// offsets, and returns the byte count moved.
type spliceFn func(srcFd, dstFd int, remaining int64) (int, error)

func spliceLoop(params CopyFileParams, method CopyMethod, step spliceFn) (CopyResult, error) {
	src, err := os.Open(params.SrcPath)
	if err != nil {
		return CopyResult{}, err
	}
	defer src.Close()

	srcFd, dstFd := int(src.Fd()), int(params.DstFd.Fd())
	var written int64
	remaining := params.SrcSize
	for remaining > 0 {
		n, err := step(srcFd, dstFd, remaining)
		if err != nil {
			if written == 0 {
				return CopyResult{}, err
			}
			return CopyResult{BytesWritten: written, Method: method}, err
		}
		if n == 0 {
			break
		}
		written += int64(n)
		remaining -= int64(n)
	}
	return CopyResult{BytesWritten: written, Method: method}, nil
}

func copyFileRange(params CopyFileParams) (CopyResult, error) {
	var roff, woff int64
	return spliceLoop(params, CopyFileRange, func(srcFd, dstFd int, remaining int64) (int, error) {
		return unix.CopyFileRange(srcFd, &roff, dstFd, &woff, int(remaining), 0)
	})
}

func copySendfile(params CopyFileParams) (CopyResult, error) {
	var off int64
	return spliceLoop(params, Sendfile, func(srcFd, dstFd int, remaining int64) (int, error) {
		return unix.Sendfile(dstFd, srcFd, &off, int(remaining))
	})
}
