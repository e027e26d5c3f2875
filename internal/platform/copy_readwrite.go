package platform

import (
	"errors"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const copyBufSize = 1 << 20

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, copyBufSize)
		return &b
	},
}

// copyReadWrite is the portable last-resort path: pread into a pooled
// buffer, pwrite out. Positional I/O keeps the fds' own offsets untouched.
func copyReadWrite(params CopyFileParams) (CopyResult, error) {
	src, err := os.Open(params.SrcPath)
	if err != nil {
		return CopyResult{}, err
	}
	defer src.Close()

	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)

	srcFd, dstFd := int(src.Fd()), int(params.DstFd.Fd())
	var written int64
	remaining := params.SrcSize

	for remaining > 0 {
		chunk := min(remaining, int64(len(*bufp)))
		n, err := unix.Pread(srcFd, (*bufp)[:chunk], written)
		if err != nil {
			return CopyResult{BytesWritten: written, Method: ReadWrite}, err
		}
		if n == 0 {
			break
		}
		if err := pwriteAll(dstFd, (*bufp)[:n], written); err != nil {
			return CopyResult{BytesWritten: written, Method: ReadWrite}, err
		}
		written += int64(n)
		remaining -= int64(n)
	}

	return CopyResult{BytesWritten: written, Method: ReadWrite}, nil
}

// pwriteAll retries short writes until buf lands fully at off.
func pwriteAll(fd int, buf []byte, off int64) error {
	for len(buf) > 0 {
		w, err := unix.Pwrite(fd, buf, off)
		if err != nil {
			return err
		}
		buf = buf[w:]
		off += int64(w)
	}
	return nil
}

// CopyReadWrite exposes the portable path for benchmarks and tests.
func CopyReadWrite(params CopyFileParams) (CopyResult, error) {
	return copyReadWrite(params)
}

// isFallbackErr reports whether err means "try the next copy strategy"
// rather than a real failure. EXDEV shows up on cross-filesystem ranges,
// the others on kernels or filesystems without the syscall.
func isFallbackErr(err error) bool {
	for _, fallback := range []error{unix.ENOSYS, unix.EXDEV, unix.EINVAL, unix.ENOTSUP} {
		if errors.Is(err, fallback) {
			return true
		}
	}
	return false
}
