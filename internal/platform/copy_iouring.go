//go:build linux

package platform

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Kernel ABI constants for the raw io_uring syscalls. The mmap offsets
// select which ring region a map call refers to (IORING_OFF_*).
const (
	opRead  = 22 // IORING_OP_READ
	opWrite = 23 // IORING_OP_WRITE

	enterGetEvents = 1 << 0 // IORING_ENTER_GETEVENTS

	offSQRing = 0
	offCQRing = 0x8000000
	offSQEs   = 0x10000000

	sqeSize = 64
	cqeSize = 16
)

const uringChunk = 1 << 20

var uringBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, uringChunk)
		return &b
	},
}

// sqe mirrors struct io_uring_sqe (64 bytes). Field order and widths are
// fixed by the kernel; do not reorder.
type sqe struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opFlags     uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	pad         [2]uint64
}

// cqe mirrors struct io_uring_cqe (16 bytes).
type cqe struct {
	userData uint64
	res      int32
	flags    uint32
}

// uringParams mirrors struct io_uring_params as filled in by
// io_uring_setup(2).
type uringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        sqOffsets
	cqOff        cqOffsets
}

type sqOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

type cqOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint32
	resv1       uint32
	userAddr    uint64
}

// uring holds the ring fd and the pointers into its three mmap'd regions.
type uring struct {
	fd int

	sqHead  *uint32
	sqTail  *uint32
	sqMask  *uint32
	sqArray unsafe.Pointer
	sqes    unsafe.Pointer

	cqHead *uint32
	cqTail *uint32
	cqMask *uint32
	cqes   unsafe.Pointer

	// Mapped regions, kept for munmap on close.
	regions [][]byte
}

// IOURingCopier copies file contents through a raw io_uring ring, one
// read/write pair per chunk.
type IOURingCopier struct {
	r *uring
}

// NewIOURingCopier sets up a ring with the given queue depth. On kernels
// without io_uring (< 5.6) it returns (nil, nil) so callers fall back to
// the regular copy path.
func NewIOURingCopier(queueDepth uint) (*IOURingCopier, error) {
	if !KernelSupportsIOURing() {
		return nil, nil
	}

	r, err := newRing(uint32(queueDepth))
	if err != nil {
		return nil, err
	}
	return &IOURingCopier{r: r}, nil
}

// Close unmaps the ring regions and closes the ring fd.
func (c *IOURingCopier) Close() error {
	if c == nil || c.r == nil {
		return nil
	}
	return c.r.close()
}

// CopyFile copies src to the already-open destination fd chunk by chunk.
func (c *IOURingCopier) CopyFile(params CopyFileParams) (CopyResult, error) {
	src, err := os.Open(params.SrcPath)
	if err != nil {
		return CopyResult{}, err
	}
	defer src.Close()

	srcFd := int32(src.Fd())
	dstFd := int32(params.DstFd.Fd())

	bufp := uringBufPool.Get().(*[]byte)
	defer uringBufPool.Put(bufp)

	var written int64
	remaining := params.SrcSize
	for remaining > 0 {
		chunk := min(remaining, int64(len(*bufp)))
		buf := (*bufp)[:chunk]

		n, err := c.r.submitAndWait(opRead, srcFd, buf, uint64(written))
		if err != nil {
			return CopyResult{BytesWritten: written, Method: IOURing}, fmt.Errorf("iouring read: %w", err)
		}
		if n == 0 {
			break
		}

		w, err := c.r.submitAndWait(opWrite, dstFd, buf[:n], uint64(written))
		if err != nil {
			return CopyResult{BytesWritten: written, Method: IOURing}, fmt.Errorf("iouring write: %w", err)
		}

		written += int64(w)
		remaining -= int64(w)
	}

	return CopyResult{BytesWritten: written, Method: IOURing}, nil
}

func newRing(entries uint32) (*uring, error) {
	var params uringParams
	fd, _, errno := syscall.Syscall(
		unix.SYS_IO_URING_SETUP,
		uintptr(entries),
		uintptr(unsafe.Pointer(&params)),
		0,
	)
	if errno != 0 {
		return nil, fmt.Errorf("io_uring_setup: %w", errno)
	}

	r := &uring{fd: int(fd)}
	if err := r.mapRings(&params); err != nil {
		_ = r.close()
		return nil, err
	}
	return r, nil
}

// mapRegion mmaps one ring region and records it for cleanup.
func (r *uring) mapRegion(offset int64, size uintptr) (unsafe.Pointer, error) {
	mem, err := syscall.Mmap(r.fd, offset, int(size),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		return nil, err
	}
	r.regions = append(r.regions, mem)
	return unsafe.Pointer(&mem[0]), nil
}

func (r *uring) mapRings(params *uringParams) error {
	sqSize := uintptr(params.sqOff.array) + uintptr(params.sqEntries)*4
	sqBase, err := r.mapRegion(offSQRing, sqSize)
	if err != nil {
		return fmt.Errorf("mmap sq ring: %w", err)
	}
	r.sqHead = (*uint32)(unsafe.Add(sqBase, params.sqOff.head))
	r.sqTail = (*uint32)(unsafe.Add(sqBase, params.sqOff.tail))
	r.sqMask = (*uint32)(unsafe.Add(sqBase, params.sqOff.ringMask))
	r.sqArray = unsafe.Add(sqBase, params.sqOff.array)

	sqes, err := r.mapRegion(offSQEs, uintptr(params.sqEntries)*sqeSize)
	if err != nil {
		return fmt.Errorf("mmap sqes: %w", err)
	}
	r.sqes = sqes

	cqSize := uintptr(params.cqOff.cqes) + uintptr(params.cqEntries)*cqeSize
	cqBase, err := r.mapRegion(offCQRing, cqSize)
	if err != nil {
		return fmt.Errorf("mmap cq ring: %w", err)
	}
	r.cqHead = (*uint32)(unsafe.Add(cqBase, params.cqOff.head))
	r.cqTail = (*uint32)(unsafe.Add(cqBase, params.cqOff.tail))
	r.cqMask = (*uint32)(unsafe.Add(cqBase, params.cqOff.ringMask))
	r.cqes = unsafe.Add(cqBase, params.cqOff.cqes)

	return nil
}

func (r *uring) close() error {
	var firstErr error
	for _, mem := range r.regions {
		if err := syscall.Munmap(mem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.regions = nil
	if err := syscall.Close(r.fd); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// submitAndWait queues one operation, submits it, and blocks for its
// completion. The ring is used synchronously: one SQE in flight at a time,
// so the next CQE is always ours.
func (r *uring) submitAndWait(op uint8, fd int32, buf []byte, offset uint64) (int, error) {
	tail := *r.sqTail
	idx := tail & *r.sqMask

	slot := (*sqe)(unsafe.Add(r.sqes, uintptr(idx)*sqeSize))
	*slot = sqe{
		opcode:   op,
		fd:       fd,
		off:      offset,
		addr:     uint64(uintptr(unsafe.Pointer(&buf[0]))),
		len:      uint32(len(buf)),
		userData: uint64(tail),
	}

	// Point the SQ array slot at the SQE and publish the new tail.
	*(*uint32)(unsafe.Add(r.sqArray, uintptr(idx)*4)) = uint32(idx)
	*r.sqTail = tail + 1

	_, _, errno := syscall.Syscall6(
		unix.SYS_IO_URING_ENTER,
		uintptr(r.fd),
		1, // to_submit
		1, // min_complete
		uintptr(enterGetEvents),
		0, 0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("io_uring_enter: %w", errno)
	}

	head := *r.cqHead
	entry := (*cqe)(unsafe.Add(r.cqes, uintptr(head&*r.cqMask)*cqeSize))
	res := entry.res
	*r.cqHead = head + 1

	if res < 0 {
		return 0, syscall.Errno(-res)
	}
	return int(res), nil
}

// KernelSupportsIOURing reports whether the running kernel is 5.6 or newer,
// the first release with IORING_OP_READ/WRITE.
func KernelSupportsIOURing() bool {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return false
	}
	major, minor, ok := parseKernelRelease(unix.ByteSliceToString(uname.Release[:]))
	if !ok {
		return false
	}
	return major > 5 || (major == 5 && minor >= 6)
}

// parseKernelRelease extracts major.minor from a uname release string,
// tolerating distro suffixes like "5.15.0-91-generic".
func parseKernelRelease(release string) (major, minor int, ok bool) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}

	minorStr := parts[1]
	if idx := strings.IndexFunc(minorStr, func(r rune) bool { return r < '0' || r > '9' }); idx > 0 {
		minorStr = minorStr[:idx]
	}
	minor, err = strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}
