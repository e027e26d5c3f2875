package platform

import "os"

// CopyMethod identifies which syscall path wrote a file's bytes.
type CopyMethod int

const (
	ReadWrite CopyMethod = iota // portable pread/pwrite loop
	CopyFileRange
	Sendfile
	IOURing
	Clonefile
)

var methodNames = map[CopyMethod]string{
	ReadWrite:     "read_write",
	CopyFileRange: "copy_file_range",
	Sendfile:      "sendfile",
	IOURing:       "io_uring",
	Clonefile:     "clonefile",
}

func (m CopyMethod) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return "unknown"
}

// CopyResult reports how many bytes a copy wrote and which path it took.
type CopyResult struct {
	BytesWritten int64
	Method       CopyMethod
}

// CopyFileParams describes a whole-file copy into an already-open
// destination. The destination fd lets callers apply metadata and fsync
// before the file is renamed into place.
type CopyFileParams struct {
	DstFd   *os.File
	SrcPath string
	SrcSize int64
}
