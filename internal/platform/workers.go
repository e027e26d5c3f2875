package platform

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Info describes the host resources that bound worker pool sizing.
type Info struct {
	NumCPU       int
	MaxOpenFiles int
}

// Detect probes the current host. If the file-descriptor limit cannot be
// read, a conservative 1024 is assumed.
func Detect() Info {
	info := Info{
		NumCPU:       runtime.NumCPU(),
		MaxOpenFiles: 1024,
	}

	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err == nil && lim.Cur > 0 {
		info.MaxOpenFiles = int(lim.Cur)
	}
	return info
}

// WorkerCap returns the hard ceiling on worker count for a host. Every
// worker holds several descriptors at once (source, temp file, destination
// directory), so the cap tracks a quarter of the open-file limit, clamped
// to [64, 512].
func WorkerCap(info Info) int {
	c := info.MaxOpenFiles / 4
	if c < 64 {
		c = 64
	}
	if c > 512 {
		c = 512
	}
	return c
}

// MaxWorkers returns the default worker count for a host: twice the CPU
// count (transfers are I/O bound), capped at 32 and never above the
// host's WorkerCap.
func MaxWorkers(info Info) int {
	n := info.NumCPU * 2
	if n < 1 {
		n = 1
	}
	if n > 32 {
		n = 32
	}
	if hard := WorkerCap(info); n > hard {
		n = hard
	}
	return n
}
