//go:build !linux

package platform

import "os"

// preallocate does nothing off Linux; fallocate has no portable equivalent.
func preallocate(_ *os.File, _ int64) {}
