package engine

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const pathLockStripes = 256

// pathLocks serializes workers that target the same destination path.
// Stripes keyed by path hash: collisions only serialize, never corrupt.
type pathLocks struct {
	stripes [pathLockStripes]sync.Mutex
}

func newPathLocks() *pathLocks {
	return &pathLocks{}
}

// Lock acquires the stripe for path and returns its unlock func.
func (pl *pathLocks) Lock(path string) func() {
	m := &pl.stripes[xxhash.Sum64String(path)%pathLockStripes]
	m.Lock()
	return m.Unlock
}
