package engine

import (
	"os"
	"sync"
)

// tmpRegistry tracks in-progress temporary files so cancellation can sweep
// partial writes out of the destination tree. Each pool owns one.
type tmpRegistry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func newTmpRegistry() *tmpRegistry {
	return &tmpRegistry{paths: make(map[string]struct{})}
}

func (r *tmpRegistry) register(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[path] = struct{}{}
}

func (r *tmpRegistry) deregister(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, path)
}

// cleanup removes every registered temp file and returns how many were
// actually deleted.
func (r *tmpRegistry) cleanup() int {
	r.mu.Lock()
	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	r.paths = make(map[string]struct{})
	r.mu.Unlock()

	removed := 0
	for _, p := range paths {
		if err := os.Remove(p); err == nil {
			removed++
		}
	}
	return removed
}
