package engine

import (
	"context"
	"path"
	"sync"
)

// dirGates enforces directory-before-descendant ordering. The scanner
// emits a directory before anything beneath it, so the dispatcher always
// registers a gate before any descendant task can look it up.
type dirGates struct {
	mu    sync.Mutex
	gates map[string]*dirGate // keyed by root-relative dir path
}

type dirGate struct {
	done chan struct{}
	err  error // written before close(done), read only after
}

func newDirGates() *dirGates {
	return &dirGates{gates: make(map[string]*dirGate)}
}

// register creates the gate for a directory task.
func (g *dirGates) register(relDir string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.gates[relDir]; !ok {
		g.gates[relDir] = &dirGate{done: make(chan struct{})}
	}
}

// open releases everything waiting under relDir. A non-nil err fails
// descendants fast instead of letting each rediscover the broken parent.
func (g *dirGates) open(relDir string, err error) {
	g.mu.Lock()
	gate, ok := g.gates[relDir]
	g.mu.Unlock()
	if !ok {
		return
	}
	gate.err = err
	close(gate.done)
}

// wait blocks until the nearest registered ancestor directory of relPath
// is complete. Ancestors complete in scan order, so the nearest gate is
// sufficient: its own task already waited for the gates above it.
func (g *dirGates) wait(ctx context.Context, relPath string) error {
	for dir := path.Dir(relPath); dir != "." && dir != "/"; dir = path.Dir(dir) {
		g.mu.Lock()
		gate, ok := g.gates[dir]
		g.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case <-gate.done:
			return gate.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
