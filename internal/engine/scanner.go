package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"

	"github.com/bamsammich/ditto/internal/filter"
)

// ScannerConfig controls scanner behavior.
type ScannerConfig struct {
	Root    string
	Workers int
	Filter  *filter.Chain
}

// Scanner traverses a directory tree in parallel and emits entries.
// A directory's entry is always sent before any entry beneath it; the
// dispatcher relies on that order to register gates ahead of descendants.
type Scanner struct {
	cfg     ScannerConfig
	entries chan Entry
	errs    chan error
}

// NewScanner creates a scanner with the given config.
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = scanWorkers()
	}
	return &Scanner{
		cfg:     cfg,
		entries: make(chan Entry, cfg.Workers*4),
		errs:    make(chan error, cfg.Workers*4),
	}
}

func scanWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	return n
}

// Scan starts the scanner and returns channels for entries and errors.
// The caller must consume from both channels until they close.
func (s *Scanner) Scan(ctx context.Context) (<-chan Entry, <-chan error) {
	go func() {
		defer close(s.entries)
		defer close(s.errs)
		s.scanTree(ctx)
	}()

	return s.entries, s.errs
}

func (s *Scanner) scanTree(ctx context.Context) {
	workQueue := make(chan string, s.cfg.Workers*2)
	var outstanding sync.WaitGroup // tracks directories queued but not yet processed

	var workerWg sync.WaitGroup
	for range s.cfg.Workers {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for dirPath := range workQueue {
				s.scanDir(ctx, dirPath, workQueue, &outstanding)
				outstanding.Done()
			}
		}()
	}

	// Seed with root.
	outstanding.Add(1)
	workQueue <- s.cfg.Root

	// Wait for all directory work to finish, then close the work queue
	// so workers exit their range loop.
	outstanding.Wait()
	close(workQueue)
	workerWg.Wait()
}

func (s *Scanner) scanDir(ctx context.Context, dirPath string, workQueue chan<- string, outstanding *sync.WaitGroup) {
	relDir, err := filepath.Rel(s.cfg.Root, dirPath)
	if err != nil {
		s.sendErr(fmt.Errorf("rel path for %s: %w", dirPath, err))
		return
	}

	// Emit the directory itself (except the root, which the caller owns).
	if dirPath != s.cfg.Root {
		info, err := os.Lstat(dirPath)
		if err != nil {
			s.sendErr(fmt.Errorf("lstat %s: %w", dirPath, err))
			return
		}
		stat := info.Sys().(*syscall.Stat_t)
		s.sendEntry(ctx, Entry{
			RelPath: filepath.ToSlash(relDir),
			Path:    dirPath,
			Type:    Dir,
			Mode:    uint32(info.Mode()),
			UID:     stat.Uid,
			GID:     stat.Gid,
			ModTime: info.ModTime(),
			AccTime: atimeFromStat(stat),
		})
	}

	dirents, err := os.ReadDir(dirPath)
	if err != nil {
		s.sendErr(fmt.Errorf("readdir %s: %w", dirPath, err))
		return
	}

	for _, d := range dirents {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.processEntry(ctx, filepath.Join(dirPath, d.Name()), workQueue, outstanding); err != nil {
			s.sendErr(err)
		}
	}
}

func (s *Scanner) processEntry(ctx context.Context, path string, workQueue chan<- string, outstanding *sync.WaitGroup) error {
	rel, err := filepath.Rel(s.cfg.Root, path)
	if err != nil {
		return fmt.Errorf("rel path for %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)

	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("lstat %s: %w", path, err)
	}

	stat := info.Sys().(*syscall.Stat_t)
	mode := info.Mode()

	switch {
	case mode.IsDir():
		// An excluded directory prunes its whole subtree.
		if s.cfg.Filter != nil && !s.cfg.Filter.Match(rel, true, 0) {
			return nil
		}
		outstanding.Add(1)
		select {
		case workQueue <- path:
		case <-ctx.Done():
			outstanding.Done()
			return ctx.Err()
		}
		return nil

	case mode&os.ModeSymlink != 0:
		if s.cfg.Filter != nil && !s.cfg.Filter.Match(rel, false, 0) {
			return nil
		}
		target, err := os.Readlink(path)
		if err != nil {
			return fmt.Errorf("readlink %s: %w", path, err)
		}
		s.sendEntry(ctx, Entry{
			RelPath:    rel,
			Path:       path,
			Type:       Symlink,
			Mode:       uint32(mode),
			UID:        stat.Uid,
			GID:        stat.Gid,
			ModTime:    info.ModTime(),
			AccTime:    atimeFromStat(stat),
			LinkTarget: target,
		})
		return nil

	case mode.IsRegular():
		if s.cfg.Filter != nil && !s.cfg.Filter.Match(rel, false, info.Size()) {
			return nil
		}
		s.sendEntry(ctx, Entry{
			RelPath: rel,
			Path:    path,
			Type:    File,
			Size:    info.Size(),
			Mode:    uint32(mode),
			UID:     stat.Uid,
			GID:     stat.Gid,
			ModTime: info.ModTime(),
			AccTime: atimeFromStat(stat),
		})
		return nil

	default:
		// Sockets, fifos and devices are not replicated.
		return nil
	}
}

// sendEntry delivers e unless the consumer has gone away.
func (s *Scanner) sendEntry(ctx context.Context, e Entry) {
	select {
	case s.entries <- e:
	case <-ctx.Done():
	}
}

func (s *Scanner) sendErr(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// Collect runs a scan to completion and returns entries keyed by relative
// path. A missing root yields an empty map: nothing to compare against.
func Collect(ctx context.Context, cfg ScannerConfig) (map[string]Entry, error) {
	if _, err := os.Lstat(cfg.Root); err != nil {
		if os.IsNotExist(err) {
			return map[string]Entry{}, nil
		}
		return nil, fmt.Errorf("stat %s: %w", cfg.Root, err)
	}

	s := NewScanner(cfg)
	entries, errs := s.Scan(ctx)

	collected := make(map[string]Entry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			collected[e.RelPath] = e
		}
	}()

	var firstErr error
	for err := range errs {
		if firstErr == nil {
			firstErr = err
		}
	}
	<-done

	return collected, firstErr
}
