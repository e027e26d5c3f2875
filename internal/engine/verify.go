package engine

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/bamsammich/ditto/internal/event"
	"github.com/bamsammich/ditto/internal/filter"
	"github.com/bamsammich/ditto/internal/stats"
)

// VerifyConfig controls the post-sync verification pass.
type VerifyConfig struct {
	SrcRoot string
	DstRoot string
	Workers int
	Filter  *filter.Chain
	Events  chan<- event.Event
	Stats   *stats.Collector
}

// VerifyResult holds the outcome of a verification pass.
type VerifyResult struct {
	Verified int64
	Failed   int64
	Errors   []VerifyError
}

// VerifyError records a single checksum mismatch.
type VerifyError struct {
	Path    string
	SrcHash string
	DstHash string
}

// Verify re-reads every regular source file and compares BLAKE3 checksums
// against its destination copy. A file missing or unreadable on either side
// counts as a failure. Fans out to cfg.Workers goroutines.
func Verify(ctx context.Context, cfg VerifyConfig) VerifyResult {
	emitEvent(cfg.Events, event.Event{Type: event.VerifyStarted})

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	files := collectVerifyFiles(ctx, cfg.SrcRoot, cfg.Filter)

	var mu sync.Mutex
	var result VerifyResult

	fail := func(relPath, srcHash, dstHash string, err error) {
		mu.Lock()
		result.Failed++
		result.Errors = append(result.Errors, VerifyError{Path: relPath, SrcHash: srcHash, DstHash: dstHash})
		mu.Unlock()
		if cfg.Stats != nil {
			cfg.Stats.AddFilesVerifyFailed(1)
		}
		emitEvent(cfg.Events, event.Event{Type: event.VerifyFailed, Path: relPath, Error: err})
	}
	ok := func(relPath string) {
		mu.Lock()
		result.Verified++
		mu.Unlock()
		if cfg.Stats != nil {
			cfg.Stats.AddFilesVerified(1)
		}
		emitEvent(cfg.Events, event.Event{Type: event.VerifyOK, Path: relPath})
	}

	taskCh := make(chan string, workers*2)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for relPath := range taskCh {
				select {
				case <-ctx.Done():
					return
				default:
				}

				srcHash, srcErr := HashFile(filepath.Join(cfg.SrcRoot, filepath.FromSlash(relPath)))
				dstHash, dstErr := HashFile(filepath.Join(cfg.DstRoot, filepath.FromSlash(relPath)))
				switch {
				case srcErr != nil:
					fail(relPath, "unreadable", "", srcErr)
				case dstErr != nil:
					fail(relPath, srcHash, "unreadable", dstErr)
				case srcHash != dstHash:
					fail(relPath, srcHash, dstHash, nil)
				default:
					ok(relPath)
				}
			}
		}()
	}

	for _, f := range files {
		select {
		case <-ctx.Done():
		case taskCh <- f:
			continue
		}
		break
	}
	close(taskCh)
	wg.Wait()

	return result
}

// collectVerifyFiles walks the source tree and returns relative paths of
// regular files that pass the filter. Walking the source, not the
// destination, makes a file that never arrived a verification failure.
func collectVerifyFiles(ctx context.Context, srcRoot string, f *filter.Chain) []string {
	var files []string
	_ = filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			// An excluded directory prunes its whole subtree, matching
			// what the scanner replicated.
			if f != nil && path != srcRoot && !f.Match(rel, true, 0) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if f != nil {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if !f.Match(rel, false, info.Size()) {
				return nil
			}
		}

		files = append(files, rel)
		return nil
	})
	return files
}

func emitEvent(ch chan<- event.Event, e event.Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
