package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/ditto/internal/event"
	"github.com/bamsammich/ditto/internal/filter"
	"github.com/bamsammich/ditto/internal/stats"
)

// DeleteConfig controls the delete pass.
type DeleteConfig struct {
	Events  chan<- event.Event
	Filter  *filter.Chain
	Stats   *stats.Collector
	DstRoot string
	DryRun  bool
}

func (c DeleteConfig) emit(e event.Event) {
	emitEvent(c.Events, e)
}

// DeleteExtraneous removes destination entries that have no counterpart in
// the source. src holds every relative path the scanner saw; dst is the
// destination snapshot taken before the copy pass. Files and symlinks go
// first, then directories deepest-first. Returns the number of removals.
func DeleteExtraneous(ctx context.Context, cfg DeleteConfig, src map[string]struct{}, dst map[string]Entry) (int, error) {
	var files []string
	var dirs []string
	seen := make(map[string]struct{}, len(dst))

	for relPath, entry := range dst {
		if _, ok := src[relPath]; ok {
			continue
		}
		// Excluded paths were intentionally not copied; leave them alone.
		if cfg.Filter != nil && !cfg.Filter.Match(relPath, entry.IsDir(), entry.Size) {
			continue
		}
		canon := filepath.Clean(relPath)
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		if entry.IsDir() {
			dirs = append(dirs, canon)
		} else {
			files = append(files, canon)
		}
	}

	sort.Strings(files)
	// Reverse-lexical order puts children before their parents.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	deleted := 0

	for _, relPath := range files {
		select {
		case <-ctx.Done():
			return deleted, ctx.Err()
		default:
		}

		cfg.emit(event.Event{Type: event.DeleteFile, Path: relPath})
		if !cfg.DryRun {
			abs := filepath.Join(cfg.DstRoot, filepath.FromSlash(relPath))
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				return deleted, fmt.Errorf("delete %s: %w", relPath, err)
			}
		}
		deleted++
		if cfg.Stats != nil {
			cfg.Stats.AddFilesDeleted(1)
		}
	}

	for _, relPath := range dirs {
		select {
		case <-ctx.Done():
			return deleted, ctx.Err()
		default:
		}

		cfg.emit(event.Event{Type: event.DeleteFile, Path: relPath})
		if !cfg.DryRun {
			abs := filepath.Join(cfg.DstRoot, filepath.FromSlash(relPath))
			if err := os.Remove(abs); err != nil {
				// A directory kept non-empty by excluded content stays.
				if os.IsNotExist(err) || errors.Is(err, unix.ENOTEMPTY) {
					continue
				}
				return deleted, fmt.Errorf("delete dir %s: %w", relPath, err)
			}
		}
		deleted++
		if cfg.Stats != nil {
			cfg.Stats.AddFilesDeleted(1)
		}
	}

	return deleted, nil
}
