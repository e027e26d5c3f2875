package engine

import (
	"path/filepath"

	"github.com/bamsammich/ditto/internal/stats"
)

// deltaMinSize is the smallest file eligible for delta transfer. Below
// this, signature overhead costs more than resending the file.
const deltaMinSize = 1024

// CompareConfig controls change detection.
type CompareConfig struct {
	// Checksum compares content hashes instead of size+mtime.
	Checksum bool
	// NoDelta forces whole-file copies for changed files.
	NoDelta bool
}

// Comparator decides, per scanned source entry, what work the destination
// needs. It consults a pre-collected destination snapshot.
type Comparator struct {
	cfg     CompareConfig
	dst     map[string]Entry
	dstRoot string
	stats   *stats.Collector
}

// NewComparator creates a comparator over a destination snapshot.
func NewComparator(cfg CompareConfig, dstRoot string, dst map[string]Entry, collector *stats.Collector) *Comparator {
	return &Comparator{cfg: cfg, dst: dst, dstRoot: dstRoot, stats: collector}
}

// Decide returns the task for a source entry, or ok=false when the
// destination is already up to date.
func (c *Comparator) Decide(e Entry) (SyncTask, bool) {
	dstPath := filepath.Join(c.dstRoot, filepath.FromSlash(e.RelPath))
	cur, exists := c.dst[e.RelPath]

	switch e.Type {
	case Dir:
		// Directories always replicate: MkdirAll is idempotent and the
		// metadata pass keeps modes and times current.
		return SyncTask{
			Entry:   e,
			DstPath: dstPath,
			Kind:    TaskDir,
			Replace: exists && cur.Type != Dir,
		}, true

	case Symlink:
		if exists && cur.Type == Symlink && cur.LinkTarget == e.LinkTarget {
			c.stats.AddFilesSkipped(1)
			return SyncTask{}, false
		}
		return SyncTask{
			Entry:   e,
			DstPath: dstPath,
			Kind:    TaskSymlink,
			Replace: exists && cur.Type != Symlink,
		}, true
	}

	// Regular file.
	if !exists {
		return SyncTask{Entry: e, DstPath: dstPath, Kind: TaskCopy}, true
	}
	if cur.Type != File {
		return SyncTask{Entry: e, DstPath: dstPath, Kind: TaskCopy, Replace: true}, true
	}

	if !c.changed(e, cur) {
		c.stats.AddFilesSkipped(1)
		return SyncTask{}, false
	}

	if c.deltaEligible(e.Size, cur.Size) {
		return SyncTask{Entry: e, DstPath: dstPath, BasePath: dstPath, Kind: TaskDelta}, true
	}
	return SyncTask{Entry: e, DstPath: dstPath, Kind: TaskCopy}, true
}

// changed reports whether the source differs from the destination copy.
func (c *Comparator) changed(src, dst Entry) bool {
	if c.cfg.Checksum {
		same, err := FilesIdentical(src.Path, dst.Path)
		if err != nil {
			// Unreadable side: recopy re-establishes a known state.
			return true
		}
		return !same
	}
	if src.Size != dst.Size {
		return true
	}
	return src.ModTime.After(dst.ModTime)
}

// deltaEligible applies the delta heuristic: both sides big enough to
// amortize signature cost, and sizes within 2x of each other. Heavily
// grown or shrunk files rarely share enough blocks to win.
func (c *Comparator) deltaEligible(srcSize, dstSize int64) bool {
	if c.cfg.NoDelta {
		return false
	}
	if srcSize < deltaMinSize || dstSize < deltaMinSize {
		return false
	}
	larger := srcSize
	diff := srcSize - dstSize
	if dstSize > srcSize {
		larger = dstSize
		diff = dstSize - srcSize
	}
	return float64(diff)/float64(larger) < 0.5
}
