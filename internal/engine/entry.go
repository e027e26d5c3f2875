package engine

import (
	"os"
	"time"

	"github.com/bamsammich/ditto/internal/meta"
)

// EntryType identifies the kind of filesystem entry.
type EntryType int

const (
	File EntryType = iota
	Dir
	Symlink
)

func (t EntryType) String() string {
	switch t {
	case File:
		return "file"
	case Dir:
		return "dir"
	case Symlink:
		return "symlink"
	}
	return "unknown"
}

// Entry describes one scanned filesystem node, relative to its scan root.
type Entry struct {
	RelPath    string // slash-separated, relative to the scan root
	Path       string // absolute path under the scan root
	LinkTarget string // symlink target (Type == Symlink)
	ModTime    time.Time
	AccTime    time.Time
	Size       int64
	Mode       uint32
	UID        uint32
	GID        uint32
	Type       EntryType
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Type == Dir }

// metaSource adapts the entry for the metadata applier.
func (e Entry) metaSource() meta.Source {
	return meta.Source{
		Mode:    os.FileMode(e.Mode),
		ModTime: e.ModTime,
		AccTime: e.AccTime,
		UID:     e.UID,
		GID:     e.GID,
		Path:    e.Path,
	}
}
