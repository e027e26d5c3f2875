package engine

// TaskKind discriminates scheduler work items.
type TaskKind int

const (
	// TaskCopy replaces the destination with a whole-file copy of the source.
	TaskCopy TaskKind = iota
	// TaskDelta rebuilds the destination from its current content plus the
	// changed regions of the source.
	TaskDelta
	// TaskDir creates a destination directory.
	TaskDir
	// TaskSymlink recreates a symlink at the destination.
	TaskSymlink
)

func (k TaskKind) String() string {
	switch k {
	case TaskCopy:
		return "copy"
	case TaskDelta:
		return "delta"
	case TaskDir:
		return "mkdir"
	case TaskSymlink:
		return "symlink"
	}
	return "unknown"
}

// SyncTask is one unit of work, produced by the comparator and consumed
// exactly once by the worker pool.
type SyncTask struct {
	Entry
	DstPath  string
	BasePath string // delta basis: the existing destination file
	Kind     TaskKind
	// Replace marks a type conflict: the destination holds a different kind
	// of node, which the worker removes before writing.
	Replace bool
}
