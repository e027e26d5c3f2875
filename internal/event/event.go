// Package event defines the progress notifications emitted while a transfer
// runs. The engine produces them on a single channel and exactly one
// presenter consumes them.
package event

import "time"

// Type discriminates Event payloads. The zero value is not a valid type.
type Type int

// Transfer lifecycle, in rough emission order.
const (
	ScanStarted Type = iota + 1
	ScanComplete
	FileStarted
	FileProgress
	FileCompleted
	FileFailed
	FileSkipped
	FileRetrying
	FileMoved
	DirCreated
	SymlinkCreated
	DeleteFile
	VerifyStarted
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	ScanStarted:    "ScanStarted",
	ScanComplete:   "ScanComplete",
	FileStarted:    "FileStarted",
	FileProgress:   "FileProgress",
	FileCompleted:  "FileCompleted",
	FileFailed:     "FileFailed",
	FileSkipped:    "FileSkipped",
	FileRetrying:   "FileRetrying",
	FileMoved:      "FileMoved",
	DirCreated:     "DirCreated",
	SymlinkCreated: "SymlinkCreated",
	DeleteFile:     "DeleteFile",
	VerifyStarted:  "VerifyStarted",
	VerifyOK:       "VerifyOK",
	VerifyFailed:   "VerifyFailed",
}

func (t Type) String() string {
	if t <= 0 || int(t) >= len(typeNames) {
		return "Unknown"
	}
	return typeNames[t]
}

// Event is one progress notification. Most fields are meaningful only for
// particular types; the comments note which.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // relative to the transfer root
	Size      int64  // file bytes, or bytes so far for FileProgress
	Total     int64  // ScanComplete: files discovered
	TotalSize int64  // ScanComplete: bytes discovered
	Error     error  // FileFailed, FileRetrying, VerifyFailed
	WorkerID  int
	Attempt   int   // FileRetrying: the attempt about to run
	Delta     bool  // FileCompleted: patched in place instead of rewritten
	Literal   int64 // FileCompleted: literal bytes sent when Delta is set
}
