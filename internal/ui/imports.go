package ui

import "github.com/bamsammich/ditto/internal/event"

// Event is the engine event type presenters consume.
type Event = event.Event

// Re-export event types for convenience.
const (
	ScanStarted    = event.ScanStarted
	ScanComplete   = event.ScanComplete
	FileStarted    = event.FileStarted
	FileProgress   = event.FileProgress
	FileCompleted  = event.FileCompleted
	FileFailed     = event.FileFailed
	FileSkipped    = event.FileSkipped
	FileRetrying   = event.FileRetrying
	FileMoved      = event.FileMoved
	DirCreated     = event.DirCreated
	SymlinkCreated = event.SymlinkCreated
	DeleteFile     = event.DeleteFile
	VerifyStarted  = event.VerifyStarted
	VerifyOK       = event.VerifyOK
	VerifyFailed   = event.VerifyFailed
)
