package ui

import (
	"fmt"
	"strings"

	"github.com/bamsammich/ditto/internal/stats"
)

// CompletionSummary renders the end-of-run line shared by every presenter.
// Segments that counted nothing are omitted, so a plain copy reads
//
//	done ✓  files 48,917  size 2.1 GB  avg 641 MB/s  time 3m 17s  errors 0
//
// and delta, deleted, moved, and verified segments appear only when those
// features ran.
func CompletionSummary(snap stats.Snapshot) string {
	var avgSpeed float64
	if secs := snap.Elapsed.Seconds(); secs > 0 {
		avgSpeed = float64(snap.BytesCopied) / secs
	}

	icon := "✓"
	if snap.FilesFailed > 0 {
		icon = "✗"
	}

	parts := []string{
		"done " + icon,
		"files " + FormatCount(snap.FilesCopied),
		"size " + FormatBytes(snap.BytesCopied),
		"avg " + FormatRate(avgSpeed),
		"time " + FormatDuration(snap.Elapsed),
	}
	if snap.FilesDelta > 0 {
		parts = append(parts, "delta "+FormatCount(snap.FilesDelta))
	}
	if snap.FilesDeleted > 0 {
		parts = append(parts, "deleted "+FormatCount(snap.FilesDeleted))
	}
	if snap.FilesMoved > 0 {
		parts = append(parts, "moved "+FormatCount(snap.FilesMoved))
	}
	if snap.FilesVerified > 0 || snap.FilesVerifyFailed > 0 {
		parts = append(parts, "verified "+FormatCount(snap.FilesVerified))
	}
	parts = append(parts, fmt.Sprintf("errors %d", snap.FilesFailed+snap.FilesVerifyFailed))

	return strings.Join(parts, "  ")
}
