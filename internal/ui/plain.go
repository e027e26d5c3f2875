package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/ditto/internal/stats"
)

// How often the non-TTY progress line is emitted to stderr.
const plainProgressEvery = 5 * time.Second

// plainPresenter writes one line per file action to stdout. It is the mode
// for pipes and log capture, so stdout stays machine-greppable and progress
// plus retry noise go to stderr.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   stats.ReadTicker
	verbose bool
}

func (p *plainPresenter) Run(events <-chan Event) error {
	progress := time.NewTicker(plainProgressEvery)
	defer progress.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.line(ev)
		case <-progress.C:
			p.progress()
		}
	}
}

func (p *plainPresenter) line(ev Event) {
	switch ev.Type {
	case FileCompleted:
		note := ""
		if ev.Delta {
			note = "  (delta)"
		}
		speed := p.stats.RollingSpeed(5)
		fmt.Fprintf(p.w, "%s  %s  %s%s\n", ev.Path, FormatBytes(ev.Size), FormatRate(speed), note)
	case FileFailed:
		fmt.Fprintf(p.w, "%s  %s  %s\n", ev.Path, FormatBytes(ev.Size), errText(ev.Error))
	case FileSkipped:
		fmt.Fprintf(p.w, "%s  skipped\n", ev.Path)
	case FileRetrying:
		note := ""
		if ev.Error != nil {
			note = "  " + ev.Error.Error()
		}
		fmt.Fprintf(p.errW, "retry %d: %s%s\n", ev.Attempt, ev.Path, note)
	case FileMoved:
		// Source-side removals are only interesting when asked for.
		if p.verbose {
			fmt.Fprintf(p.w, "moved source: %s\n", ev.Path)
		}
	case DeleteFile:
		fmt.Fprintf(p.w, "delete: %s\n", ev.Path)
	case VerifyStarted:
		fmt.Fprintln(p.w, "verifying...")
	case VerifyFailed:
		fmt.Fprintf(p.w, "MISMATCH: %s\n", ev.Path)
	case VerifyOK:
		// silent in plain mode
	}
}

func errText(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}

func (p *plainPresenter) progress() {
	snap := p.stats.Snapshot()
	if snap.BytesTotal == 0 {
		fmt.Fprintf(p.errW, "progress: %s copied %s files\n",
			FormatBytes(snap.BytesCopied), FormatCount(snap.FilesCopied))
		return
	}

	pct := float64(snap.BytesCopied) / float64(snap.BytesTotal) * 100
	fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s %s/%s files %s eta %s\n",
		pct,
		FormatBytes(snap.BytesCopied), FormatBytes(snap.BytesTotal),
		FormatCount(snap.FilesCopied), FormatCount(snap.FilesTotal),
		FormatRate(p.stats.RollingSpeed(10)),
		FormatETA(p.stats.ETA()),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}
