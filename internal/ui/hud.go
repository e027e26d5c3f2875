package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bamsammich/ditto/internal/stats"
)

const (
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

// hudPresenter is the interactive terminal mode: a scrolling feed of finished
// files above a small status block that repaints in place.
type hudPresenter struct {
	w         io.Writer
	stats     stats.ReadTicker
	forceFeed bool
	forceRate bool
	workers   int
	width     int // terminal columns; 0 means detect in Run

	// Mutated only from Run's goroutine.
	hudDrawn     bool
	hudLineCount int // rows the last paint occupied
	rateMode     bool
	rateSwitched bool // the switch notice prints once per run
	busyWorkers  map[int]bool
	lastHUDDraw  time.Time
}

const (
	rateThreshHigh   = 200.0 // files/s that flips the feed into rate view
	rateThreshLow    = 100.0 // files/s that flips it back
	sparklineWidth   = 20
	progressBarWidth = 20
	hudMinInterval   = 50 * time.Millisecond // repaint floor during event bursts
)

func (p *hudPresenter) Run(events <-chan Event) error {
	if p.busyWorkers == nil {
		p.busyWorkers = make(map[int]bool)
	}
	if p.width == 0 {
		p.width = 80
		if f, ok := p.w.(*os.File); ok && IsTTY(f.Fd()) {
			p.width = TermWidth(f.Fd())
		}
	}
	p.rateMode = p.forceRate

	// The sampling tick feeds the throughput ring. The first sample lands
	// after 250ms so the speed readout is not blank for a full second, then
	// the ticker settles into a 1s cadence.
	sample := time.NewTicker(250 * time.Millisecond)
	defer sample.Stop()
	seeded := false

	// Repaint on a timer as well, or the HUD would freeze while one large
	// file copies with no events in between.
	repaint := time.NewTicker(100 * time.Millisecond)
	defer repaint.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-sample.C:
			p.stats.Tick()
			if !seeded {
				seeded = true
				sample.Reset(time.Second)
			}

		case <-repaint.C:
			p.maybeSwitch()
			p.drawHUD()
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case FileStarted:
		p.busyWorkers[ev.WorkerID] = true

	case FileCompleted:
		delete(p.busyWorkers, ev.WorkerID)
		p.feedLine(func() { p.printFileCompleted(ev) })

	case FileFailed:
		delete(p.busyWorkers, ev.WorkerID)
		p.feedLine(func() { p.printFileFailed(ev) })

	case FileSkipped:
		p.feedLine(func() {
			fmt.Fprintf(p.w, "–  %s  %10s  %sskipped%s\n",
				p.path(ev.Path), FormatBytes(ev.Size), ansiDim, ansiReset)
		})

	case FileRetrying:
		p.feedLine(func() {
			fmt.Fprintf(p.w, "↻  %s  %sattempt %d%s\n",
				p.path(ev.Path), ansiDim, ev.Attempt, ansiReset)
		})

	case DeleteFile:
		p.feedLine(func() {
			fmt.Fprintf(p.w, "×  %s  %sdeleted%s\n",
				p.path(ev.Path), ansiDim, ansiReset)
		})

	case VerifyStarted:
		p.clearHUD()
		fmt.Fprintf(p.w, "%sverifying checksums...%s\n", ansiDim, ansiReset)

	case VerifyOK:
		// Nothing to print; only mismatches warrant a feed line.

	case VerifyFailed:
		p.clearHUD()
		fmt.Fprintf(p.w, "✗  %s  CHECKSUM MISMATCH\n", p.path(ev.Path))
		p.drawHUD()

	case DirCreated, SymlinkCreated:
		delete(p.busyWorkers, ev.WorkerID)
	}
}

// feedLine prints one scrolling feed line between a HUD clear and repaint.
// Rate mode suppresses the feed entirely.
func (p *hudPresenter) feedLine(print func()) {
	if p.rateMode {
		return
	}
	p.clearHUD()
	print()
	p.drawHUD()
}

func (p *hudPresenter) printFileCompleted(ev Event) {
	line := fmt.Sprintf("✓  %s  %10s", p.path(ev.Path), FormatBytes(ev.Size))
	if speed := p.stats.RollingSpeed(5); speed > 0 {
		line += "  " + FormatRate(speed)
	}
	if ev.Delta {
		line += "  " + ansiDim + "delta" + ansiReset
	}
	fmt.Fprintln(p.w, line)
}

func (p *hudPresenter) printFileFailed(ev Event) {
	fmt.Fprintf(p.w, "✗  %s  %10s  %s\n",
		p.path(ev.Path), FormatBytes(ev.Size), errText(ev.Error))
}

// maybeSwitch flips between the file feed and the aggregate rate view based
// on recent file throughput. The two thresholds give it hysteresis so a rate
// hovering near the boundary does not flap the display.
func (p *hudPresenter) maybeSwitch() {
	if p.forceFeed || p.forceRate {
		return
	}
	fps := p.stats.RollingFilesPerSec(2)
	switch {
	case p.rateMode && fps < rateThreshLow:
		p.rateMode = false
	case !p.rateMode && fps > rateThreshHigh:
		p.rateMode = true
		if p.rateSwitched {
			return
		}
		p.rateSwitched = true
		p.clearHUD()
		fmt.Fprintf(p.w, "↯ rate view (%s files/s · use --feed to see individual files)\n",
			FormatCount(int64(fps)))
	}
}

// maybeDrawHUD repaints unless the last paint was under hudMinInterval ago.
func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) >= hudMinInterval {
		p.drawHUD()
	}
}

func (p *hudPresenter) drawHUD() {
	p.clearHUD()

	snap := p.stats.Snapshot()
	lines := make([]string, 0, 3)
	if p.rateMode {
		lines = append(lines, p.rateLine(snap))
	}
	lines = append(lines, p.throughputLine(snap), p.progressLine(snap))

	for _, l := range lines {
		fmt.Fprintln(p.w, l)
	}
	p.hudDrawn = true
	p.hudLineCount = len(lines)
	p.lastHUDDraw = time.Now()
}

// rateLine is the extra files/s row shown in rate view.
func (p *hudPresenter) rateLine(snap stats.Snapshot) string {
	fps := p.stats.RollingFilesPerSec(5)
	spark := Sparkline(p.stats.SparklineData(sparklineWidth), sparklineWidth)
	return fmt.Sprintf("files/s  %s  %s/s   %s / %s done",
		spark, FormatCount(int64(fps)),
		FormatCount(snap.FilesCopied), FormatCount(snap.FilesTotal))
}

// throughputLine carries the byte sparkline, the rolling speed, and totals.
func (p *hudPresenter) throughputLine(snap stats.Snapshot) string {
	spark := Sparkline(p.stats.SparklineData(sparklineWidth), sparklineWidth)
	return fmt.Sprintf("       %s   %s   %s / %s",
		spark, FormatRate(p.stats.RollingSpeed(10)),
		FormatBytes(snap.BytesCopied), FormatBytes(snap.BytesTotal))
}

// progressLine is the percent bar row with file counts, ETA, and busy workers.
func (p *hudPresenter) progressLine(snap stats.Snapshot) string {
	var pct float64
	if snap.BytesTotal > 0 {
		pct = float64(snap.BytesCopied) / float64(snap.BytesTotal)
	}
	return fmt.Sprintf(" %3.0f%%  %s   %s / %s files   eta %s   %d/%dw",
		pct*100, ProgressBar(pct, progressBarWidth),
		FormatCount(snap.FilesCopied), FormatCount(snap.FilesTotal),
		FormatETA(p.stats.ETA()),
		len(p.busyWorkers), p.workers)
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	// Cursor up over the old HUD rows, then wipe to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", max(p.hudLineCount, 2))
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

// path shortens long paths to fit the feed column, keeping the tail since it
// carries the filename and nearest directories, then applies styling.
func (p *hudPresenter) path(s string) string {
	limit := max(p.width-36, 20)
	if r := []rune(s); len(r) > limit {
		s = "…" + string(r[len(r)-limit+1:])
	}
	return styledPath(s)
}

// styledPath dims the directory portion so the filename stands out.
func styledPath(path string) string {
	dir, base := filepath.Split(path)
	if dir == "" {
		return base
	}
	return ansiDim + dir + ansiReset + base
}
