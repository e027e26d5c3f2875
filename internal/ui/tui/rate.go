package tui

import (
	"fmt"
	"strings"

	"github.com/bamsammich/ditto/internal/event"
	"github.com/bamsammich/ditto/internal/stats"
	"github.com/bamsammich/ditto/internal/ui"
)

// rateView is the aggregate throughput display used when individual file
// lines would scroll too fast to read.
type rateView struct {
	busy map[int]bool
}

func newRateView() rateView {
	return rateView{busy: make(map[int]bool)}
}

func (r *rateView) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.FileStarted:
		r.busy[ev.WorkerID] = true
	case event.FileCompleted, event.FileMoved, event.FileFailed,
		event.DirCreated, event.SymlinkCreated:
		delete(r.busy, ev.WorkerID)
	}
}

func (r *rateView) view(width, height int, snap stats.Snapshot, src stats.ReadTicker, totalWorkers int) string {
	if width < 20 {
		width = 20
	}

	var b strings.Builder

	// Big throughput number.
	speed := src.RollingSpeed(5)
	b.WriteString("  " + th.bigNum.Render(ui.FormatRate(speed)))
	b.WriteString("\n\n")

	// Sparkline across the full width.
	sparkWidth := max(width-4, 10)
	b.WriteString("  " + th.spark.Render(ui.Sparkline(src.SparklineData(sparkWidth), sparkWidth)))
	b.WriteString("\n\n")

	// Throughput cells.
	fps := src.RollingFilesPerSec(5)
	fmt.Fprintf(&b, "  %s   %s   %s\n",
		th.speed.Render(fmt.Sprintf("%s files/s", ui.FormatCount(int64(fps)))),
		th.speed.Render(ui.FormatRate(speed)),
		th.size.Render(fmt.Sprintf("%s / %s files",
			ui.FormatCount(snap.FilesCopied), ui.FormatCount(snap.FilesTotal))))

	// Session counters, shown once any are nonzero.
	if line := sessionCounters(snap); line != "" {
		b.WriteString("  " + th.size.Render(line) + "\n")
	}
	b.WriteByte('\n')

	b.WriteString("  " + th.divider.Render("workers") + "  ")
	b.WriteString(r.workerGrid(totalWorkers))
	b.WriteByte('\n')

	return b.String()
}

func sessionCounters(snap stats.Snapshot) string {
	var parts []string
	if snap.FilesDelta > 0 {
		parts = append(parts, fmt.Sprintf("%s delta", ui.FormatCount(snap.FilesDelta)))
	}
	if snap.FilesMoved > 0 {
		parts = append(parts, fmt.Sprintf("%s moved", ui.FormatCount(snap.FilesMoved)))
	}
	if snap.FilesDeleted > 0 {
		parts = append(parts, fmt.Sprintf("%s deleted", ui.FormatCount(snap.FilesDeleted)))
	}
	if snap.FilesFailed > 0 {
		parts = append(parts, fmt.Sprintf("%s failed", ui.FormatCount(snap.FilesFailed)))
	}
	return strings.Join(parts, " · ")
}

// workerGrid draws one cell per worker, wrapping so wide pools don't
// overflow the line.
func (r *rateView) workerGrid(total int) string {
	const perRow = 32
	var b strings.Builder
	for i := range total {
		if i > 0 && i%perRow == 0 {
			b.WriteString("\n           ")
		}
		if r.busy[i] {
			b.WriteString(th.workerOn.Render("▪"))
		} else {
			b.WriteString(th.workerNo.Render("□"))
		}
	}
	return b.String()
}
