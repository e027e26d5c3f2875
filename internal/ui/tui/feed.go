package tui

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bamsammich/ditto/internal/event"
	"github.com/bamsammich/ditto/internal/ui"
)

// feedKind classifies a finished feed entry.
type feedKind int

const (
	kindCopied feedKind = iota
	kindDelta
	kindMoved
	kindSkipped
	kindDeleted
	kindFailed
)

// feedEntry is one line of transfer history.
type feedEntry struct {
	kind feedKind
	path string
	size int64
	note string // error text for kindFailed
}

// transfer tracks a file currently being written by a worker.
type transfer struct {
	path    string
	size    int64
	done    int64
	attempt int // last retry attempt, 0 on the first try
	started time.Time
}

// faultEntry records an error permanently; faults are never evicted so the
// final report can list all of them.
type faultEntry struct {
	path string
	text string
	when time.Time
}

// feedView renders the scrolling history plus the in-flight and error
// sections. History is unbounded: a full run's worth of lines is small
// next to the transfer itself.
type feedView struct {
	active  map[int]*transfer // keyed by worker ID
	history []feedEntry
	faults  []faultEntry
	offset  int  // viewport offset into history
	follow  bool // pin viewport to the newest entry
}

func newFeedView() feedView {
	return feedView{
		active: make(map[int]*transfer),
		follow: true,
	}
}

func (f *feedView) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.FileStarted:
		f.active[ev.WorkerID] = &transfer{
			path:    ev.Path,
			size:    ev.Size,
			started: ev.Timestamp,
		}

	case event.FileProgress:
		if tr, ok := f.active[ev.WorkerID]; ok {
			tr.done = ev.Size
		}

	case event.FileRetrying:
		if tr, ok := f.active[ev.WorkerID]; ok {
			tr.attempt = ev.Attempt
		}

	case event.FileCompleted:
		delete(f.active, ev.WorkerID)
		kind := kindCopied
		if ev.Delta {
			kind = kindDelta
		}
		f.push(feedEntry{kind: kind, path: ev.Path, size: ev.Size})

	case event.FileMoved:
		delete(f.active, ev.WorkerID)
		f.push(feedEntry{kind: kindMoved, path: ev.Path, size: ev.Size})

	case event.FileFailed:
		delete(f.active, ev.WorkerID)
		text := "error"
		if ev.Error != nil {
			text = ev.Error.Error()
		}
		f.push(feedEntry{kind: kindFailed, path: ev.Path, size: ev.Size, note: text})
		f.faults = append(f.faults, faultEntry{path: ev.Path, text: text, when: ev.Timestamp})

	case event.FileSkipped:
		f.push(feedEntry{kind: kindSkipped, path: ev.Path, size: ev.Size})

	case event.DeleteFile:
		f.push(feedEntry{kind: kindDeleted, path: ev.Path})

	case event.VerifyFailed:
		f.faults = append(f.faults, faultEntry{path: ev.Path, text: "CHECKSUM MISMATCH", when: ev.Timestamp})

	case event.DirCreated, event.SymlinkCreated:
		delete(f.active, ev.WorkerID)
	}
}

func (f *feedView) push(e feedEntry) {
	f.history = append(f.history, e)
}

// scrollBy moves the viewport n lines (negative is up) and unpins it.
func (f *feedView) scrollBy(n int) {
	f.follow = false
	f.offset += n
	if f.offset < 0 {
		f.offset = 0
	}
}

// scrollToTop jumps to the oldest entry.
func (f *feedView) scrollToTop() {
	f.follow = false
	f.offset = 0
}

// scrollToBottom re-pins the viewport to the newest entry.
func (f *feedView) scrollToBottom() {
	f.follow = true
}

// view lays out three sections top to bottom: in-flight transfers, the
// scrollable history viewport, and the newest errors pinned at the bottom.
func (f *feedView) view(width, height int, speed float64) string {
	if width < 20 {
		width = 20
	}

	activeRows := len(f.active)
	if maxActive := max(height/3, 1); activeRows > maxActive {
		activeRows = maxActive
	}
	faultRows := min(len(f.faults), 5)

	dividers := 0
	for _, n := range []int{activeRows, faultRows, len(f.history)} {
		if n > 0 {
			dividers++
		}
	}

	historyRows := max(height-activeRows-faultRows-dividers, 1)

	// Pin or clamp the viewport.
	maxOffset := max(len(f.history)-historyRows, 0)
	if f.follow || f.offset > maxOffset {
		f.offset = maxOffset
	}

	var b strings.Builder
	if s := f.renderActive(activeRows); s != "" {
		b.WriteString(th.divider.Render("─ in-flight"))
		b.WriteByte('\n')
		b.WriteString(s)
	}
	if s := f.renderHistory(historyRows, speed); s != "" {
		b.WriteString(th.divider.Render(fmt.Sprintf("─ completed (%d)", len(f.history))))
		b.WriteByte('\n')
		b.WriteString(s)
	}
	if s := f.renderFaults(faultRows); s != "" {
		b.WriteString(th.divider.Render(fmt.Sprintf("─ errors (%d)", len(f.faults))))
		b.WriteByte('\n')
		b.WriteString(s)
	}
	return b.String()
}

// renderActive lists in-flight transfers in worker order so lines don't
// jump around between frames.
func (f *feedView) renderActive(rows int) string {
	if len(f.active) == 0 {
		return ""
	}

	ids := make([]int, 0, len(f.active))
	for id := range f.active {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	if len(ids) > rows {
		ids = ids[:rows]
	}

	var b strings.Builder
	for _, id := range ids {
		tr := f.active[id]
		var pct float64
		if tr.size > 0 {
			pct = float64(tr.done) / float64(tr.size)
		}
		fmt.Fprintf(&b, "  %s  %s  %s  %s",
			th.active.Render("⟩"),
			styledPath(tr.path),
			th.size.Render(ui.FormatBytes(tr.size)),
			progressCells(pct))
		if tr.attempt > 0 {
			b.WriteString("  " + th.notice.Render(fmt.Sprintf("retry %d", tr.attempt)))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (f *feedView) renderHistory(rows int, speed float64) string {
	if len(f.history) == 0 {
		return ""
	}

	end := min(f.offset+rows, len(f.history))
	var b strings.Builder
	for _, e := range f.history[f.offset:end] {
		icon, extra := entryDecoration(e, speed)
		fmt.Fprintf(&b, "  %s  %s  %s",
			icon, styledPath(e.path),
			th.size.Render(fmt.Sprintf("%10s", ui.FormatBytes(e.size))))
		if extra != "" {
			b.WriteString("  " + extra)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func entryDecoration(e feedEntry, speed float64) (icon, extra string) {
	switch e.kind {
	case kindFailed:
		return th.iconFail.Render("✗"), th.errText.Render(e.note)
	case kindSkipped:
		return th.iconSkip.Render("–"), th.iconSkip.Render("skipped")
	case kindDeleted:
		return th.iconSkip.Render("×"), th.iconSkip.Render("deleted")
	case kindMoved:
		return th.iconOK.Render("✓"), th.speed.Render("moved")
	case kindDelta:
		return th.iconOK.Render("✓"), th.speed.Render("delta")
	default:
		if speed > 0 {
			return th.iconOK.Render("✓"), th.speed.Render(ui.FormatRate(speed))
		}
		return th.iconOK.Render("✓"), ""
	}
}

// renderFaults shows the newest errors, oldest first within the window.
func (f *feedView) renderFaults(rows int) string {
	if len(f.faults) == 0 || rows <= 0 {
		return ""
	}

	start := max(len(f.faults)-rows, 0)
	var b strings.Builder
	for _, e := range f.faults[start:] {
		fmt.Fprintf(&b, "  %s  %s  %s\n",
			th.iconFail.Render("✗"),
			th.errPath.Render(e.path),
			th.errText.Render(e.text))
	}
	return b.String()
}

// viewFaults renders the error-only mode: every recorded fault, newest last.
func (f *feedView) viewFaults(height int) string {
	if len(f.faults) == 0 {
		return "  " + th.iconSkip.Render("no errors") + "\n"
	}

	start := max(len(f.faults)-height, 0)
	var b strings.Builder
	b.WriteString(th.divider.Render(fmt.Sprintf("─ errors (%d)", len(f.faults))))
	b.WriteByte('\n')
	for _, e := range f.faults[start:] {
		fmt.Fprintf(&b, "  %s  %s  %s\n",
			th.iconFail.Render("✗"),
			th.errPath.Render(e.path),
			th.errText.Render(e.text))
	}
	return b.String()
}

// styledPath splits a relative path into a muted directory part and a
// bright filename part.
func styledPath(path string) string {
	dir, base := filepath.Dir(path), filepath.Base(path)
	if dir == "." || dir == "" {
		return th.file.Render(base)
	}
	return th.dir.Render(dir+"/") + th.file.Render(base)
}

// progressCells renders a four-cell bar at quarter resolution.
func progressCells(pct float64) string {
	filled := int(min(max(pct, 0), 1) * 4)
	return th.barOn.Render(strings.Repeat("▪", filled)) +
		th.barOff.Render(strings.Repeat("□", 4-filled))
}
