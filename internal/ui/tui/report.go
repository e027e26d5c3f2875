package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/ditto/internal/stats"
	"github.com/bamsammich/ditto/internal/ui"
)

// reportPrompt is the single-line text input shown when saving a report.
type reportPrompt struct {
	active bool
	text   string
	cursor int
}

func (p *reportPrompt) open(suggestion string) {
	p.active = true
	p.text = suggestion
	p.cursor = len(suggestion)
}

func (p *reportPrompt) close() {
	p.active = false
}

func (p *reportPrompt) insert(runes []rune) {
	p.text = p.text[:p.cursor] + string(runes) + p.text[p.cursor:]
	p.cursor += len(string(runes))
}

func (p *reportPrompt) backspace() {
	if p.cursor > 0 {
		p.text = p.text[:p.cursor-1] + p.text[p.cursor:]
		p.cursor--
	}
}

func (p *reportPrompt) deleteForward() {
	if p.cursor < len(p.text) {
		p.text = p.text[:p.cursor] + p.text[p.cursor+1:]
	}
}

func (p *reportPrompt) left() {
	if p.cursor > 0 {
		p.cursor--
	}
}

func (p *reportPrompt) right() {
	if p.cursor < len(p.text) {
		p.cursor++
	}
}

func (p *reportPrompt) view() string {
	before, after := p.text[:p.cursor], p.text[p.cursor:]
	return "  " + th.prompt.Render("Save to: ") +
		th.input.Render(before) + th.input.Render("█") + th.input.Render(after)
}

// suggestedReportName returns a timestamped default filename.
func suggestedReportName(now time.Time) string {
	return fmt.Sprintf("ditto-%s.log", now.Format("2006-01-02-150405"))
}

// writeReportCmd builds the report off the Update loop and writes it to path.
func writeReportCmd(path, srcRoot, dstRoot string, snap stats.Snapshot, history []feedEntry) tea.Cmd {
	lines := make([]feedEntry, len(history))
	copy(lines, history)

	return func() tea.Msg {
		body := buildReport(srcRoot, dstRoot, snap, lines)
		err := os.WriteFile(path, []byte(body), 0o644) //nolint:gosec // user-chosen path for report output
		return reportSavedMsg{path: path, err: err}
	}
}

func buildReport(srcRoot, dstRoot string, snap stats.Snapshot, history []feedEntry) string {
	var b strings.Builder

	b.WriteString("ditto transfer report\n")
	b.WriteString("=====================\n")
	fmt.Fprintf(&b, "source:      %s\n", srcRoot)
	fmt.Fprintf(&b, "destination: %s\n", dstRoot)
	fmt.Fprintf(&b, "completed:   %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "duration:    %s\n", ui.FormatDuration(snap.Elapsed))
	fmt.Fprintf(&b, "files:       %s\n", ui.FormatCount(snap.FilesCopied))
	fmt.Fprintf(&b, "size:        %s\n", ui.FormatBytes(snap.BytesCopied))

	var avg float64
	if snap.Elapsed.Seconds() > 0 {
		avg = float64(snap.BytesCopied) / snap.Elapsed.Seconds()
	}
	fmt.Fprintf(&b, "avg speed:   %s\n", ui.FormatRate(avg))

	if snap.FilesDelta > 0 {
		fmt.Fprintf(&b, "delta files: %s (%s matched in place)\n",
			ui.FormatCount(snap.FilesDelta), ui.FormatBytes(snap.DeltaMatchedBytes))
	}
	if snap.FilesMoved > 0 {
		fmt.Fprintf(&b, "moved:       %s\n", ui.FormatCount(snap.FilesMoved))
	}
	if snap.FilesDeleted > 0 {
		fmt.Fprintf(&b, "deleted:     %s\n", ui.FormatCount(snap.FilesDeleted))
	}
	fmt.Fprintf(&b, "errors:      %d\n", snap.FilesFailed+snap.FilesVerifyFailed)
	b.WriteString("\n--- files ---\n")

	for _, e := range history {
		mark, note := "v", ui.FormatBytes(e.size)
		switch e.kind {
		case kindFailed:
			mark, note = "x", e.note
		case kindDeleted:
			mark, note = "x", "deleted"
		case kindSkipped:
			mark, note = "-", "skipped"
		case kindMoved:
			note += " (moved)"
		case kindDelta:
			note += " (delta)"
		}
		fmt.Fprintf(&b, "%s  %-50s  %s\n", mark, e.path, note)
	}
	return b.String()
}
