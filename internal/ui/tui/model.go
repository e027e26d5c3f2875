package tui

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/ditto/internal/event"
	"github.com/bamsammich/ditto/internal/stats"
	"github.com/bamsammich/ditto/internal/ui"
)

type viewMode int

const (
	viewFeed viewMode = iota
	viewRate
	viewErrors

	viewModes = 3
)

// Bubble Tea messages.
type eventMsg event.Event
type eventsClosedMsg struct{}
type tickMsg time.Time
type reportSavedMsg struct {
	path string
	err  error
}

// waitForEvent blocks on the engine's event channel from inside the Bubble
// Tea runtime, re-arming after every message.
func waitForEvent(ch <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func clockCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the root Bubble Tea model. It owns the two sub-views and the
// once-a-second stats snapshot they render from.
type Model struct {
	events  <-chan event.Event
	stats   stats.ReadTicker
	srcRoot string
	dstRoot string

	mode   viewMode
	feed   feedView
	rate   rateView
	width  int
	height int

	snap  stats.Snapshot
	speed float64
	eta   time.Duration

	notice   string // transient status line
	done     bool   // event channel closed, transfer finished
	quitting bool

	workers     int
	maxWorkers  int
	workerLimit *atomic.Int32 // nil disables live worker adjustment

	report reportPrompt
}

func newModel(events <-chan event.Event, cfg Config) Model {
	return Model{
		events:      events,
		stats:       cfg.Stats,
		srcRoot:     cfg.SrcRoot,
		dstRoot:     cfg.DstRoot,
		workers:     cfg.Workers,
		maxWorkers:  cfg.Workers,
		workerLimit: cfg.WorkerLimit,
		feed:        newFeedView(),
		rate:        newRateView(),
		width:       80,
		height:      24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), clockCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case eventMsg:
		m.feed.handleEvent(event.Event(msg))
		m.rate.handleEvent(event.Event(msg))
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		m.done = true
		m.snap = m.stats.Snapshot()
		m.speed = m.stats.RollingSpeed(10)
		m.eta = 0
		// Keep ticking so the done screen stays responsive.
		return m, clockCmd()

	case tickMsg:
		m.stats.Tick()
		m.snap = m.stats.Snapshot()
		m.speed = m.stats.RollingSpeed(10)
		m.eta = m.stats.ETA()
		return m, clockCmd()

	case reportSavedMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("save failed: %v", msg.err)
		} else {
			m.notice = "saved to " + msg.path
		}
		m.report.close()
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The report prompt captures all input while open.
	if m.report.active {
		return m.handleReportKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "f":
		m.mode = viewFeed
		m.notice = ""

	case "r":
		m.mode = viewRate
		m.notice = ""

	case "e":
		m.mode = viewErrors
		m.notice = ""

	case "tab":
		m.mode = viewMode((int(m.mode) + 1) % viewModes)
		m.notice = ""

	case "+", "=":
		return m.adjustWorkers(1)

	case "-", "_":
		return m.adjustWorkers(-1)

	case "j", "down":
		if m.mode == viewFeed {
			m.feed.scrollBy(1)
		}

	case "k", "up":
		if m.mode == viewFeed {
			m.feed.scrollBy(-1)
		}

	case "ctrl+d":
		if m.mode == viewFeed {
			m.feed.scrollBy(m.halfPage())
		}

	case "ctrl+u":
		if m.mode == viewFeed {
			m.feed.scrollBy(-m.halfPage())
		}

	case "g":
		if m.mode == viewFeed {
			m.feed.scrollToTop()
		}

	case "G":
		if m.mode == viewFeed {
			m.feed.scrollToBottom()
		}

	case "s":
		if m.done {
			m.report.open(suggestedReportName(time.Now()))
			m.notice = ""
		}
	}

	return m, nil
}

func (m Model) handleReportKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape:
		m.report.close()
		m.notice = ""

	case tea.KeyEnter:
		return m, writeReportCmd(m.report.text, m.srcRoot, m.dstRoot, m.snap, m.feed.history)

	case tea.KeyBackspace:
		m.report.backspace()

	case tea.KeyDelete:
		m.report.deleteForward()

	case tea.KeyLeft:
		m.report.left()

	case tea.KeyRight:
		m.report.right()

	case tea.KeyRunes:
		m.report.insert(msg.Runes)
	}

	return m, nil
}

func (m Model) adjustWorkers(delta int) (tea.Model, tea.Cmd) {
	if m.workerLimit == nil {
		m.notice = "worker adjustment: not available"
		return m, nil
	}

	next := m.workerLimit.Load() + int32(delta)
	next = min(max(next, 1), int32(m.maxWorkers))
	m.workerLimit.Store(next)
	m.notice = fmt.Sprintf("workers: %d / %d", next, m.maxWorkers)
	return m, nil
}

func (m Model) activeWorkers() int {
	if m.workerLimit != nil {
		return int(m.workerLimit.Load())
	}
	return m.workers
}

func (m Model) halfPage() int {
	return max((m.height-3)/2, 1)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteByte('\n')

	// Header, notice line, and footer each take one row.
	content := max(m.height-3, 3)
	switch m.mode {
	case viewRate:
		b.WriteString(m.rate.view(m.width, content, m.snap, m.stats, m.activeWorkers()))
	case viewErrors:
		b.WriteString(m.feed.viewFaults(content))
	default:
		b.WriteString(m.feed.view(m.width, content, m.speed))
	}

	switch {
	case m.report.active:
		b.WriteString(m.report.view())
		b.WriteByte('\n')
	case m.notice != "":
		b.WriteString(th.notice.Render("  " + m.notice))
		b.WriteByte('\n')
	default:
		b.WriteByte('\n')
	}

	b.WriteString(m.footer())
	return b.String()
}

func (m Model) header() string {
	if m.done {
		return th.header.Render(fmt.Sprintf("  %s  %s  %s  %s / %s files  %s",
			th.appName.Render("ditto"),
			th.iconOK.Render("done"),
			ui.FormatBytes(m.snap.BytesCopied),
			ui.FormatCount(m.snap.FilesCopied),
			ui.FormatCount(m.snap.FilesTotal),
			ui.FormatDuration(m.snap.Elapsed)))
	}

	var pct float64
	if m.snap.BytesTotal > 0 {
		pct = float64(m.snap.BytesCopied) / float64(m.snap.BytesTotal)
	}
	return th.header.Render(fmt.Sprintf("  %s  %3.0f%%  %s  %s / %s  %s / %s files  eta %s  %dw",
		th.appName.Render("ditto"),
		pct*100,
		th.barOn.Render(ui.ProgressBar(pct, 10)),
		ui.FormatBytes(m.snap.BytesCopied),
		ui.FormatBytes(m.snap.BytesTotal),
		ui.FormatCount(m.snap.FilesCopied),
		ui.FormatCount(m.snap.FilesTotal),
		ui.FormatETA(m.eta),
		m.activeWorkers()))
}

func (m Model) footer() string {
	binds := [][2]string{
		{"q", "quit"},
		{"tab", "view"},
		{"e", "errors"},
		{"j/k", "scroll"},
		{"+/-", "workers"},
	}
	if m.done {
		binds = [][2]string{
			{"s", "save"},
			{"j/k", "scroll"},
			{"f", "feed"},
			{"e", "errors"},
			{"q", "quit"},
		}
	}

	parts := make([]string, len(binds))
	for i, kb := range binds {
		parts[i] = th.key.Render(kb[0]) + " " + th.keyLabel.Render(kb[1])
	}
	return "  " + strings.Join(parts, "   ")
}
