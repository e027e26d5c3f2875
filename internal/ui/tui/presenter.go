package tui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/ditto/internal/config"
	"github.com/bamsammich/ditto/internal/event"
	"github.com/bamsammich/ditto/internal/stats"
	"github.com/bamsammich/ditto/internal/ui"
)

// Config wires the TUI presenter to the running transfer.
type Config struct {
	Stats   stats.ReadTicker
	Workers int
	DstRoot string
	SrcRoot string
	Theme   config.ThemeConfig

	// WorkerLimit, when non-nil, lets the +/- keys throttle the pool live.
	WorkerLimit *atomic.Int32
}

// Presenter runs the full-screen Bubble Tea interface. It implements
// ui.Presenter so the command layer can treat it like the inline modes.
type Presenter struct {
	cfg Config
}

func NewPresenter(cfg Config) *Presenter {
	ApplyTheme(cfg.Theme)
	return &Presenter{cfg: cfg}
}

// Run blocks until the user quits or the program errors out.
func (p *Presenter) Run(events <-chan event.Event) error {
	program := tea.NewProgram(
		newModel(events, p.cfg),
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)
	_, err := program.Run()
	return err
}

// Summary returns the one-line result printed after the alt screen closes.
func (p *Presenter) Summary() string {
	return ui.CompletionSummary(p.cfg.Stats.Snapshot())
}
