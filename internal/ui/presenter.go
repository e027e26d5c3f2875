package ui

import (
	"io"

	"github.com/bamsammich/ditto/internal/stats"
)

// Presenter renders transfer progress from the event stream.
type Presenter interface {
	// Run drains events until the channel closes, blocking the caller.
	Run(events <-chan Event) error
	// Summary returns the one-line result for after Run finishes.
	Summary() string
}

// Config configures a Presenter. Event paths are already relative to the
// destination root, so presenters print them as-is.
type Config struct {
	Writer     io.Writer
	ErrWriter  io.Writer
	Stats      stats.ReadTicker
	Workers    int
	IsTTY      bool
	Quiet      bool
	Verbose    bool
	ForceFeed  bool
	ForceRate  bool
	NoProgress bool
}

// NewPresenter picks the output mode: silent, line-per-file for pipes and
// logs, or the in-place HUD for interactive terminals.
//
//nolint:ireturn // which presenter is a runtime decision
func NewPresenter(cfg Config) Presenter {
	switch {
	case cfg.Quiet:
		return &quietPresenter{stats: cfg.Stats}
	case !cfg.IsTTY || cfg.NoProgress:
		return &plainPresenter{
			w:       cfg.Writer,
			errW:    cfg.ErrWriter,
			stats:   cfg.Stats,
			verbose: cfg.Verbose,
		}
	default:
		return &hudPresenter{
			w:         cfg.ErrWriter, // HUD renders to stderr (the TTY)
			stats:     cfg.Stats,
			forceFeed: cfg.ForceFeed,
			forceRate: cfg.ForceRate,
			workers:   cfg.Workers,
		}
	}
}
