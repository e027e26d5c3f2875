package ui

import "github.com/bamsammich/ditto/internal/stats"

// quietPresenter drains the event stream without printing anything. The
// collector still accumulates counts, so exit-code and log reporting work
// the same as in the other modes.
type quietPresenter struct {
	stats stats.ReadTicker
}

func (p *quietPresenter) Run(events <-chan Event) error {
	for range events {
	}
	return nil
}

func (p *quietPresenter) Summary() string { return "" }
