package ui

import "golang.org/x/term"

// IsTTY reports whether fd is an interactive terminal. Presenters that
// redraw in place are only offered when this holds.
func IsTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// TermWidth returns the column count of the terminal on fd. Unknown or
// nonsensical sizes fall back to 80 columns.
func TermWidth(fd uintptr) int {
	if w, _, err := term.GetSize(int(fd)); err == nil && w > 0 {
		return w
	}
	return 80
}
