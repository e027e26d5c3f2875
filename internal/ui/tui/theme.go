package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/ditto/internal/config"
)

// palette holds the nine colors every style derives from. Defaults are
// Catppuccin Mocha; a config [theme] section can override any of them.
type palette struct {
	green  lipgloss.Color
	blue   lipgloss.Color
	yellow lipgloss.Color
	red    lipgloss.Color
	teal   lipgloss.Color
	mauve  lipgloss.Color
	muted  lipgloss.Color
	dim    lipgloss.Color
	bright lipgloss.Color
}

func defaultPalette() palette {
	return palette{
		green:  lipgloss.Color("#a6e3a1"),
		blue:   lipgloss.Color("#89b4fa"),
		yellow: lipgloss.Color("#f9e2af"),
		red:    lipgloss.Color("#f38ba8"),
		teal:   lipgloss.Color("#94e2d5"),
		mauve:  lipgloss.Color("#cba6f7"),
		muted:  lipgloss.Color("#5a6278"),
		dim:    lipgloss.Color("#3a4055"),
		bright: lipgloss.Color("#cdd6f4"),
	}
}

// styleSet is the prebuilt lipgloss styles the views render with. Building
// them once per theme change keeps the render path allocation-light.
type styleSet struct {
	header   lipgloss.Style
	appName  lipgloss.Style
	divider  lipgloss.Style
	iconOK   lipgloss.Style
	iconFail lipgloss.Style
	iconSkip lipgloss.Style
	file     lipgloss.Style
	dir      lipgloss.Style
	size     lipgloss.Style
	speed    lipgloss.Style
	active   lipgloss.Style
	errText  lipgloss.Style
	errPath  lipgloss.Style
	key      lipgloss.Style
	keyLabel lipgloss.Style
	bigNum   lipgloss.Style
	spark    lipgloss.Style
	workerOn lipgloss.Style
	workerNo lipgloss.Style
	barOn    lipgloss.Style
	barOff   lipgloss.Style
	notice   lipgloss.Style
	prompt   lipgloss.Style
	input    lipgloss.Style
}

func buildStyles(p palette) styleSet {
	fg := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(c)
	}
	return styleSet{
		header:   fg(p.bright).Bold(true),
		appName:  fg(p.mauve).Bold(true),
		divider:  fg(p.dim),
		iconOK:   fg(p.green),
		iconFail: fg(p.red),
		iconSkip: fg(p.muted),
		file:     fg(p.bright),
		dir:      fg(p.muted),
		size:     fg(p.muted),
		speed:    fg(p.teal),
		active:   fg(p.blue),
		errText:  fg(p.red),
		errPath:  fg(p.red).Bold(true),
		key:      fg(p.mauve).Bold(true),
		keyLabel: fg(p.muted),
		bigNum:   fg(p.green).Bold(true),
		spark:    fg(p.blue),
		workerOn: fg(p.blue),
		workerNo: fg(p.dim),
		barOn:    fg(p.green),
		barOff:   fg(p.dim),
		notice:   fg(p.yellow).Italic(true),
		prompt:   fg(p.muted),
		input:    fg(p.bright),
	}
}

// th is the active style set. Views read it on every render, so ApplyTheme
// must run before the Bubble Tea program starts.
var th = buildStyles(defaultPalette())

// ApplyTheme rebuilds the style set from the default palette with any
// configured overrides applied on top.
func ApplyTheme(tc config.ThemeConfig) {
	p := defaultPalette()
	override := func(dst *lipgloss.Color, v *string) {
		if v != nil {
			*dst = lipgloss.Color(*v)
		}
	}
	override(&p.green, tc.Green)
	override(&p.blue, tc.Blue)
	override(&p.yellow, tc.Yellow)
	override(&p.red, tc.Red)
	override(&p.teal, tc.Teal)
	override(&p.mauve, tc.Mauve)
	override(&p.muted, tc.Muted)
	override(&p.dim, tc.Dim)
	override(&p.bright, tc.Bright)
	th = buildStyles(p)
}
