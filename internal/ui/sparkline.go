package ui

import "strings"

// sparkBlocks are the eighth-height bar runes, lowest to tallest.
var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders samples as a fixed-width run of block characters,
// scaled against the largest sample. Fewer samples than width pads the
// left with baseline blocks; more keeps only the newest width samples.
func Sparkline(data []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	var peak float64
	for _, v := range data {
		if v > peak {
			peak = v
		}
	}

	var b strings.Builder
	b.Grow(width * 3) // block runes are 3 bytes each
	for i := len(data); i < width; i++ {
		b.WriteRune(sparkBlocks[0])
	}
	for _, v := range data {
		if peak <= 0 || v <= 0 {
			b.WriteRune(sparkBlocks[0])
			continue
		}
		idx := int(v / peak * float64(len(sparkBlocks)-1))
		if idx > len(sparkBlocks)-1 {
			idx = len(sparkBlocks) - 1
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}
