package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bamsammich/ditto/internal/stats"
)

// FormatRate renders a bytes-per-second throughput with an auto-scaled unit.
// Precision tightens as the scaled value shrinks so the column stays narrow.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	units := [...]string{"B/s", "KB/s", "MB/s", "GB/s", "TB/s", "PB/s"}
	val, exp := bytesPerSec, 0
	for val >= 1024 && exp < len(units)-1 {
		val /= 1024
		exp++
	}
	switch {
	case exp == len(units)-1:
		return fmt.Sprintf("%.1f %s", val, units[exp])
	case val < 10:
		return fmt.Sprintf("%.2f %s", val, units[exp])
	case val < 100:
		return fmt.Sprintf("%.1f %s", val, units[exp])
	default:
		return fmt.Sprintf("%.0f %s", val, units[exp])
	}
}

// FormatETA renders a remaining-time estimate, or "--" when none is known.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	return hms(d)
}

// FormatDuration renders elapsed wall time.
func FormatDuration(d time.Duration) string {
	return hms(d)
}

func hms(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatCount renders an integer with comma grouping.
func FormatCount(n int64) string {
	if n < 0 {
		return "-" + FormatCount(-n)
	}
	digits := strconv.FormatInt(n, 10)
	if len(digits) <= 3 {
		return digits
	}
	out := make([]byte, 0, len(digits)+len(digits)/3)
	for i := 0; i < len(digits); i++ {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	return string(out)
}

// ProgressBar renders a fixed-width ▪/□ bar for pct in [0,1].
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	pct = min(max(pct, 0), 1)
	filled := min(int(pct*float64(width)), width)
	return strings.Repeat("▪", filled) + strings.Repeat("□", width-filled)
}

// WorkerIndicator renders one cell per worker, busy workers first.
func WorkerIndicator(busy, total int) string {
	if total <= 0 {
		return ""
	}
	busy = min(max(busy, 0), total)
	return strings.Repeat("▪", busy) + strings.Repeat("□", total-busy)
}

// FormatBytes wraps stats.FormatBytes so UI code has one import for all
// human-readable formatting.
func FormatBytes(b int64) string {
	return stats.FormatBytes(b)
}
