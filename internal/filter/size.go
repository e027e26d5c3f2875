package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeSuffixes maps size suffixes to their 1024-based multipliers. Longer
// suffixes are listed first so "KB" is consumed before "B".
var sizeSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"KB", 1 << 10},
	{"MB", 1 << 20},
	{"GB", 1 << 30},
	{"TB", 1 << 40},
	{"K", 1 << 10},
	{"M", 1 << 20},
	{"G", 1 << 30},
	{"T", 1 << 40},
	{"B", 1},
}

// ParseSize parses a human-readable size into bytes: a plain number, or a
// number with a K/M/G/T or KB/MB/GB/TB suffix (case-insensitive). Units are
// powers of 1024. Fractional values like "1.5G" round down to whole bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	mult := int64(1)
	num := s
	upper := strings.ToUpper(s)
	for _, e := range sizeSuffixes {
		if strings.HasSuffix(upper, e.suffix) {
			mult = e.mult
			num = strings.TrimSpace(s[:len(s)-len(e.suffix)])
			break
		}
	}
	if num == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative size: %q", s)
		}
		return n * mult, nil
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return int64(f * float64(mult)), nil
}
