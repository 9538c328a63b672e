package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders d as an ISO-8601 duration in seconds only
// (PT<n>S, with a leading "-" for negative values and "PT0S" for zero),
// whatever its magnitude. Sub-second precision is kept to milliseconds.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}
	neg := d < 0
	if neg {
		d = -d
	}
	secs := d.Seconds()
	s := fmt.Sprintf("PT%sS", trimFloat(secs))
	if neg {
		s = "-" + s
	}
	return s
}

func trimFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		s = "0"
	}
	return s
}

// ParseDuration parses the SLA/analytics ISO-8601 duration subset: an
// optional leading "P", an optional "T" time designator, a numeric
// magnitude (integer or decimal), and a single unit designator drawn from
// {H, M, S, D}. Compound durations ("P1DT2H") are not part of this
// subset. Returns an error (caller treats as "unparseable -> no due
// date") when the string does not match.
func ParseDuration(s string) (time.Duration, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("clock: empty duration")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "P")
	s = strings.TrimPrefix(s, "T")
	if s == "" {
		return 0, fmt.Errorf("clock: invalid duration %q", orig)
	}
	unit := s[len(s)-1]
	magnitude := s[:len(s)-1]
	if magnitude == "" {
		return 0, fmt.Errorf("clock: missing magnitude in duration %q", orig)
	}
	n, err := strconv.ParseFloat(magnitude, 64)
	if err != nil {
		return 0, fmt.Errorf("clock: invalid magnitude in duration %q: %w", orig, err)
	}
	var d time.Duration
	switch unit {
	case 'H', 'h':
		d = time.Duration(n * float64(time.Hour))
	case 'M', 'm':
		d = time.Duration(n * float64(time.Minute))
	case 'S', 's':
		d = time.Duration(n * float64(time.Second))
	case 'D', 'd':
		d = time.Duration(n * 24 * float64(time.Hour))
	default:
		return 0, fmt.Errorf("clock: unsupported unit %q in duration %q", string(unit), orig)
	}
	if neg {
		d = -d
	}
	return d, nil
}
