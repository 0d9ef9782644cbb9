package analysis

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

// DateLayouts lists the date/time layouts recognised by ParseDate, in the
// order they are tried.
var DateLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	"2006.01.02", "02.01.2006", "20060102", "Jan 2, 2006", "2 Jan 2006",
}

// ParseDate tries every known layout and returns the parsed time and the
// layout that matched.
func ParseDate(s string) (time.Time, string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, "", false
	}
	for _, l := range DateLayouts {
		if l == "20060102" && len(s) != 8 {
			continue
		}
		if t, err := time.Parse(l, s); err == nil {
			return t, l, true
		}
	}
	return time.Time{}, "", false
}

// ParseNumber parses a locale-formatted number. Decimal and thousands
// separators are auto-detected: when both ',' and '.' occur the last one is
// the decimal separator; a lone ',' followed by exactly three digits is read
// as a thousands separator. Percent signs and common currency symbols are
// stripped.
func ParseNumber(s string) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.ReplaceAll(raw, " ", " ")
	raw = strings.TrimSuffix(raw, "%")
	raw = strings.TrimLeft(raw, "$€£¥")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	switch strings.ToLower(strings.TrimLeft(raw, "+-")) {
	case "nan", "inf", "infinity":
		return 0, false
	}
	dec := '.'
	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	switch {
	case cpos >= 0 && dpos >= 0:
		if cpos > dpos {
			dec = ','
		}
	case cpos >= 0:
		tail := raw[cpos+1:]
		if strings.Count(raw, ",") == 1 && !(len(tail) == 3 && isDigits(tail)) {
			dec = ','
		}
	}
	for _, sep := range []rune{',', '.', ' '} {
		if sep != dec {
			raw = strings.ReplaceAll(raw, string(sep), "")
		}
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NumericValue coerces native numbers and locale-formatted numeric strings.
func NumericValue(v any) (float64, bool) {
	if f, ok := dataset.Float(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		return ParseNumber(s)
	}
	return 0, false
}
