package analysis

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

// Type labels produced by DetectType.
const (
	TypeBoolean = "boolean"
	TypeInteger = "integer"
	TypeDecimal = "decimal"
	TypeDate    = "date"
	TypeEmail   = "email"
	TypePhone   = "phone"
	TypeURL     = "url"
	TypeString  = "string"
	TypeEmpty   = "empty"
)

// TypeDetector pairs a type label with the predicate that recognises it.
type TypeDetector struct {
	Label string
	Match func(v any, s string) bool
}

var (
	integerRe = regexp.MustCompile(`^[+-]?(\d+|\d{1,3}(,\d{3})+)$`)
	emailRe   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe   = regexp.MustCompile(`^\+?[\d\s().-]{7,20}$`)
	urlRe     = regexp.MustCompile(`^(https?://|www\.)\S+$`)
)

// TypeDetectors is the ordered type inference table. The first matching
// entry wins, so the order is the precedence:
// boolean > integer > decimal > date > email > phone > url > string.
var TypeDetectors = []TypeDetector{
	{TypeBoolean, func(v any, s string) bool {
		if _, ok := v.(bool); ok {
			return true
		}
		switch strings.ToLower(s) {
		case "true", "false", "yes", "no":
			return true
		}
		return false
	}},
	{TypeInteger, func(v any, s string) bool {
		switch t := v.(type) {
		case int, int64:
			return true
		case float64:
			return t == math.Trunc(t)
		case json.Number:
			_, err := t.Int64()
			return err == nil
		}
		return integerRe.MatchString(s)
	}},
	{TypeDecimal, func(v any, s string) bool {
		switch v.(type) {
		case float64, float32, json.Number:
			return true
		}
		_, ok := ParseNumber(s)
		return ok
	}},
	{TypeDate, func(v any, s string) bool {
		if _, ok := v.(time.Time); ok {
			return true
		}
		_, _, ok := ParseDate(s)
		return ok
	}},
	{TypeEmail, func(_ any, s string) bool { return emailRe.MatchString(s) }},
	{TypePhone, func(_ any, s string) bool {
		if !phoneRe.MatchString(s) {
			return false
		}
		digits := 0
		for _, r := range s {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		return digits >= 7
	}},
	{TypeURL, func(_ any, s string) bool { return urlRe.MatchString(s) }},
	{TypeString, func(any, string) bool { return true }},
}

// DetectType returns the label of the first detector matching v.
func DetectType(v any) string {
	if dataset.IsEmpty(v) {
		return TypeEmpty
	}
	s := strings.TrimSpace(dataset.String(v))
	for _, d := range TypeDetectors {
		if d.Match(v, s) {
			return d.Label
		}
	}
	return TypeString
}

// DetectFormat returns a format signature for a value. Values of the same
// field sharing a signature are considered consistently formatted: dates are
// keyed by layout, free text by its character-class shape.
func DetectFormat(v any) string {
	typ := DetectType(v)
	switch typ {
	case TypeEmpty:
		return ""
	case TypeDate:
		if _, ok := v.(time.Time); ok {
			return "date:native"
		}
		_, layout, _ := ParseDate(dataset.String(v))
		return "date:" + layout
	case TypeString:
		return "string:" + shape(strings.TrimSpace(dataset.String(v)))
	}
	return typ
}

// shape maps letters to 'A' and digits to '9', collapsing runs, so
// "AB-1234" and "XY-99" share the shape "A-9".
func shape(s string) string {
	var b strings.Builder
	var last rune
	for _, r := range s {
		c := r
		switch {
		case r >= '0' && r <= '9':
			c = '9'
		case isLetter(r):
			c = 'A'
		case r == ' ' || r == '\t':
			c = ' '
		}
		if c == last && (c == '9' || c == 'A' || c == ' ') {
			continue
		}
		b.WriteRune(c)
		last = c
	}
	return b.String()
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127
}
