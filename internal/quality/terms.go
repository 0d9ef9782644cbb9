package quality

import (
	"strings"
	"unicode"
)

// DefaultTerms maps lower-cased synonym variants to their canonical term.
// It is the substitution table of STANDARDIZE_TERMS and the variant list
// counted by the consistency dimension.
var DefaultTerms = map[string]string{
	"pcs":       "piece",
	"pc":        "piece",
	"pieces":    "piece",
	"kgs":       "kg",
	"kilogram":  "kg",
	"kilograms": "kg",
	"ea":        "each",
	"ltr":       "l",
	"litre":     "l",
	"liter":     "l",
	"mtr":       "m",
	"meter":     "m",
	"metre":     "m",
}

// Field name hints used to pick format checks and formatting targets. A
// hint matches a whole word of the field name: "createdAt", "created_at"
// and "Created At" all split into [created at].
var (
	DateHints    = []string{"date", "time", "timestamp", "at", "day", "dob"}
	NumericHints = []string{"qty", "quantity", "amount", "price", "count", "total", "number", "num", "weight", "cost"}
	EmailHints   = []string{"email", "mail"}
)

// FieldWords splits a field name on punctuation, spaces and camelCase
// boundaries and lower-cases the parts.
func FieldWords(name string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	var prev rune
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && prev != 0 && unicode.IsLower(prev) {
				flush()
			}
			cur = append(cur, r)
		default:
			flush()
		}
		prev = r
	}
	flush()
	return words
}

func hasHint(name string, hints []string) bool {
	for _, w := range FieldWords(name) {
		for _, h := range hints {
			if w == h {
				return true
			}
		}
	}
	return false
}

// IsDateField reports whether the field name suggests a date.
func IsDateField(name string) bool { return hasHint(name, DateHints) }

// IsNumericField reports whether the field name suggests a number.
func IsNumericField(name string) bool { return hasHint(name, NumericHints) }

// IsEmailField reports whether the field name suggests an email address.
func IsEmailField(name string) bool { return hasHint(name, EmailHints) }
