// Package dataset holds the in-memory record model shared by parsers,
// cleaning rules and analyzers.
package dataset

import (
	"encoding/json"
	"sort"
)

// Record is one row of input data: field name to scalar value.
// Values are string, float64, int, bool, time.Time, json.Number or nil.
type Record map[string]any

// Dataset is an ordered sequence of records. Records are not required to
// share the same set of fields.
type Dataset []Record

// Clone returns a shallow copy of the record. Scalars are immutable so a
// shallow copy is enough to isolate rule outputs from their inputs.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the record's field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsBlank reports whether every field of the record is empty.
func (r Record) IsBlank() bool {
	for _, v := range r {
		if !IsEmpty(v) {
			return false
		}
	}
	return true
}

// Clone copies every record of the dataset.
func (d Dataset) Clone() Dataset {
	if d == nil {
		return nil
	}
	out := make(Dataset, len(d))
	for i, r := range d {
		out[i] = r.Clone()
	}
	return out
}

// Fields returns the union of field names observed across all records.
// Records are visited in order and each record's not-yet-seen keys are
// appended in sorted key order.
func (d Dataset) Fields() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range d {
		for _, k := range r.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// Values returns the values of a field across the dataset; records without
// the field contribute nil.
func (d Dataset) Values(field string) []any {
	out := make([]any, len(d))
	for i, r := range d {
		out[i] = r[field]
	}
	return out
}

// Equal compares two datasets by their JSON serialization. encoding/json
// sorts map keys, which makes the comparison independent of map order.
func Equal(a, b Dataset) bool {
	if len(a) != len(b) {
		return false
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}
