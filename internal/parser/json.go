package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

// envelopeKeys are tried first when the root is an object wrapping the
// records array.
var envelopeKeys = []string{"data", "records", "rows", "items", "results"}

// JSON reads an array of objects, an envelope object holding one, or a
// single object. Nested objects are flattened with dotted keys and scalar
// arrays are joined with ", ".
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) MimeTypes() []string { return []string{"application/json", "text/json"} }

func (JSON) Extensions() []string { return []string{".json"} }

func (JSON) Parse(ctx context.Context, content []byte, opt Options) (dataset.Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	var items []any
	switch t := root.(type) {
	case []any:
		items = t
	case map[string]any:
		if arr, ok := envelope(t); ok {
			items = arr
		} else {
			items = []any{t}
		}
	default:
		return nil, fmt.Errorf("json root must be an array or object, got %T", root)
	}

	out := make(dataset.Dataset, 0, len(items))
	for i, it := range items {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if it == nil {
			continue
		}
		obj, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, want object", i, it)
		}
		if opt.MaxRecords > 0 && len(out) >= opt.MaxRecords {
			break
		}
		rec := dataset.Record{}
		flatten(rec, "", obj)
		out = append(out, rec)
	}
	return out, nil
}

// envelope returns the first array-of-objects field, preferring common
// envelope names, then keys in sorted order.
func envelope(obj map[string]any) ([]any, bool) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := append([]string{}, envelopeKeys...)
	ordered = append(ordered, keys...)
	for _, k := range ordered {
		arr, ok := obj[k].([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		if _, ok := arr[0].(map[string]any); ok {
			return arr, true
		}
	}
	return nil, false
}

func flatten(rec dataset.Record, prefix string, obj map[string]any) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flatten(rec, key, t)
		case []any:
			rec[key] = joinArray(t)
		default:
			rec[key] = t
		}
	}
}

func joinArray(arr []any) any {
	parts := make([]string, 0, len(arr))
	for _, v := range arr {
		switch v.(type) {
		case map[string]any, []any:
			b, err := json.Marshal(arr)
			if err != nil {
				return fmt.Sprint(arr)
			}
			return string(b)
		}
		parts = append(parts, dataset.String(v))
	}
	return strings.Join(parts, ", ")
}
