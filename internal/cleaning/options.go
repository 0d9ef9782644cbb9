package cleaning

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Options is the free-form parameter map handed to a rule. Values usually
// come from JSON, YAML or CLI flags, so getters accept several encodings.
type Options map[string]any

// String returns a string option or def.
func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Float returns a numeric option or def.
func (o Options) Float(key string, def float64) float64 {
	switch t := o[key].(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns an integer option or def.
func (o Options) Int(key string, def int) int {
	if _, ok := o[key]; !ok {
		return def
	}
	return int(o.Float(key, float64(def)))
}

// Bool returns a boolean option or def.
func (o Options) Bool(key string, def bool) bool {
	switch t := o[key].(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
	}
	return def
}

// Strings returns a list option. A comma separated string is split.
func (o Options) Strings(key string, def []string) []string {
	var out []string
	switch t := o[key].(type) {
	case []string:
		out = t
	case []any:
		for _, v := range t {
			out = append(out, fmt.Sprint(v))
		}
	case string:
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	default:
		return def
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// StringMap returns a string to string option, or nil.
func (o Options) StringMap(key string) map[string]string {
	switch t := o[key].(type) {
	case map[string]string:
		return t
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, v := range t {
			out[k] = fmt.Sprint(v)
		}
		return out
	}
	return nil
}

// Values returns a map option with its values untouched, or nil.
func (o Options) Values(key string) map[string]any {
	switch t := o[key].(type) {
	case map[string]any:
		return t
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = v
		}
		return out
	}
	return nil
}

// merge layers over on top of o and returns a new map.
func (o Options) merge(over Options) Options {
	out := make(Options, len(o)+len(over))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
