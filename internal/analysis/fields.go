// Package analysis profiles datasets: per-field completeness, type and
// format inference, value distributions, descriptive statistics and
// exact/near duplicate detection. Nothing in this package mutates its input.
package analysis

import (
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

// Default analyzer settings.
const (
	DefaultTopN                = 10
	DefaultSimilarityThreshold = 0.8
	DefaultMaxPairwise         = 5000
)

// Options controls the analyzer.
type Options struct {
	// TopN bounds the value distribution kept per field.
	TopN int
	// KeyFields restricts near-duplicate comparison. Empty means all fields.
	KeyFields []string
	// SimilarityThreshold groups near duplicates at or above this score.
	SimilarityThreshold float64
	// MaxPairwise caps the records considered for near-duplicate search.
	MaxPairwise int
}

// DefaultOptions returns the analyzer defaults.
func DefaultOptions() Options {
	return Options{TopN: DefaultTopN, SimilarityThreshold: DefaultSimilarityThreshold, MaxPairwise: DefaultMaxPairwise}
}

// Analyzer computes field and duplicate reports.
type Analyzer struct {
	opt Options
}

// NewAnalyzer fills zero options with defaults.
func NewAnalyzer(opt Options) *Analyzer {
	if opt.TopN <= 0 {
		opt.TopN = DefaultTopN
	}
	if opt.SimilarityThreshold <= 0 || opt.SimilarityThreshold > 1 {
		opt.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opt.MaxPairwise <= 0 {
		opt.MaxPairwise = DefaultMaxPairwise
	}
	return &Analyzer{opt: opt}
}

// Options returns the effective options.
func (a *Analyzer) Options() Options { return a.opt }

// ValueCount is one entry of a value distribution.
type ValueCount struct {
	Value   string  `json:"value"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// NumericStats holds descriptive statistics of a numeric-coercible field.
type NumericStats struct {
	Count  int       `json:"count"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Mean   float64   `json:"mean"`
	Median float64   `json:"median"`
	Mode   []float64 `json:"mode,omitempty"`
	StdDev float64   `json:"stdDev"`
	Q1     float64   `json:"q1"`
	Q3     float64   `json:"q3"`
}

// FieldAnalysis profiles one field.
type FieldAnalysis struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
	// Filled counts non-empty values, Empty counts present-but-blank values
	// and Missing counts records without the field (or with a nil value).
	Filled           int            `json:"filled"`
	Empty            int            `json:"empty"`
	Missing          int            `json:"missing"`
	CompletenessRate float64        `json:"completenessRate"`
	Types            map[string]int `json:"types"`
	DominantType     string         `json:"dominantType"`
	UniqueCount      int            `json:"uniqueCount"`
	DuplicateValues  []string       `json:"duplicateValues,omitempty"`
	TopValues        []ValueCount   `json:"topValues,omitempty"`
	// FormatConsistency is the share of filled values carrying the
	// dominant format, 0..1. A field with no filled values scores 1.
	FormatConsistency float64       `json:"formatConsistency"`
	DominantFormat    string        `json:"dominantFormat,omitempty"`
	Numeric           *NumericStats `json:"numeric,omitempty"`
}

// IsNumeric reports whether the dominant type is a number.
func (f FieldAnalysis) IsNumeric() bool {
	return f.DominantType == TypeInteger || f.DominantType == TypeDecimal
}

// AnalyzeFields profiles every field observed anywhere in ds.
func (a *Analyzer) AnalyzeFields(ds dataset.Dataset) []FieldAnalysis {
	fields := ds.Fields()
	out := make([]FieldAnalysis, 0, len(fields))
	for _, f := range fields {
		out = append(out, a.analyzeField(ds, f))
	}
	return out
}

func (a *Analyzer) analyzeField(ds dataset.Dataset, name string) FieldAnalysis {
	fa := FieldAnalysis{Name: name, Total: len(ds), Types: map[string]int{}, FormatConsistency: 1}
	counts := map[string]int{}
	display := map[string]string{}
	var order []string
	formats := map[string]int{}
	var nums []float64

	for _, r := range ds {
		v, ok := r[name]
		if !ok || v == nil {
			fa.Missing++
			continue
		}
		if dataset.IsEmpty(v) {
			fa.Empty++
			continue
		}
		fa.Filled++
		typ := DetectType(v)
		fa.Types[typ]++
		formats[DetectFormat(v)]++

		key := dataset.Normalize(v)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
			display[key] = strings.TrimSpace(dataset.String(v))
		}
		counts[key]++

		if typ == TypeInteger || typ == TypeDecimal {
			if f, ok := NumericValue(v); ok {
				nums = append(nums, f)
			}
		}
	}

	if fa.Total > 0 {
		fa.CompletenessRate = float64(fa.Filled) / float64(fa.Total)
	}
	fa.DominantType = dominant(fa.Types, TypeEmpty)
	fa.UniqueCount = len(counts)
	for _, k := range order {
		if counts[k] > 1 {
			fa.DuplicateValues = append(fa.DuplicateValues, display[k])
		}
	}
	fa.TopValues = topN(order, counts, display, fa.Filled, a.opt.TopN)
	if fa.Filled > 0 {
		fa.DominantFormat = dominant(formats, "")
		fa.FormatConsistency = float64(formats[fa.DominantFormat]) / float64(fa.Filled)
	}
	if fa.IsNumeric() && len(nums) > 0 {
		fa.Numeric = describe(nums)
	}
	return fa
}

// dominant returns the most frequent key; ties resolve alphabetically.
func dominant(m map[string]int, def string) string {
	best, bestN := def, 0
	for k, n := range m {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

func topN(order []string, counts map[string]int, display map[string]string, total, n int) []ValueCount {
	keys := append([]string(nil), order...)
	sort.SliceStable(keys, func(i, j int) bool { return counts[keys[i]] > counts[keys[j]] })
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make([]ValueCount, 0, len(keys))
	for _, k := range keys {
		vc := ValueCount{Value: display[k], Count: counts[k]}
		if total > 0 {
			vc.Percent = 100 * float64(counts[k]) / float64(total)
		}
		out = append(out, vc)
	}
	return out
}

func describe(nums []float64) *NumericStats {
	data := stats.Float64Data(nums)
	ns := &NumericStats{Count: len(nums)}
	ns.Min, _ = stats.Min(data)
	ns.Max, _ = stats.Max(data)
	ns.Mean, _ = stats.Mean(data)
	ns.Median, _ = stats.Median(data)
	if mode, err := stats.Mode(data); err == nil && len(mode) > 0 {
		ns.Mode = mode
	}
	if len(nums) > 1 {
		ns.StdDev, _ = stats.StandardDeviationSample(data)
	}
	ns.Q1, ns.Q3 = Quartiles(nums)
	return ns
}

// Quartiles returns the first and third quartiles as medians of the lower
// and upper halves (stats.Quartile). REMOVE_OUTLIERS derives its IQR bounds
// from the same values. A single value is its own Q1 and Q3.
func Quartiles(nums []float64) (float64, float64) {
	switch len(nums) {
	case 0:
		return 0, 0
	case 1:
		return nums[0], nums[0]
	}
	q, err := stats.Quartile(stats.Float64Data(nums))
	if err != nil {
		return 0, 0
	}
	return q.Q1, q.Q3
}
