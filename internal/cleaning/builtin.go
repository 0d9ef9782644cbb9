package cleaning

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/KaramelBytes/tabloom-cli/internal/analysis"
	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
	"github.com/KaramelBytes/tabloom-cli/internal/quality"
)

// Built-in rule IDs.
const (
	RemoveEmpty      = "REMOVE_EMPTY"
	TrimWhitespace   = "TRIM_WHITESPACE"
	RemoveDuplicates = "REMOVE_DUPLICATES"
	StandardizeTerms = "STANDARDIZE_TERMS"
	FormatDate       = "FORMAT_DATE"
	FormatNumber     = "FORMAT_NUMBER"
	RemoveOutliers   = "REMOVE_OUTLIERS"
	MergeSimilar     = "MERGE_SIMILAR"
	ValidateRequired = "VALIDATE_REQUIRED"
	FillMissing      = "FILL_MISSING"
)

// Rule defaults.
var (
	DefaultKeyFields         = []string{"materialCode", "id"}
	DefaultDateLayout        = "2006-01-02"
	DefaultOutlierMultiplier = 1.5
	DefaultMergeThreshold    = analysis.DefaultSimilarityThreshold
)

// minOutlierSample is the smallest sample a field needs before outliers are
// computed for it.
const minOutlierSample = 4

// DefaultPipeline returns the rule order used when none is configured.
func DefaultPipeline() []string {
	return []string{RemoveEmpty, TrimWhitespace, RemoveDuplicates, StandardizeTerms, FormatDate, FormatNumber}
}

// Builtins returns the built-in rule catalogue.
func Builtins() []Rule {
	return []Rule{
		{ID: RemoveEmpty, Name: "Remove empty records", Category: CategoryStructure,
			Description: "Drops records where every field is empty or whitespace.", Apply: removeEmpty},
		{ID: TrimWhitespace, Name: "Trim whitespace", Category: CategoryFormat,
			Description: "Strips leading and trailing whitespace from string values.", Apply: trimWhitespace},
		{ID: RemoveDuplicates, Name: "Remove duplicates", Category: CategoryDuplicates,
			Description: "Keeps the first record per composite key (option keyFields, default materialCode,id).", Apply: removeDuplicates},
		{ID: StandardizeTerms, Name: "Standardize terms", Category: CategoryTerminology,
			Description: "Replaces synonym variants with canonical terms (option terms).", Apply: standardizeTerms},
		{ID: FormatDate, Name: "Format dates", Category: CategoryFormat,
			Description: "Rewrites parsable dates in date fields to one layout (options fields, layout).", Apply: formatDate},
		{ID: FormatNumber, Name: "Format numbers", Category: CategoryFormat,
			Description: "Converts parsable numbers in numeric fields to numbers (options fields, decimals).", Apply: formatNumber},
		{ID: RemoveOutliers, Name: "Remove outliers", Category: CategoryOutliers,
			Description: "Drops records outside Q1-k*IQR..Q3+k*IQR on numeric fields (options fields, multiplier).", Apply: removeOutliers},
		{ID: MergeSimilar, Name: "Merge similar records", Category: CategoryDuplicates,
			Description: "Merges near-duplicate records into the first one (options keyFields, threshold).", Apply: mergeSimilar},
		{ID: ValidateRequired, Name: "Validate required fields", Category: CategoryValidation,
			Description: "Drops records missing any required field (option requiredFields).", Apply: validateRequired},
		{ID: FillMissing, Name: "Fill missing values", Category: CategoryEnrichment,
			Description: "Fills empty fields with default values (option defaults; $mean or $median use the field's numeric values).", Apply: fillMissing},
	}
}

func removeEmpty(ds dataset.Dataset, _ Options) (dataset.Dataset, error) {
	out := make(dataset.Dataset, 0, len(ds))
	for _, r := range ds {
		if !r.IsBlank() {
			out = append(out, r)
		}
	}
	return out, nil
}

func trimWhitespace(ds dataset.Dataset, _ Options) (dataset.Dataset, error) {
	out := make(dataset.Dataset, len(ds))
	for i, r := range ds {
		nr := r.Clone()
		for k, v := range nr {
			if s, ok := v.(string); ok {
				nr[k] = strings.TrimSpace(s)
			}
		}
		out[i] = nr
	}
	return out, nil
}

// removeDuplicates compares key values exactly; run TRIM_WHITESPACE first to
// match values that differ only in padding. Records with every key empty
// are keyed by their whole content.
func removeDuplicates(ds dataset.Dataset, opt Options) (dataset.Dataset, error) {
	keys := opt.Strings("keyFields", DefaultKeyFields)
	seen := map[string]struct{}{}
	out := make(dataset.Dataset, 0, len(ds))
	for _, r := range ds {
		k, err := compositeKey(r, keys)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

func compositeKey(r dataset.Record, keys []string) (string, error) {
	parts := make([]string, len(keys))
	blank := true
	for i, f := range keys {
		v := r[f]
		if !dataset.IsEmpty(v) {
			blank = false
		}
		parts[i] = dataset.String(v)
	}
	if !blank {
		return "k:" + strings.Join(parts, "\x1f"), nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("record key: %w", err)
	}
	return "r:" + string(b), nil
}

func standardizeTerms(ds dataset.Dataset, opt Options) (dataset.Dataset, error) {
	terms := make(map[string]string, len(quality.DefaultTerms))
	for k, v := range quality.DefaultTerms {
		terms[k] = v
	}
	for k, v := range opt.StringMap("terms") {
		terms[strings.ToLower(strings.TrimSpace(k))] = v
	}
	only := fieldSet(opt.Strings("fields", nil))
	return mapValues(ds, func(field string, v any) any {
		if only != nil && !only[field] {
			return v
		}
		s, ok := v.(string)
		if !ok {
			return v
		}
		if canon, ok := terms[dataset.Normalize(s)]; ok {
			return canon
		}
		return v
	}), nil
}

func formatDate(ds dataset.Dataset, opt Options) (dataset.Dataset, error) {
	layout := opt.String("layout", DefaultDateLayout)
	target := targetFields(opt, quality.IsDateField)
	return mapValues(ds, func(field string, v any) any {
		if !target(field) {
			return v
		}
		switch t := v.(type) {
		case time.Time:
			if t.IsZero() {
				return v
			}
			return t.Format(layout)
		case string:
			if d, _, ok := analysis.ParseDate(t); ok {
				return d.Format(layout)
			}
		}
		return v
	}), nil
}

func formatNumber(ds dataset.Dataset, opt Options) (dataset.Dataset, error) {
	decimals := opt.Int("decimals", -1)
	target := targetFields(opt, quality.IsNumericField)
	round := func(f float64) float64 {
		if decimals < 0 {
			return f
		}
		p := math.Pow(10, float64(decimals))
		return math.Round(f*p) / p
	}
	return mapValues(ds, func(field string, v any) any {
		if !target(field) || dataset.IsEmpty(v) {
			return v
		}
		switch t := v.(type) {
		case float64:
			return round(t)
		case int, int64, float32, json.Number:
			if f, ok := dataset.Float(t); ok {
				return round(f)
			}
		case string:
			if f, ok := analysis.ParseNumber(t); ok {
				return round(f)
			}
		}
		return v
	}), nil
}

func removeOutliers(ds dataset.Dataset, opt Options) (dataset.Dataset, error) {
	k := opt.Float("multiplier", DefaultOutlierMultiplier)
	if k <= 0 {
		return nil, fmt.Errorf("multiplier must be positive, got %v", k)
	}
	fields := opt.Strings("fields", nil)
	if fields == nil {
		for _, fa := range analysis.NewAnalyzer(analysis.DefaultOptions()).AnalyzeFields(ds) {
			if fa.IsNumeric() {
				fields = append(fields, fa.Name)
			}
		}
	}

	type bounds struct{ lo, hi float64 }
	limits := map[string]bounds{}
	for _, f := range fields {
		var nums []float64
		for _, r := range ds {
			if x, ok := numeric(r[f]); ok {
				nums = append(nums, x)
			}
		}
		if len(nums) < minOutlierSample {
			continue
		}
		q1, q3 := analysis.Quartiles(nums)
		iqr := q3 - q1
		limits[f] = bounds{lo: q1 - k*iqr, hi: q3 + k*iqr}
	}

	out := make(dataset.Dataset, 0, len(ds))
	for _, r := range ds {
		keep := true
		for f, b := range limits {
			if x, ok := numeric(r[f]); ok && (x < b.lo || x > b.hi) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out, nil
}

// mergeSimilar collapses exact and near duplicate groups into their first
// record, filling its empty fields from the other members.
func mergeSimilar(ds dataset.Dataset, opt Options) (dataset.Dataset, error) {
	a := analysis.NewAnalyzer(analysis.Options{
		KeyFields:           opt.Strings("keyFields", nil),
		SimilarityThreshold: opt.Float("threshold", DefaultMergeThreshold),
		MaxPairwise:         opt.Int("maxPairwise", analysis.DefaultMaxPairwise),
	})
	rep := a.AnalyzeDuplicates(ds)

	merged := make(map[int]dataset.Record)
	drop := make(map[int]bool)
	absorb := func(indices []int) {
		anchor, ok := merged[indices[0]]
		if !ok {
			anchor = ds[indices[0]].Clone()
		}
		for _, i := range indices[1:] {
			for k, v := range ds[i] {
				if dataset.IsEmpty(anchor[k]) && !dataset.IsEmpty(v) {
					anchor[k] = v
				}
			}
			drop[i] = true
		}
		merged[indices[0]] = anchor
	}
	for _, g := range rep.ExactGroups {
		absorb(g.Indices)
	}
	for _, g := range rep.NearGroups {
		absorb(g.Indices)
	}

	out := make(dataset.Dataset, 0, len(ds))
	for i, r := range ds {
		if drop[i] {
			continue
		}
		if m, ok := merged[i]; ok {
			r = m
		}
		out = append(out, r)
	}
	return out, nil
}

func validateRequired(ds dataset.Dataset, opt Options) (dataset.Dataset, error) {
	required := opt.Strings("requiredFields", nil)
	if len(required) == 0 {
		return ds, nil
	}
	out := make(dataset.Dataset, 0, len(ds))
	for _, r := range ds {
		ok := true
		for _, f := range required {
			if dataset.IsEmpty(r[f]) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func fillMissing(ds dataset.Dataset, opt Options) (dataset.Dataset, error) {
	defaults := opt.Values("defaults")
	if len(defaults) == 0 {
		return ds, nil
	}
	fields := make([]string, 0, len(defaults))
	for f := range defaults {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	fill := make(map[string]any, len(fields))
	for _, f := range fields {
		v, err := fillValue(ds, f, defaults[f])
		if err != nil {
			return nil, err
		}
		fill[f] = v
	}
	out := make(dataset.Dataset, len(ds))
	for i, r := range ds {
		nr := r.Clone()
		for _, f := range fields {
			if dataset.IsEmpty(nr[f]) && fill[f] != nil {
				nr[f] = fill[f]
			}
		}
		out[i] = nr
	}
	return out, nil
}

// Fill values computed from the filled numeric values of the field.
const (
	FillMean   = "$mean"
	FillMedian = "$median"
)

// fillValue resolves FillMean and FillMedian; other defaults are literal.
// A statistic over a field with no numeric values yields nil, which leaves
// the blanks untouched.
func fillValue(ds dataset.Dataset, field string, def any) (any, error) {
	name, ok := def.(string)
	if !ok || (name != FillMean && name != FillMedian) {
		return def, nil
	}
	var nums stats.Float64Data
	for _, r := range ds {
		if x, ok := numeric(r[field]); ok {
			nums = append(nums, x)
		}
	}
	if len(nums) == 0 {
		return nil, nil
	}
	var (
		v   float64
		err error
	)
	if name == FillMean {
		v, err = stats.Mean(nums)
	} else {
		v, err = stats.Median(nums)
	}
	if err != nil {
		return nil, fmt.Errorf("%s of %s: %w", name, field, err)
	}
	return v, nil
}

// mapValues returns a copy of ds with fn applied to every value.
func mapValues(ds dataset.Dataset, fn func(field string, v any) any) dataset.Dataset {
	out := make(dataset.Dataset, len(ds))
	for i, r := range ds {
		nr := make(dataset.Record, len(r))
		for k, v := range r {
			nr[k] = fn(k, v)
		}
		out[i] = nr
	}
	return out
}

// targetFields picks fields from the "fields" option, else by name hint.
func targetFields(opt Options, hint func(string) bool) func(string) bool {
	if set := fieldSet(opt.Strings("fields", nil)); set != nil {
		return func(f string) bool { return set[f] }
	}
	return hint
}

func fieldSet(fields []string) map[string]bool {
	if len(fields) == 0 {
		return nil
	}
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func numeric(v any) (float64, bool) {
	if dataset.IsEmpty(v) {
		return 0, false
	}
	if f, ok := dataset.Float(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		return analysis.ParseNumber(s)
	}
	return 0, false
}
