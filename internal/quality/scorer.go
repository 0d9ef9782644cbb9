// Package quality computes the composite 0-100 data quality score.
package quality

import (
	"math"
	"time"

	"github.com/KaramelBytes/tabloom-cli/internal/analysis"
	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

// Weights blends the three quality dimensions. They should sum to 1.
type Weights struct {
	Completeness float64 `mapstructure:"completeness" yaml:"completeness" json:"completeness"`
	Accuracy     float64 `mapstructure:"accuracy" yaml:"accuracy" json:"accuracy"`
	Consistency  float64 `mapstructure:"consistency" yaml:"consistency" json:"consistency"`
}

// DefaultWeights is 40% completeness, 30% accuracy, 30% consistency.
var DefaultWeights = Weights{Completeness: 0.4, Accuracy: 0.3, Consistency: 0.3}

// VariantTolerance is the share of the dataset size that distinct synonym
// variants may reach before consistency drops to zero.
const VariantTolerance = 0.1

// Breakdown is the per-dimension result of a scoring pass. Dimensions are
// ratios in 0..1.
type Breakdown struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Consistency  float64 `json:"consistency"`
	Variants     int     `json:"variants"`
	Checked      int     `json:"checked"`
	Passed       int     `json:"passed"`
	Score        int     `json:"score"`
}

// Scorer computes quality scores. The zero value uses DefaultWeights,
// DefaultTerms and every observed field as required.
type Scorer struct {
	Weights        Weights
	RequiredFields []string
	Terms          map[string]string
}

// NewScorer returns a scorer with default weights and terms.
func NewScorer(required ...string) *Scorer {
	return &Scorer{Weights: DefaultWeights, RequiredFields: required, Terms: DefaultTerms}
}

// Score returns the composite score, an integer in [0,100]. An empty
// dataset scores 0.
func (s *Scorer) Score(ds dataset.Dataset) int {
	return s.Evaluate(ds).Score
}

// Evaluate computes every dimension and the composite score.
func (s *Scorer) Evaluate(ds dataset.Dataset) Breakdown {
	if len(ds) == 0 {
		return Breakdown{}
	}
	w := s.Weights
	if w == (Weights{}) {
		w = DefaultWeights
	}
	b := Breakdown{
		Completeness: s.completeness(ds),
	}
	b.Accuracy, b.Checked, b.Passed = accuracy(ds)
	b.Variants = s.variants(ds)
	b.Consistency = 1 - float64(b.Variants)/math.Max(1, VariantTolerance*float64(len(ds)))
	if b.Consistency < 0 {
		b.Consistency = 0
	}
	raw := 100 * (w.Completeness*b.Completeness + w.Accuracy*b.Accuracy + w.Consistency*b.Consistency)
	b.Score = clamp(int(math.Round(raw)))
	return b
}

func (s *Scorer) completeness(ds dataset.Dataset) float64 {
	required := s.RequiredFields
	if len(required) == 0 {
		required = ds.Fields()
	}
	if len(required) == 0 {
		return 0
	}
	filled := 0
	for _, r := range ds {
		for _, f := range required {
			if !dataset.IsEmpty(r[f]) {
				filled++
			}
		}
	}
	return float64(filled) / float64(len(ds)*len(required))
}

// accuracy runs the format checks implied by field names over filled values.
// With nothing to check the dataset is considered accurate.
func accuracy(ds dataset.Dataset) (float64, int, int) {
	checked, passed := 0, 0
	for _, r := range ds {
		for k, v := range r {
			if dataset.IsEmpty(v) {
				continue
			}
			ok, applies := CheckFormat(k, v)
			if !applies {
				continue
			}
			checked++
			if ok {
				passed++
			}
		}
	}
	if checked == 0 {
		return 1, 0, 0
	}
	return float64(passed) / float64(checked), checked, passed
}

// CheckFormat validates v against the format its field name implies. The
// second result is false when no check applies to the field.
func CheckFormat(field string, v any) (ok bool, applies bool) {
	switch {
	case IsDateField(field):
		if _, ok := v.(time.Time); ok {
			return true, true
		}
		_, _, ok := analysis.ParseDate(dataset.String(v))
		return ok, true
	case IsNumericField(field):
		if _, ok := dataset.Float(v); ok {
			return true, true
		}
		_, ok := analysis.ParseNumber(dataset.String(v))
		return ok, true
	case IsEmailField(field):
		return analysis.DetectType(v) == analysis.TypeEmail, true
	}
	return false, false
}

// variants counts distinct non-canonical terms present in string values.
func (s *Scorer) variants(ds dataset.Dataset) int {
	terms := s.Terms
	if terms == nil {
		terms = DefaultTerms
	}
	seen := map[string]struct{}{}
	for _, r := range ds {
		for _, v := range r {
			str, ok := v.(string)
			if !ok {
				continue
			}
			n := dataset.Normalize(str)
			if canon, ok := terms[n]; ok && canon != n {
				seen[n] = struct{}{}
			}
		}
	}
	return len(seen)
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
