package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/tabloom-cli/internal/analysis"
	"github.com/KaramelBytes/tabloom-cli/internal/quality"
)

// Throughput returns records per second, computed as records/ms × 1000.
// A zero duration yields 0.
func Throughput(records int, d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	if ms <= 0 {
		return 0
	}
	return float64(records) / ms * 1000
}

// NewProcessingReport totals stage timings.
func NewProcessingReport(stages []StageTiming, records int) ProcessingReport {
	var total time.Duration
	for i := range stages {
		stages[i].DurationMS = stages[i].Duration.Milliseconds()
		total += stages[i].Duration
	}
	return ProcessingReport{
		Stages:        stages,
		TotalDuration: total,
		TotalMS:       total.Milliseconds(),
		Records:       records,
		Throughput:    Throughput(records, total),
	}
}

// lowFieldCutoff flags fields whose completeness or format share is below
// the good threshold.
const lowFieldCutoff = quality.GoodThreshold / 100.0

// Recommend derives threshold-driven recommendations from the quality
// report, the field profile and the duplicate report of the cleaned data.
func Recommend(q QualityReport, fields []analysis.FieldAnalysis, dup analysis.DuplicateReport, failedRules []string) []Recommendation {
	var out []Recommendation
	if q.Completeness.Status != quality.StatusGood {
		out = append(out, Recommendation{
			Priority:    priorityFor(q.Completeness),
			Category:    "completeness",
			Title:       "Fill or drop incomplete fields",
			Description: describeFields("Completeness is %d%%.", q.Completeness.Score, fieldsBelow(fields, func(f analysis.FieldAnalysis) float64 { return f.CompletenessRate })),
		})
	}
	if q.Consistency.Status != quality.StatusGood {
		out = append(out, Recommendation{
			Priority:    priorityFor(q.Consistency),
			Category:    "consistency",
			Title:       "Standardize value formats and terms",
			Description: describeFields("Consistency is %d%%.", q.Consistency.Score, fieldsBelow(fields, func(f analysis.FieldAnalysis) float64 { return f.FormatConsistency })),
		})
	}
	if q.Accuracy.Status != quality.StatusGood {
		out = append(out, Recommendation{
			Priority:    priorityFor(q.Accuracy),
			Category:    "accuracy",
			Title:       "Review values failing format checks",
			Description: fmt.Sprintf("Accuracy is %d%%. Dates, numbers and e-mail addresses in hinted fields did not parse.", q.Accuracy.Score),
		})
	}
	if dup.ExactDuplicates > 0 {
		out = append(out, Recommendation{
			Priority:    PriorityMedium,
			Category:    "duplicates",
			Title:       "Remove remaining exact duplicates",
			Description: fmt.Sprintf("%d records repeat another record across all filled fields. Run REMOVE_DUPLICATES with key fields that identify a record.", dup.ExactDuplicates),
		})
	}
	if dup.NearDuplicates > 0 {
		out = append(out, Recommendation{
			Priority:    PriorityLow,
			Category:    "duplicates",
			Title:       "Review near-duplicate records",
			Description: fmt.Sprintf("%d records are at least %.0f%% similar to another record. MERGE_SIMILAR can collapse them.", dup.NearDuplicates, dup.Threshold*100),
		})
	}
	if len(failedRules) > 0 {
		out = append(out, Recommendation{
			Priority:    PriorityHigh,
			Category:    "processing",
			Title:       "Investigate failed cleaning rules",
			Description: "These rules failed and were skipped: " + strings.Join(failedRules, ", ") + ".",
		})
	}
	if len(out) == 0 {
		out = append(out, Recommendation{
			Priority:    PriorityLow,
			Category:    "maintenance",
			Title:       "Keep monitoring data quality",
			Description: fmt.Sprintf("All quality dimensions are good (overall %d). Re-run the pipeline on new exports to catch regressions.", q.OverallScore),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return priorityRank(out[i].Priority) < priorityRank(out[j].Priority) })
	return out
}

func priorityFor(d QualityDimension) string {
	if d.Status == quality.StatusPoor {
		return PriorityHigh
	}
	return PriorityMedium
}

func priorityRank(p string) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

func fieldsBelow(fields []analysis.FieldAnalysis, metric func(analysis.FieldAnalysis) float64) []string {
	var out []string
	for _, f := range fields {
		if f.Filled == 0 && f.Total == 0 {
			continue
		}
		if metric(f) < lowFieldCutoff {
			out = append(out, f.Name)
		}
	}
	return out
}

func describeFields(lead string, score int, names []string) string {
	s := fmt.Sprintf(lead, score)
	if len(names) == 0 {
		return s
	}
	if len(names) > 5 {
		names = append(names[:5:5], fmt.Sprintf("%d more", len(names)-5))
	}
	return s + " Affected fields: " + strings.Join(names, ", ") + "."
}

// Charts builds the chart-ready series shown next to the summary.
func Charts(ov DataOverview, q QualityReport, fields []analysis.FieldAnalysis) []Visualization {
	var out []Visualization

	dims := Visualization{ID: "quality-dimensions", Type: ChartBar, Title: "Quality by dimension"}
	for _, d := range q.Dimensions() {
		dims.Labels = append(dims.Labels, d.Name)
		dims.Values = append(dims.Values, float64(d.Score))
	}
	out = append(out, dims)

	out = append(out, Visualization{
		ID:     "record-flow",
		Type:   ChartBar,
		Title:  "Records before and after cleaning",
		Labels: []string{"original", "removed", "processed"},
		Values: []float64{float64(ov.OriginalCount), float64(ov.RemovedCount), float64(ov.ProcessedCount)},
	})

	if len(fields) == 0 {
		return out
	}
	comp := Visualization{ID: "field-completeness", Type: ChartBar, Title: "Completeness by field (%)"}
	types := map[string]int{}
	for _, f := range fields {
		comp.Labels = append(comp.Labels, f.Name)
		comp.Values = append(comp.Values, math.Round(f.CompletenessRate*1000)/10)
		types[f.DominantType]++
	}
	out = append(out, comp)

	typeNames := make([]string, 0, len(types))
	for k := range types {
		typeNames = append(typeNames, k)
	}
	sort.Strings(typeNames)
	pie := Visualization{ID: "field-types", Type: ChartPie, Title: "Fields by detected type"}
	for _, k := range typeNames {
		pie.Labels = append(pie.Labels, k)
		pie.Values = append(pie.Values, float64(types[k]))
	}
	out = append(out, pie)

	for _, f := range fields {
		if f.IsNumeric() || len(f.TopValues) < 2 {
			continue
		}
		top := Visualization{ID: "top-values-" + f.Name, Type: ChartBar, Title: "Most frequent values of " + f.Name}
		for _, vc := range f.TopValues {
			top.Labels = append(top.Labels, vc.Value)
			top.Values = append(top.Values, float64(vc.Count))
		}
		out = append(out, top)
		break
	}
	return out
}
