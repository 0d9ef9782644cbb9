package insight

import (
	"context"
	"fmt"

	"github.com/KaramelBytes/tabloom-cli/internal/quality"
	"github.com/KaramelBytes/tabloom-cli/internal/report"
)

// Fallback produces deterministic, threshold-based output. It never fails.
type Fallback struct{}

var _ Provider = Fallback{}

func (Fallback) Name() string { return report.SourceFallback }

func (Fallback) GenerateDataInsights(_ context.Context, ov report.DataOverview, q report.QualityReport) (report.DataInsights, error) {
	in := report.DataInsights{
		Summary: fmt.Sprintf("%s: %d of %d records kept across %d fields; overall quality %d (%s).",
			displayName(ov), ov.ProcessedCount, ov.OriginalCount, ov.FieldCount, q.OverallScore, quality.Grade(float64(q.OverallScore))),
	}
	for _, d := range q.Dimensions() {
		sev := report.SeverityInfo
		switch d.Status {
		case quality.StatusPoor:
			sev = report.SeverityCritical
		case quality.StatusWarning:
			sev = report.SeverityWarning
		}
		in.Findings = append(in.Findings, report.Insight{
			Category:    d.Name,
			Severity:    sev,
			Title:       fmt.Sprintf("%s is %s", d.Name, d.Status),
			Description: fmt.Sprintf("The %s score is %d out of 100.", d.Name, d.Score),
		})
	}
	if ov.RemovedCount > 0 {
		in.Findings = append(in.Findings, report.Insight{
			Category:    "cleaning",
			Severity:    report.SeverityInfo,
			Title:       "Records removed during cleaning",
			Description: fmt.Sprintf("%d empty or duplicate records were dropped.", ov.RemovedCount),
		})
	}
	if q.ScoreBefore > 0 && q.OverallScore != q.ScoreBefore {
		in.Findings = append(in.Findings, report.Insight{
			Category:    "cleaning",
			Severity:    report.SeverityInfo,
			Title:       "Quality changed during cleaning",
			Description: fmt.Sprintf("The quality score moved from %d to %d.", q.ScoreBefore, q.OverallScore),
		})
	}
	return in, nil
}

var dimensionAdvice = map[string]string{
	"completeness": "Fill missing values at the source or enable FILL_MISSING and VALIDATE_REQUIRED.",
	"consistency":  "Align formats and units; extend STANDARDIZE_TERMS with local synonyms.",
	"accuracy":     "Check dates, numbers and e-mail addresses that fail validation.",
}

func (Fallback) GenerateRecommendations(_ context.Context, q report.QualityReport, p report.ProcessingReport, _ report.DataInsights) ([]report.Recommendation, error) {
	var out []report.Recommendation
	for _, d := range q.Dimensions() {
		if d.Status == quality.StatusGood {
			continue
		}
		prio := report.PriorityMedium
		if d.Status == quality.StatusPoor {
			prio = report.PriorityHigh
		}
		out = append(out, report.Recommendation{
			Priority:    prio,
			Category:    d.Name,
			Title:       "Improve " + d.Name,
			Description: fmt.Sprintf("%s scored %d. %s", d.Name, d.Score, dimensionAdvice[d.Name]),
		})
	}
	if len(p.RulesFailed) > 0 {
		out = append(out, report.Recommendation{
			Priority:    report.PriorityHigh,
			Category:    "processing",
			Title:       "Fix failing cleaning rules",
			Description: fmt.Sprintf("%d cleaning rules failed and were skipped.", len(p.RulesFailed)),
		})
	}
	if len(out) == 0 {
		out = append(out, report.Recommendation{
			Priority:    report.PriorityLow,
			Category:    "maintenance",
			Title:       "Keep the current process",
			Description: "All quality dimensions are good. Re-run on new exports to catch regressions.",
		})
	}
	return out, nil
}

var headlines = map[string]string{
	quality.GradeExcellent: "Data quality is excellent",
	quality.GradeWarning:   "Data quality needs attention",
	quality.GradePoor:      "Data quality is poor",
}

func (Fallback) GenerateExecutiveSummary(_ context.Context, ov report.DataOverview, q report.QualityReport, in report.DataInsights, recs []report.Recommendation) (report.ExecutiveSummary, error) {
	grade := quality.Grade(float64(q.OverallScore))
	es := report.ExecutiveSummary{
		Headline:   headlines[grade],
		Assessment: grade,
		Score:      q.OverallScore,
		KeyPoints: []string{
			fmt.Sprintf("%d records processed from %s, %d removed.", ov.ProcessedCount, displayName(ov), ov.RemovedCount),
		},
	}
	for _, d := range q.Dimensions() {
		es.KeyPoints = append(es.KeyPoints, fmt.Sprintf("%s: %d (%s)", d.Name, d.Score, d.Status))
	}
	for _, r := range recs {
		if r.Priority == report.PriorityLow && len(recs) > 1 {
			continue
		}
		es.NextSteps = append(es.NextSteps, r.Title)
	}
	return es, nil
}

func displayName(ov report.DataOverview) string {
	if ov.FileName == "" {
		return "dataset"
	}
	return ov.FileName
}
