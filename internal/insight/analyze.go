package insight

import (
	"context"
	"fmt"

	"github.com/KaramelBytes/tabloom-cli/internal/report"
)

// Analyze runs the three provider calls in order, feeding each result into
// the next. The first error aborts and is returned with the failing step.
func Analyze(ctx context.Context, p Provider, ov report.DataOverview, q report.QualityReport, proc report.ProcessingReport) (report.AIAnalysis, error) {
	out := report.AIAnalysis{Source: report.SourceLLM, Model: p.Name()}
	if _, ok := p.(Fallback); ok {
		out.Source, out.Model = report.SourceFallback, ""
	}
	var err error
	if out.Insights, err = p.GenerateDataInsights(ctx, ov, q); err != nil {
		return report.AIAnalysis{}, fmt.Errorf("data insights: %w", err)
	}
	if out.Recommendations, err = p.GenerateRecommendations(ctx, q, proc, out.Insights); err != nil {
		return report.AIAnalysis{}, fmt.Errorf("recommendations: %w", err)
	}
	if out.ExecutiveSummary, err = p.GenerateExecutiveSummary(ctx, ov, q, out.Insights, out.Recommendations); err != nil {
		return report.AIAnalysis{}, fmt.Errorf("executive summary: %w", err)
	}
	return out, nil
}

// FallbackAnalysis is the deterministic result used when a provider fails.
func FallbackAnalysis(ov report.DataOverview, q report.QualityReport, proc report.ProcessingReport, reason error) report.AIAnalysis {
	out, _ := Analyze(context.Background(), Fallback{}, ov, q, proc)
	if reason != nil {
		out.FallbackReason = reason.Error()
	}
	return out
}
