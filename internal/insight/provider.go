// Package insight turns the pipeline's summary into natural-language
// findings, recommendations and an executive summary.
package insight

import (
	"context"

	"github.com/KaramelBytes/tabloom-cli/internal/report"
)

// Provider generates the three AI-Analysis artefacts. Every call may fail;
// callers substitute Fallback output on error.
type Provider interface {
	Name() string
	GenerateDataInsights(ctx context.Context, ov report.DataOverview, q report.QualityReport) (report.DataInsights, error)
	GenerateRecommendations(ctx context.Context, q report.QualityReport, p report.ProcessingReport, in report.DataInsights) ([]report.Recommendation, error)
	GenerateExecutiveSummary(ctx context.Context, ov report.DataOverview, q report.QualityReport, in report.DataInsights, recs []report.Recommendation) (report.ExecutiveSummary, error)
}
