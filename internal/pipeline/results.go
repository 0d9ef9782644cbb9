package pipeline

import (
	"time"

	"github.com/KaramelBytes/tabloom-cli/internal/analysis"
	"github.com/KaramelBytes/tabloom-cli/internal/cleaning"
	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
	"github.com/KaramelBytes/tabloom-cli/internal/report"
)

// UploadResult is the validated upload.
type UploadResult struct {
	FileName     string    `json:"fileName"`
	MimeType     string    `json:"mimeType"`
	DetectedMime string    `json:"detectedMime,omitempty"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified,omitempty"`
	Warnings     []string  `json:"warnings,omitempty"`
	Content      []byte    `json:"-"`
}

// DataSummary describes freshly parsed data.
type DataSummary struct {
	RecordCount int               `json:"recordCount"`
	Fields      []string          `json:"fields"`
	FieldTypes  map[string]string `json:"fieldTypes"`
	SampledRows int               `json:"sampledRows"`
}

// ParseResult holds the parsed records.
type ParseResult struct {
	Format  string          `json:"format"`
	Summary DataSummary     `json:"summary"`
	Data    dataset.Dataset `json:"-"`
}

// CleaningReport wraps the rule engine result.
type CleaningReport struct {
	Rules         []string            `json:"rules"`
	Statistics    cleaning.Statistics `json:"statistics"`
	Outcomes      []cleaning.Outcome  `json:"outcomes"`
	Warnings      []string            `json:"warnings,omitempty"`
	Errors        []string            `json:"errors,omitempty"`
	QualityBefore int                 `json:"qualityBefore"`
	QualityAfter  int                 `json:"qualityAfter"`
	Data          dataset.Dataset     `json:"-"`
}

// FailedRules lists rules that raised an error.
func (c *CleaningReport) FailedRules() []string {
	var out []string
	for _, oc := range c.Outcomes {
		if oc.Status == cleaning.RuleFailed {
			out = append(out, oc.RuleID)
		}
	}
	return out
}

// AppliedRules lists rules that ran successfully.
func (c *CleaningReport) AppliedRules() []string {
	var out []string
	for _, oc := range c.Outcomes {
		if oc.Status == cleaning.RuleApplied {
			out = append(out, oc.RuleID)
		}
	}
	return out
}

// FieldStatistic is the per-field line of BasicStatistics. Percentages are
// 0-100.
type FieldStatistic struct {
	Field        string  `json:"field"`
	Completeness float64 `json:"completeness"`
	Uniqueness   float64 `json:"uniqueness"`
	DominantType string  `json:"dominantType"`
}

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Pattern is the least-squares line through a numeric field in record order.
type Pattern struct {
	Field     string  `json:"field"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	Points    int     `json:"points"`
	Trend     bool    `json:"trend"`
	Direction string  `json:"direction"`
}

// KeyMetrics are the headline numbers of the extract stage.
type KeyMetrics struct {
	TotalRecords   int     `json:"totalRecords"`
	Completeness   float64 `json:"completeness"`
	Consistency    float64 `json:"consistency"`
	Uniqueness     int     `json:"uniqueness"`
	OverallQuality int     `json:"overallQuality"`
}

// ExtractResult holds the statistics of the cleaned data.
type ExtractResult struct {
	BasicStatistics []FieldStatistic                 `json:"basicStatistics"`
	Distributions   map[string][]analysis.ValueCount `json:"distributions"`
	Patterns        []Pattern                        `json:"patterns"`
	KeyMetrics      KeyMetrics                       `json:"keyMetrics"`
	Fields          []analysis.FieldAnalysis         `json:"fields"`
	Duplicates      analysis.DuplicateReport         `json:"duplicates"`
	Profile         *analysis.Report                 `json:"-"`
}

// Results holds each stage's output. Stages that did not complete are nil.
type Results struct {
	Upload     *UploadResult      `json:"upload,omitempty"`
	Parse      *ParseResult       `json:"parse,omitempty"`
	Clean      *CleaningReport    `json:"clean,omitempty"`
	Extract    *ExtractResult     `json:"extract,omitempty"`
	Summarize  *report.Summary    `json:"summarize,omitempty"`
	AIAnalysis *report.AIAnalysis `json:"ai_analysis,omitempty"`
}

// RunSummary is attached to successful runs.
type RunSummary struct {
	FileName       string        `json:"fileName"`
	Format         string        `json:"format"`
	OriginalCount  int           `json:"originalCount"`
	ProcessedCount int           `json:"processedCount"`
	QualityScore   int           `json:"qualityScore"`
	Grade          string        `json:"grade"`
	InsightSource  string        `json:"insightSource"`
	Duration       time.Duration `json:"duration"`
}

// Result is returned by Start. On failure Results holds what completed.
type Result struct {
	Success bool        `json:"success"`
	RunID   string      `json:"runId,omitempty"`
	Results Results     `json:"results"`
	Summary *RunSummary `json:"summary,omitempty"`
	Err     error       `json:"-"`
	Error   string      `json:"error,omitempty"`
}

// Document converts the result into a renderable report document.
func (r *Result) Document() report.Document {
	d := report.Document{
		RunID:    r.RunID,
		Status:   string(RunCompleted),
		Error:    r.Error,
		Summary:  r.Results.Summarize,
		Analysis: r.Results.AIAnalysis,
	}
	if !r.Success {
		d.Status = string(RunFailed)
	}
	if r.Results.Extract != nil {
		d.Profile = r.Results.Extract.Profile
	}
	return d
}
