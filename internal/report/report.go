// Package report holds the result documents produced by the Summarize and
// AI-Analysis stages and renders them for the CLI.
package report

import (
	"time"

	"github.com/KaramelBytes/tabloom-cli/internal/quality"
)

// DataOverview describes the processed file.
type DataOverview struct {
	FileName       string    `json:"fileName"`
	FileSize       int64     `json:"fileSize"`
	MimeType       string    `json:"mimeType,omitempty"`
	Format         string    `json:"format,omitempty"`
	OriginalCount  int       `json:"originalCount"`
	ProcessedCount int       `json:"processedCount"`
	RemovedCount   int       `json:"removedCount"`
	ModifiedCount  int       `json:"modifiedCount"`
	FieldCount     int       `json:"fieldCount"`
	Fields         []string  `json:"fields"`
	ProcessedAt    time.Time `json:"processedAt"`
}

// QualityDimension is one scored axis of the quality report.
type QualityDimension struct {
	Name        string `json:"name"`
	Score       int    `json:"score"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

// NewDimension derives the status from the score.
func NewDimension(name string, score int, description string) QualityDimension {
	return QualityDimension{Name: name, Score: score, Status: quality.Status(float64(score)), Description: description}
}

// QualityReport scores the cleaned dataset.
type QualityReport struct {
	OverallScore int              `json:"overallScore"`
	Grade        string           `json:"grade"`
	ScoreBefore  int              `json:"scoreBefore"`
	Completeness QualityDimension `json:"completeness"`
	Consistency  QualityDimension `json:"consistency"`
	Accuracy     QualityDimension `json:"accuracy"`
	Issues       []string         `json:"issues,omitempty"`
}

// Dimensions returns the three dimensions in display order.
func (q QualityReport) Dimensions() []QualityDimension {
	return []QualityDimension{q.Completeness, q.Consistency, q.Accuracy}
}

// StageTiming is the wall time one stage took.
type StageTiming struct {
	Stage      string        `json:"stage"`
	Name       string        `json:"name"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"durationMs"`
}

// ProcessingReport summarizes run timing and cleaning activity.
type ProcessingReport struct {
	Stages        []StageTiming `json:"stages"`
	TotalDuration time.Duration `json:"-"`
	TotalMS       int64         `json:"totalMs"`
	Records       int           `json:"records"`
	// Throughput is records per second over TotalDuration.
	Throughput   float64  `json:"throughput"`
	RulesApplied []string `json:"rulesApplied,omitempty"`
	RulesFailed  []string `json:"rulesFailed,omitempty"`
}

// Chart kinds understood by renderers.
const (
	ChartBar  = "bar"
	ChartPie  = "pie"
	ChartLine = "line"
)

// Visualization is chart-ready data.
type Visualization struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Title  string    `json:"title"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// Recommendation priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Recommendation is a suggested follow-up action.
type Recommendation struct {
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Summary is the Summarize stage result.
type Summary struct {
	Overview        DataOverview     `json:"overview"`
	Quality         QualityReport    `json:"quality"`
	Processing      ProcessingReport `json:"processing"`
	Visualizations  []Visualization  `json:"visualizations"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Insight severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Insight is a single observation about the data.
type Insight struct {
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DataInsights is what the insight provider reports about the dataset.
type DataInsights struct {
	Summary  string    `json:"summary"`
	Findings []Insight `json:"findings"`
}

// ExecutiveSummary is the short management-level verdict.
type ExecutiveSummary struct {
	Headline   string   `json:"headline"`
	Assessment string   `json:"assessment"`
	Score      int      `json:"score"`
	KeyPoints  []string `json:"keyPoints"`
	NextSteps  []string `json:"nextSteps,omitempty"`
}

// Insight sources.
const (
	SourceLLM      = "llm"
	SourceFallback = "fallback"
)

// AIAnalysis is the AI-Analysis stage result.
type AIAnalysis struct {
	Source           string           `json:"source"`
	Model            string           `json:"model,omitempty"`
	Insights         DataInsights     `json:"insights"`
	Recommendations  []Recommendation `json:"recommendations"`
	ExecutiveSummary ExecutiveSummary `json:"executiveSummary"`
	// FallbackReason is set when the provider failed.
	FallbackReason string `json:"fallbackReason,omitempty"`
}
