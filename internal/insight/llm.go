package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/tabloom-cli/internal/ai"
	"github.com/KaramelBytes/tabloom-cli/internal/report"
	"github.com/KaramelBytes/tabloom-cli/internal/utils"
)

// ErrEmptyResponse is returned when the model answers without usable JSON.
var ErrEmptyResponse = errors.New("empty model response")

const systemPrompt = "You are a data quality analyst. You receive the profile of a tabular dataset after automated cleaning. " +
	"Answer with exactly one JSON object matching the requested shape, no prose and no code fences."

// LLMOptions tune generation.
type LLMOptions struct {
	MaxTokens   int
	Temperature float64
	// Profile is the Markdown field profile added to every prompt.
	Profile string
}

// LLM asks a chat runtime for each artefact and decodes JSON answers.
type LLM struct {
	rt     ai.Runtime
	model  string
	opt    LLMOptions
	logger *zap.Logger
}

var _ Provider = (*LLM)(nil)

// NewLLM wraps a runtime. A nil logger disables logging.
func NewLLM(rt ai.Runtime, model string, opt LLMOptions, logger *zap.Logger) (*LLM, error) {
	if rt == nil {
		return nil, errors.New("insight: runtime is nil")
	}
	if model == "" {
		return nil, errors.New("insight: model is empty")
	}
	if opt.MaxTokens <= 0 {
		opt.MaxTokens = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLM{rt: rt, model: model, opt: opt, logger: logger.Named("insight")}, nil
}

func (l *LLM) Name() string { return l.model }

// WithProfile returns a copy that sends profile with every prompt.
func (l *LLM) WithProfile(profile string) *LLM {
	cp := *l
	cp.opt.Profile = profile
	return &cp
}

func (l *LLM) GenerateDataInsights(ctx context.Context, ov report.DataOverview, q report.QualityReport) (report.DataInsights, error) {
	task := `Describe the dataset. Shape: {"summary": string, "findings": [{"category": string, "severity": "info"|"warning"|"critical", "title": string, "description": string}]}`
	out, err := ask[report.DataInsights](ctx, l, task, map[string]any{"overview": ov, "quality": q})
	if err != nil {
		return report.DataInsights{}, err
	}
	if out.Summary == "" && len(out.Findings) == 0 {
		return report.DataInsights{}, ErrEmptyResponse
	}
	return out, nil
}

func (l *LLM) GenerateRecommendations(ctx context.Context, q report.QualityReport, p report.ProcessingReport, in report.DataInsights) ([]report.Recommendation, error) {
	task := `Recommend follow-up actions. Shape: {"recommendations": [{"priority": "high"|"medium"|"low", "category": string, "title": string, "description": string}]}`
	out, err := ask[struct {
		Recommendations []report.Recommendation `json:"recommendations"`
	}](ctx, l, task, map[string]any{"quality": q, "processing": p, "insights": in})
	if err != nil {
		return nil, err
	}
	if len(out.Recommendations) == 0 {
		return nil, ErrEmptyResponse
	}
	for i := range out.Recommendations {
		out.Recommendations[i].Priority = normalizePriority(out.Recommendations[i].Priority)
	}
	return out.Recommendations, nil
}

func (l *LLM) GenerateExecutiveSummary(ctx context.Context, ov report.DataOverview, q report.QualityReport, in report.DataInsights, recs []report.Recommendation) (report.ExecutiveSummary, error) {
	task := `Write an executive summary. Shape: {"headline": string, "assessment": "excellent"|"warning"|"poor", "score": integer 0-100, "keyPoints": [string], "nextSteps": [string]}`
	out, err := ask[report.ExecutiveSummary](ctx, l, task, map[string]any{"overview": ov, "quality": q, "insights": in, "recommendations": recs})
	if err != nil {
		return report.ExecutiveSummary{}, err
	}
	if out.Headline == "" {
		return report.ExecutiveSummary{}, ErrEmptyResponse
	}
	if out.Score == 0 {
		out.Score = q.OverallScore
	}
	return out, nil
}

// ask sends one JSON-mode request and decodes the answer into T.
func ask[T any](ctx context.Context, l *LLM, task string, input any) (T, error) {
	var zero T
	payload, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return zero, fmt.Errorf("marshal prompt input: %w", err)
	}
	var user strings.Builder
	user.WriteString(task)
	user.WriteString("\n\nInput:\n")
	user.Write(payload)
	if l.opt.Profile != "" {
		// Half the window is left for the answer and the input above.
		budget := ai.ContextTokens(l.model)/2 - utils.CountTokens(user.String()) - l.opt.MaxTokens
		if budget > 0 {
			user.WriteString("\n\nField profile:\n")
			user.WriteString(utils.TruncateToTokenLimit(l.opt.Profile, budget))
		}
	}

	resp, err := l.rt.Generate(ctx, ai.GenerateRequest{
		Model: l.model,
		Messages: []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user.String()},
		},
		MaxTokens:   l.opt.MaxTokens,
		Temperature: l.opt.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		return zero, err
	}
	l.logger.Debug("model answered",
		zap.String("model", l.model),
		zap.String("request_id", resp.RequestID),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	text := extractJSON(resp.Content())
	if text == "" {
		return zero, ErrEmptyResponse
	}
	var out T
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return zero, fmt.Errorf("decode model answer: %w", err)
	}
	return out, nil
}

// extractJSON strips code fences and surrounding prose from a model answer,
// returning the outermost {...} span.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if i := strings.IndexByte(text, '\n'); i >= 0 && !strings.Contains(text[:i], "{") {
			text = text[i+1:]
		}
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case report.PriorityHigh, "critical", "urgent":
		return report.PriorityHigh
	case report.PriorityLow:
		return report.PriorityLow
	default:
		return report.PriorityMedium
	}
}
