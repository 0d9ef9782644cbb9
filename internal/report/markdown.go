package report

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/tabloom-cli/internal/analysis"
)

// Document is everything the CLI writes for one run.
type Document struct {
	RunID    string           `json:"runId"`
	Status   string           `json:"status"`
	Error    string           `json:"error,omitempty"`
	Summary  *Summary         `json:"summary,omitempty"`
	Analysis *AIAnalysis      `json:"aiAnalysis,omitempty"`
	Profile  *analysis.Report `json:"profile,omitempty"`
}

// Markdown renders the document. Missing sections are skipped.
func (d Document) Markdown() string {
	var b strings.Builder
	title := "Data quality report"
	if d.Summary != nil && d.Summary.Overview.FileName != "" {
		title += ": " + d.Summary.Overview.FileName
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if d.RunID != "" {
		fmt.Fprintf(&b, "Run: `%s` (%s)\n\n", d.RunID, d.Status)
	}
	if d.Error != "" {
		fmt.Fprintf(&b, "> Run failed: %s\n\n", d.Error)
	}

	if a := d.Analysis; a != nil {
		es := a.ExecutiveSummary
		b.WriteString("## Executive summary\n\n")
		fmt.Fprintf(&b, "**%s** (score %d, %s)\n\n", es.Headline, es.Score, es.Assessment)
		writeList(&b, es.KeyPoints)
		if len(es.NextSteps) > 0 {
			b.WriteString("Next steps:\n\n")
			writeList(&b, es.NextSteps)
		}
	}

	if s := d.Summary; s != nil {
		ov := s.Overview
		b.WriteString("## Overview\n\n")
		fmt.Fprintf(&b, "- File: %s (%d bytes, %s)\n", ov.FileName, ov.FileSize, ov.Format)
		fmt.Fprintf(&b, "- Records: %d original, %d removed, %d processed\n", ov.OriginalCount, ov.RemovedCount, ov.ProcessedCount)
		fmt.Fprintf(&b, "- Fields (%d): %s\n\n", ov.FieldCount, strings.Join(ov.Fields, ", "))

		q := s.Quality
		b.WriteString("## Quality\n\n")
		fmt.Fprintf(&b, "Overall score: **%d** (%s), before cleaning %d\n\n", q.OverallScore, q.Grade, q.ScoreBefore)
		b.WriteString("| Dimension | Score | Status |\n|---|---:|---|\n")
		for _, dim := range q.Dimensions() {
			fmt.Fprintf(&b, "| %s | %d | %s |\n", dim.Name, dim.Score, dim.Status)
		}
		b.WriteString("\n")
		if len(q.Issues) > 0 {
			writeList(&b, q.Issues)
		}

		p := s.Processing
		b.WriteString("## Processing\n\n")
		b.WriteString("| Stage | Duration (ms) |\n|---|---:|\n")
		for _, st := range p.Stages {
			fmt.Fprintf(&b, "| %s | %d |\n", st.Name, st.DurationMS)
		}
		fmt.Fprintf(&b, "\nThroughput: %.1f records/s over %d ms\n\n", p.Throughput, p.TotalMS)
		if len(p.RulesApplied) > 0 {
			fmt.Fprintf(&b, "Rules applied: %s\n\n", strings.Join(p.RulesApplied, ", "))
		}
		if len(p.RulesFailed) > 0 {
			fmt.Fprintf(&b, "Rules failed: %s\n\n", strings.Join(p.RulesFailed, ", "))
		}

		writeRecommendations(&b, "Recommendations", s.Recommendations)
	}

	if a := d.Analysis; a != nil {
		b.WriteString("## Insights\n\n")
		if a.Insights.Summary != "" {
			b.WriteString(a.Insights.Summary + "\n\n")
		}
		for _, f := range a.Insights.Findings {
			fmt.Fprintf(&b, "- [%s] **%s**: %s\n", f.Severity, f.Title, f.Description)
		}
		if len(a.Insights.Findings) > 0 {
			b.WriteString("\n")
		}
		writeRecommendations(&b, "AI recommendations", a.Recommendations)
		src := a.Source
		if a.Model != "" {
			src += ", " + a.Model
		}
		fmt.Fprintf(&b, "_Insight source: %s_\n\n", src)
	}

	if d.Profile != nil {
		b.WriteString("## Field profile\n\n```\n")
		b.WriteString(strings.TrimRight(d.Profile.Markdown(), "\n"))
		b.WriteString("\n```\n")
	}
	return b.String()
}

func writeList(b *strings.Builder, items []string) {
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	if len(items) > 0 {
		b.WriteString("\n")
	}
}

func writeRecommendations(b *strings.Builder, heading string, recs []Recommendation) {
	if len(recs) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, r := range recs {
		fmt.Fprintf(b, "- **[%s] %s**: %s\n", r.Priority, r.Title, r.Description)
	}
	b.WriteString("\n")
}
