package analysis

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

// Report bundles a field profile and duplicate analysis for rendering.
type Report struct {
	Name       string           `json:"name,omitempty"`
	Records    int              `json:"records"`
	Fields     []FieldAnalysis  `json:"fields"`
	Duplicates *DuplicateReport `json:"duplicates,omitempty"`
	Samples    dataset.Dataset  `json:"samples,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// maxSamples is the number of head rows rendered in the Markdown report.
const maxSamples = 5

// Report profiles ds and returns a renderable report.
func (a *Analyzer) Report(name string, ds dataset.Dataset) *Report {
	dup := a.AnalyzeDuplicates(ds)
	r := &Report{
		Name:       name,
		Records:    len(ds),
		Fields:     a.AnalyzeFields(ds),
		Duplicates: &dup,
	}
	n := len(ds)
	if n > maxSamples {
		n = maxSamples
	}
	r.Samples = ds[:n]
	if dup.Truncated {
		r.Warnings = append(r.Warnings, fmt.Sprintf("near-duplicate search limited to the first %d records", a.opt.MaxPairwise))
	}
	return r
}

// Markdown renders the report as compact, LLM-friendly Markdown.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Records: %d\n", r.Records))
	b.WriteString(fmt.Sprintf("Fields: %d\n\n", len(r.Fields)))

	b.WriteString("[SCHEMA]\n")
	for _, f := range r.Fields {
		missPct := 0.0
		if f.Total > 0 {
			missPct = float64(f.Total-f.Filled) * 100.0 / float64(f.Total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (filled %d, missing %.1f%%, unique %d, format %.0f%%)",
			safeName(f.Name), f.DominantType, f.Filled, missPct, f.UniqueCount, f.FormatConsistency*100))
		switch {
		case f.Numeric != nil:
			n := f.Numeric
			b.WriteString(fmt.Sprintf(" — min %.4g, max %.4g, mean %.4g, median %.4g, std %.4g", n.Min, n.Max, n.Mean, n.Median, n.StdDev))
		case len(f.TopValues) > 0:
			b.WriteString(" — top: ")
			lim := len(f.TopValues)
			if lim > 5 {
				lim = 5
			}
			for i, kv := range f.TopValues[:lim] {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
			}
		}
		b.WriteString("\n")
	}

	if d := r.Duplicates; d != nil && (d.ExactDuplicates > 0 || d.NearDuplicates > 0) {
		b.WriteString("\n[DUPLICATES]\n")
		b.WriteString(fmt.Sprintf("- exact: %d redundant records in %d groups\n", d.ExactDuplicates, len(d.ExactGroups)))
		b.WriteString(fmt.Sprintf("- near (similarity ≥ %.2f): %d records in %d groups\n", d.Threshold, d.NearDuplicates, len(d.NearGroups)))
	}

	if len(r.Samples) > 0 && len(r.Fields) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n| ")
		for i, f := range r.Fields {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(f.Name))
		}
		b.WriteString(" |\n|")
		for range r.Fields {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i, f := range r.Fields {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := dataset.String(row[f.Name])
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
