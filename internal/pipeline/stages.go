package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/tabloom-cli/internal/analysis"
	"github.com/KaramelBytes/tabloom-cli/internal/cleaning"
	"github.com/KaramelBytes/tabloom-cli/internal/insight"
	"github.com/KaramelBytes/tabloom-cli/internal/parser"
	"github.com/KaramelBytes/tabloom-cli/internal/quality"
	"github.com/KaramelBytes/tabloom-cli/internal/report"
)

const (
	// typeSampleRows bounds the rows inspected for DataSummary.FieldTypes.
	typeSampleRows = 100
	octetStream    = "application/octet-stream"
	// TrendSlope is the absolute slope above which a numeric field is
	// flagged as trending.
	TrendSlope = 0.1
)

func (o *Orchestrator) upload(ctx context.Context, file File, opt Options) (*UploadResult, error) {
	if err := o.validate.StructCtx(ctx, file); err != nil {
		return nil, validationError(err)
	}
	limit := opt.maxSize()
	if file.Size > limit {
		return nil, &ValidationError{Field: "size", Reason: fmt.Sprintf("declared size %d exceeds the %d byte limit", file.Size, limit)}
	}

	// A declared type must be on the allow-list itself; the extension only
	// stands in when nothing useful was declared.
	mimeType := parser.BaseMime(file.MimeType)
	if mimeType == "" || mimeType == octetStream {
		mimeType = o.deps.Parsers.MimeForExtension(file.Name)
	}
	if mimeType == "" {
		return nil, &ValidationError{
			Field:  "mimeType",
			Reason: fmt.Sprintf("cannot determine a supported type for %q (accepted extensions: %s)", file.Name, strings.Join(o.deps.Parsers.Extensions(), ", ")),
		}
	}
	p, err := o.deps.Parsers.Lookup(mimeType, "")
	if err != nil {
		return nil, &ValidationError{
			Field:  "mimeType",
			Reason: fmt.Sprintf("unsupported file type %q (accepted types: %s)", mimeType, strings.Join(o.deps.Parsers.MimeTypes(), ", ")),
		}
	}
	o.UpdateStageProgress(StageUpload, 25, "metadata validated")

	content, err := io.ReadAll(io.LimitReader(file.Content, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if int64(len(content)) > limit {
		return nil, &ValidationError{Field: "content", Reason: fmt.Sprintf("content exceeds the %d byte limit", limit)}
	}
	if len(content) == 0 {
		return nil, &ValidationError{Field: "content", Reason: "file is empty"}
	}
	o.UpdateStageProgress(StageUpload, 75, fmt.Sprintf("read %d bytes", len(content)))

	detected := mimetype.Detect(content)
	res := &UploadResult{
		FileName:     file.Name,
		MimeType:     mimeType,
		DetectedMime: detected.String(),
		Size:         int64(len(content)),
		LastModified: file.LastModified,
		Content:      content,
	}
	if !o.compatible(detected, mimeType, p) {
		msg := fmt.Sprintf("content looks like %s but was declared as %s", detected.String(), mimeType)
		res.Warnings = append(res.Warnings, msg)
		o.addLog("warn", StageUpload, msg)
	}
	return res, nil
}

// compatible reports whether the sniffed type agrees with the declared one,
// either directly, through a parent type, or by selecting the same parser.
func (o *Orchestrator) compatible(detected *mimetype.MIME, declared string, p parser.Parser) bool {
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(declared) {
			return true
		}
	}
	dp, err := o.deps.Parsers.Lookup(detected.String(), "")
	return err == nil && dp.Name() == p.Name()
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: strings.ToLower(fe.Field()), Reason: fmt.Sprintf("failed %q check", fe.Tag())}
	}
	return &ValidationError{Reason: err.Error()}
}

func (o *Orchestrator) parse(ctx context.Context, up *UploadResult, opt Options) (*ParseResult, error) {
	// Dispatch on the type resolved by the upload stage only, so both
	// stages agree on the parser.
	ds, p, err := o.deps.Parsers.Parse(ctx, up.MimeType, "", up.Content, opt.Parse)
	if err != nil {
		format := ""
		if p != nil {
			format = p.Name()
		}
		return nil, &ParseError{Format: format, Err: err}
	}
	if len(ds) == 0 {
		return nil, &ParseError{Format: p.Name(), Err: ErrEmptyDataset}
	}
	o.UpdateStageProgress(StageParse, 70, fmt.Sprintf("parsed %d records as %s", len(ds), p.Name()))

	sample := ds
	if len(sample) > typeSampleRows {
		sample = sample[:typeSampleRows]
	}
	fields := ds.Fields()
	types := make(map[string]string, len(fields))
	for _, f := range fields {
		types[f] = analysis.TypeEmpty
		for _, r := range sample {
			if v, ok := r[f]; ok && v != nil {
				if t := analysis.DetectType(v); t != analysis.TypeEmpty {
					types[f] = t
					break
				}
			}
		}
	}
	return &ParseResult{
		Format: p.Name(),
		Data:   ds,
		Summary: DataSummary{
			RecordCount: len(ds),
			Fields:      fields,
			FieldTypes:  types,
			SampledRows: len(sample),
		},
	}, nil
}

func (o *Orchestrator) clean(_ context.Context, pr *ParseResult, opt Options) (*CleaningReport, error) {
	engine := o.deps.Engine
	rules := opt.cleanRules()
	before := engine.CalculateQualityScore(pr.Data)
	o.UpdateStageProgress(StageClean, 5, fmt.Sprintf("quality before cleaning: %d", before))

	res := engine.ApplyRulesProgress(pr.Data, rules, opt.Clean.RuleOptions, func(done, total int, oc cleaning.Outcome) {
		o.UpdateStageProgress(StageClean, 5+done*90/total, fmt.Sprintf("%s %s: %d -> %d records", oc.RuleID, oc.Status, oc.Before, oc.After))
	})

	cr := &CleaningReport{
		Rules:         rules,
		Statistics:    res.Statistics,
		Outcomes:      res.Outcomes,
		Warnings:      res.Warnings,
		QualityBefore: before,
		QualityAfter:  res.Statistics.QualityScore,
		Data:          res.Data,
	}
	for _, rerr := range res.Errors {
		cr.Errors = append(cr.Errors, rerr.Error())
		o.addLog("warn", StageClean, rerr.Error())
	}
	return cr, nil
}

func (o *Orchestrator) extract(_ context.Context, up *UploadResult, cr *CleaningReport) (*ExtractResult, error) {
	prof := o.deps.Analyzer.Report(up.FileName, cr.Data)
	o.UpdateStageProgress(StageExtract, 50, fmt.Sprintf("profiled %d fields", len(prof.Fields)))

	er := &ExtractResult{
		Distributions: map[string][]analysis.ValueCount{},
		Fields:        prof.Fields,
		Duplicates:    *prof.Duplicates,
		Profile:       prof,
	}
	var completeness, consistency float64
	for _, f := range prof.Fields {
		fs := FieldStatistic{Field: f.Name, Completeness: f.CompletenessRate * 100, DominantType: f.DominantType}
		if f.Filled > 0 {
			fs.Uniqueness = float64(f.UniqueCount) / float64(f.Filled) * 100
		}
		er.BasicStatistics = append(er.BasicStatistics, fs)
		if len(f.TopValues) > 0 {
			er.Distributions[f.Name] = f.TopValues
		}
		if f.IsNumeric() {
			if p, ok := fitTrend(cr.Data.Values(f.Name), f.Name); ok {
				er.Patterns = append(er.Patterns, p)
			}
		}
		completeness += f.CompletenessRate * 100
		consistency += f.FormatConsistency * 100
	}
	if n := float64(len(prof.Fields)); n > 0 {
		completeness /= n
		consistency /= n
	}
	er.KeyMetrics = keyMetrics(len(cr.Data), completeness, consistency, er.Duplicates.UniqueRecords)
	return er, nil
}

// keyMetrics applies overall = round(0.4·completeness + 0.4·consistency +
// 0.2·min(uniqueness/total·100, 100)).
func keyMetrics(total int, completeness, consistency float64, unique int) KeyMetrics {
	km := KeyMetrics{TotalRecords: total, Completeness: completeness, Consistency: consistency, Uniqueness: unique}
	uniq := 0.0
	if total > 0 {
		uniq = math.Min(float64(unique)/float64(total)*100, 100)
	}
	km.OverallQuality = int(math.Round(0.4*completeness + 0.4*consistency + 0.2*uniq))
	return km
}

// fitTrend fits y = a + b·x over the numeric values of a field, x being the
// record position.
func fitTrend(values []any, field string) (Pattern, bool) {
	var xs, ys []float64
	for i, v := range values {
		if f, ok := analysis.NumericValue(v); ok {
			xs = append(xs, float64(i))
			ys = append(ys, f)
		}
	}
	if len(ys) < 2 {
		return Pattern{}, false
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return Pattern{}, false
	}
	p := Pattern{Field: field, Slope: beta, Intercept: alpha, Points: len(ys), Direction: TrendStable}
	if math.Abs(beta) > TrendSlope {
		p.Trend = true
		p.Direction = TrendIncreasing
		if beta < 0 {
			p.Direction = TrendDecreasing
		}
	}
	return p, true
}

func (o *Orchestrator) summarize(_ context.Context, up *UploadResult, pr *ParseResult, cr *CleaningReport, er *ExtractResult) (*report.Summary, error) {
	fields := cr.Data.Fields()
	ov := report.DataOverview{
		FileName:       up.FileName,
		FileSize:       up.Size,
		MimeType:       up.MimeType,
		Format:         pr.Format,
		OriginalCount:  cr.Statistics.OriginalCount,
		ProcessedCount: cr.Statistics.ProcessedCount,
		RemovedCount:   cr.Statistics.RemovedCount,
		ModifiedCount:  cr.Statistics.ModifiedCount,
		FieldCount:     len(fields),
		Fields:         fields,
		ProcessedAt:    o.deps.Clock(),
	}

	bd := o.deps.Engine.Scorer().Evaluate(cr.Data)
	km := er.KeyMetrics
	q := report.QualityReport{
		OverallScore: cr.QualityAfter,
		Grade:        quality.Grade(float64(cr.QualityAfter)),
		ScoreBefore:  cr.QualityBefore,
		Completeness: report.NewDimension("completeness", int(math.Round(km.Completeness)),
			"Share of filled values across all fields."),
		Consistency: report.NewDimension("consistency", int(math.Round(km.Consistency)),
			"Share of values following their field's dominant format."),
		Accuracy: report.NewDimension("accuracy", int(math.Round(bd.Accuracy*100)),
			fmt.Sprintf("%d of %d hinted values passed format checks.", bd.Passed, bd.Checked)),
	}
	q.Issues = append(q.Issues, up.Warnings...)
	q.Issues = append(q.Issues, cr.Warnings...)
	q.Issues = append(q.Issues, cr.Errors...)
	if er.Duplicates.Truncated {
		q.Issues = append(q.Issues, fmt.Sprintf("near-duplicate search covered only the first %d records", o.deps.Analyzer.Options().MaxPairwise))
	}
	o.UpdateStageProgress(StageSummarize, 50, fmt.Sprintf("overall quality %d (%s)", q.OverallScore, q.Grade))

	proc := report.NewProcessingReport(o.stageTimings(), cr.Statistics.ProcessedCount)
	proc.RulesApplied = cr.AppliedRules()
	proc.RulesFailed = cr.FailedRules()

	return &report.Summary{
		Overview:        ov,
		Quality:         q,
		Processing:      proc,
		Visualizations:  report.Charts(ov, q, er.Fields),
		Recommendations: report.Recommend(q, er.Fields, er.Duplicates, proc.RulesFailed),
	}, nil
}

// aiAnalysis asks the insight provider and substitutes the fallback on any
// failure, so this stage never fails the run.
func (o *Orchestrator) aiAnalysis(ctx context.Context, s *report.Summary, er *ExtractResult, opt Options) (*report.AIAnalysis, error) {
	provider := o.deps.Insights
	if provider == nil || opt.aiDisabled() {
		out := insight.FallbackAnalysis(s.Overview, s.Quality, s.Processing, nil)
		o.UpdateStageProgress(StageAIAnalysis, 90, "no insight provider configured, using fallback")
		return &out, nil
	}
	if llm, ok := provider.(*insight.LLM); ok && er.Profile != nil {
		provider = llm.WithProfile(er.Profile.Markdown())
	}
	o.UpdateStageProgress(StageAIAnalysis, 10, "requesting insights from "+provider.Name())

	out, err := o.callProvider(ctx, provider, s)
	if err != nil {
		cerr := &CollaboratorError{Provider: provider.Name(), Err: err}
		o.logger.Warn("insight provider failed, using fallback", zap.Error(cerr))
		o.addLog("warn", StageAIAnalysis, cerr.Error())
		fb := insight.FallbackAnalysis(s.Overview, s.Quality, s.Processing, cerr)
		return &fb, nil
	}
	return &out, nil
}

func (o *Orchestrator) callProvider(ctx context.Context, p insight.Provider, s *report.Summary) (out report.AIAnalysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return insight.Analyze(ctx, p, s.Overview, s.Quality, s.Processing)
}
