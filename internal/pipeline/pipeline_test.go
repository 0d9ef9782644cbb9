package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"github.com/KaramelBytes/tabloom-cli/internal/cleaning"
	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
	"github.com/KaramelBytes/tabloom-cli/internal/insight"
	"github.com/KaramelBytes/tabloom-cli/internal/parser"
	"github.com/KaramelBytes/tabloom-cli/internal/report"
)

const stockCSV = "materialCode,description,qty,unit,date\n" +
	"M-001,  Steel bolt ,10,pcs,2024-01-05\n" +
	"M-002,Washer,20,pieces,2024-01-06\n" +
	"M-002,Washer,20,pieces,2024-01-06\n" +
	",,,,\n" +
	"M-003,Nut,35,kgs,2024-01-07\n"

func newFactory(t *testing.T, provider insight.Provider, extra ...parser.Parser) *Factory {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := parser.DefaultRegistry()
	for _, p := range extra {
		reg.Register(p)
	}
	f, err := NewFactory(Deps{
		Engine:   cleaning.NewEngine(logger, nil),
		Parsers:  reg,
		Insights: provider,
		Logger:   logger,
	})
	require.NoError(t, err)
	return f
}

func csvFile(name, body string) File {
	return File{Name: name, MimeType: "text/csv", Size: int64(len(body)), LastModified: time.Now(), Content: strings.NewReader(body)}
}

func assertStages(t *testing.T, s Snapshot, want ...StageStatus) {
	t.Helper()
	for i, st := range Stages() {
		assert.Equal(t, want[i], s.StageProgress[st.ID].Status, "stage %s", st.ID)
	}
}

func TestNewFactoryRequiresEngineAndParsers(t *testing.T) {
	_, err := NewFactory(Deps{Parsers: parser.DefaultRegistry()})
	assert.Error(t, err)
	_, err = NewFactory(Deps{Engine: cleaning.NewEngine(nil, nil)})
	assert.Error(t, err)
}

func TestStagesOrder(t *testing.T) {
	var ids []StageID
	for i, s := range Stages() {
		assert.Equal(t, i+1, s.Order)
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []StageID{StageUpload, StageParse, StageClean, StageExtract, StageSummarize, StageAIAnalysis}, ids)
}

func TestStartCSVSucceeds(t *testing.T) {
	o := newFactory(t, nil).New()
	assert.Equal(t, RunIdle, o.Status().Status)
	assert.Equal(t, 0, o.OverallProgress())

	res := o.Start(context.Background(), csvFile("stock.csv", stockCSV), Options{})
	require.True(t, res.Success, res.Error)
	require.NoError(t, res.Err)
	assert.NotEmpty(t, res.RunID)

	s := o.Status()
	assert.Equal(t, RunCompleted, s.Status)
	assert.Equal(t, 100, o.OverallProgress())
	assertStages(t, s, StageCompleted, StageCompleted, StageCompleted, StageCompleted, StageCompleted, StageCompleted)
	assert.Nil(t, s.ErrorInfo)
	assert.NotEmpty(t, s.Logs)
	assert.False(t, s.EndTime.Before(s.StartTime))

	r := res.Results
	require.NotNil(t, r.Upload)
	assert.Empty(t, r.Upload.Warnings)
	assert.Equal(t, "delimited-text", r.Parse.Format)
	assert.Equal(t, 5, r.Parse.Summary.RecordCount)
	assert.Equal(t, "integer", r.Parse.Summary.FieldTypes["qty"])
	assert.Equal(t, 2, r.Clean.Statistics.RemovedCount)
	assert.Equal(t, 3, r.Clean.Statistics.ProcessedCount)
	assert.Equal(t, cleaning.DefaultPipeline(), r.Clean.Rules)
	assert.Equal(t, 3, r.Extract.KeyMetrics.TotalRecords)
	assert.NotNil(t, r.Extract.Profile)
	require.NotNil(t, r.Summarize)
	assert.Equal(t, "stock.csv", r.Summarize.Overview.FileName)
	assert.Equal(t, r.Clean.QualityAfter, r.Summarize.Quality.OverallScore)
	assert.NotEmpty(t, r.Summarize.Processing.Stages)
	assert.NotEmpty(t, r.Summarize.Recommendations)
	require.NotNil(t, r.AIAnalysis)
	assert.Equal(t, report.SourceFallback, r.AIAnalysis.Source)
	assert.Empty(t, r.AIAnalysis.FallbackReason)

	require.NotNil(t, res.Summary)
	assert.Equal(t, 5, res.Summary.OriginalCount)
	assert.Equal(t, report.SourceFallback, res.Summary.InsightSource)

	for _, row := range r.Clean.Data {
		assert.NotContains(t, []string{"pcs", "pieces", "kgs"}, row["unit"])
	}
	assert.Contains(t, res.Document().Markdown(), "stock.csv")
}

func TestStartThreeRowScenario(t *testing.T) {
	o := newFactory(t, nil).New()
	res := o.Start(context.Background(), csvFile("s.csv", "material,qty\n  A ,10\nA,10\n,\n"), Options{
		Clean: CleanOptions{RuleOptions: map[string]cleaning.Options{
			cleaning.RemoveDuplicates: {"keyFields": []string{"material"}},
		}},
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.Results.Clean.Statistics.RemovedCount)
	assert.Equal(t, dataset.Dataset{{"material": "A", "qty": 10.0}}, res.Results.Clean.Data)
}

func TestStartRejectsUnsupportedMime(t *testing.T) {
	o := newFactory(t, nil).New()
	res := o.Start(context.Background(), File{Name: "report.pdf", MimeType: "application/pdf", Size: 4, Content: strings.NewReader("%PDF")}, Options{})
	require.False(t, res.Success)
	var ve *ValidationError
	require.ErrorAs(t, res.Err, &ve)
	assert.Equal(t, "mimeType", ve.Field)

	s := o.Status()
	assert.Equal(t, RunFailed, s.Status)
	assertStages(t, s, StageFailed, StagePending, StagePending, StagePending, StagePending, StagePending)
	require.NotNil(t, s.ErrorInfo)
	assert.Equal(t, StageUpload, s.ErrorInfo.Stage)
	assert.Equal(t, "validation", s.ErrorInfo.Type)
	assert.Equal(t, 0, o.OverallProgress())
	assert.Nil(t, res.Results.Upload)
	assert.Nil(t, res.Summary)
}

func TestDeclaredMimeWinsOverExtension(t *testing.T) {
	f := newFactory(t, nil)
	body := "a,b\n1,2\n"

	o := f.New()
	res := o.Start(context.Background(), File{Name: "data.csv", MimeType: "application/pdf", Size: int64(len(body)), Content: strings.NewReader(body)}, Options{})
	require.False(t, res.Success)
	var ve *ValidationError
	require.ErrorAs(t, res.Err, &ve)
	assert.Equal(t, "mimeType", ve.Field)
	assertStages(t, o.Status(), StageFailed, StagePending, StagePending, StagePending, StagePending, StagePending)

	for _, mt := range []string{"application/octet-stream", ""} {
		res = f.Start(context.Background(), File{Name: "data.csv", MimeType: mt, Size: int64(len(body)), Content: strings.NewReader(body)}, Options{})
		require.True(t, res.Success, "declared %q: %s", mt, res.Error)
		assert.Equal(t, "text/csv", res.Results.Upload.MimeType)
		assert.Equal(t, "delimited-text", res.Results.Parse.Format)
	}

	res = f.Start(context.Background(), File{Name: "data.bin", MimeType: "application/octet-stream", Size: int64(len(body)), Content: strings.NewReader(body)}, Options{})
	require.ErrorAs(t, res.Err, &ve)
	assert.Equal(t, "mimeType", ve.Field)
}

func TestParseDispatchesOnDeclaredType(t *testing.T) {
	body := `[{"sku":"S-1","qty":3}]`
	res := newFactory(t, nil).Start(context.Background(), File{Name: "export.csv", MimeType: "application/json", Size: int64(len(body)), Content: strings.NewReader(body)}, Options{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "json", res.Results.Parse.Format)
	assert.Equal(t, []string{"qty", "sku"}, res.Results.Parse.Summary.Fields)
}

func TestStartValidatesMetadataAndSize(t *testing.T) {
	f := newFactory(t, nil)
	cases := map[string]struct {
		file  File
		opt   Options
		field string
	}{
		"missing name":    {File{Content: strings.NewReader("a\n1\n")}, Options{}, "name"},
		"missing content": {File{Name: "a.csv"}, Options{}, "content"},
		"declared size":   {File{Name: "a.csv", Size: 100, Content: strings.NewReader("a\n1\n")}, Options{Upload: UploadOptions{MaxSize: 10}}, "size"},
		"actual size":     {File{Name: "a.csv", Content: strings.NewReader("abc\n123456789\n")}, Options{Upload: UploadOptions{MaxSize: 10}}, "content"},
		"empty":           {File{Name: "a.csv", Content: strings.NewReader("")}, Options{}, "content"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := f.Start(context.Background(), tc.file, tc.opt)
			var ve *ValidationError
			require.ErrorAs(t, res.Err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestParseFailureKeepsPartialResults(t *testing.T) {
	o := newFactory(t, nil).New()
	body := `[1, 2, 3]`
	res := o.Start(context.Background(), File{Name: "nums.json", Size: int64(len(body)), Content: strings.NewReader(body)}, Options{})
	require.False(t, res.Success)
	var pe *ParseError
	require.ErrorAs(t, res.Err, &pe)
	assert.Equal(t, "json", pe.Format)
	require.NotNil(t, res.Results.Upload)
	assert.Equal(t, "application/json", res.Results.Upload.MimeType)
	assert.Nil(t, res.Results.Parse)
	assert.Equal(t, 17, o.OverallProgress())
	assertStages(t, o.Status(), StageCompleted, StageFailed, StagePending, StagePending, StagePending, StagePending)
}

func TestParseEmptyDataset(t *testing.T) {
	res := newFactory(t, nil).Start(context.Background(), csvFile("h.csv", "a,b\n"), Options{})
	var pe *ParseError
	require.ErrorAs(t, res.Err, &pe)
	assert.ErrorIs(t, res.Err, ErrEmptyDataset)
}

type panicParser struct{}

func (panicParser) Name() string         { return "panicky" }
func (panicParser) MimeTypes() []string  { return []string{"application/x-panic"} }
func (panicParser) Extensions() []string { return []string{".panic"} }
func (panicParser) Parse(context.Context, []byte, parser.Options) (dataset.Dataset, error) {
	panic("parser exploded")
}

func TestStagePanicBecomesStageError(t *testing.T) {
	o := newFactory(t, nil, panicParser{}).New()
	res := o.Start(context.Background(), File{Name: "x.panic", Content: strings.NewReader("data")}, Options{})
	require.False(t, res.Success)
	var se *StageError
	require.ErrorAs(t, res.Err, &se)
	assert.True(t, se.Panic)
	assert.Equal(t, StageParse, se.Stage)
	assert.Equal(t, "stage", o.Status().ErrorInfo.Type)
}

func TestCancelledContextFailsFirstStage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := newFactory(t, nil).New()
	res := o.Start(ctx, csvFile("a.csv", stockCSV), Options{})
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assertStages(t, o.Status(), StageFailed, StagePending, StagePending, StagePending, StagePending, StagePending)
}

type rejectingProvider struct{ insight.Fallback }

func (rejectingProvider) Name() string { return "mock" }
func (rejectingProvider) GenerateDataInsights(context.Context, report.DataOverview, report.QualityReport) (report.DataInsights, error) {
	return report.DataInsights{}, errors.New("service unavailable")
}

type panickingProvider struct{ insight.Fallback }

func (panickingProvider) Name() string { return "mock" }
func (panickingProvider) GenerateRecommendations(context.Context, report.QualityReport, report.ProcessingReport, report.DataInsights) ([]report.Recommendation, error) {
	panic("nil map")
}

func TestRejectingProviderFallsBack(t *testing.T) {
	for name, p := range map[string]insight.Provider{"error": rejectingProvider{}, "panic": panickingProvider{}} {
		t.Run(name, func(t *testing.T) {
			o := newFactory(t, p).New()
			res := o.Start(context.Background(), csvFile("a.csv", stockCSV), Options{})
			require.True(t, res.Success, res.Error)
			ai := res.Results.AIAnalysis
			require.NotNil(t, ai)
			assert.Equal(t, report.SourceFallback, ai.Source)
			assert.Contains(t, ai.FallbackReason, "insight provider mock failed")
			assert.NotEmpty(t, ai.Insights.Findings)
			assert.NotEmpty(t, ai.ExecutiveSummary.Headline)
			assert.Equal(t, RunCompleted, o.Status().Status)
			assert.Equal(t, StageCompleted, o.Status().StageProgress[StageAIAnalysis].Status)
		})
	}
}

type okProvider struct{ insight.Fallback }

func (okProvider) Name() string { return "mock-llm" }

func TestProviderResultIsUsedUnlessDisabled(t *testing.T) {
	f := newFactory(t, okProvider{})
	res := f.Start(context.Background(), csvFile("a.csv", stockCSV), Options{})
	require.True(t, res.Success)
	assert.Equal(t, report.SourceLLM, res.Results.AIAnalysis.Source)
	assert.Equal(t, "mock-llm", res.Results.AIAnalysis.Model)

	res = f.Start(context.Background(), csvFile("a.csv", stockCSV), Options{AIAnalysis: map[string]any{"disabled": true}})
	require.True(t, res.Success)
	assert.Equal(t, report.SourceFallback, res.Results.AIAnalysis.Source)
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	o := newFactory(t, nil).New()
	var nested *Result
	var resetErr error
	opt := Options{OnProgress: func(ev ProgressEvent) {
		if nested == nil && ev.Stage == StageClean {
			nested = o.Start(context.Background(), csvFile("b.csv", stockCSV), Options{})
			resetErr = o.Reset()
		}
	}}
	res := o.Start(context.Background(), csvFile("a.csv", stockCSV), opt)
	require.True(t, res.Success, res.Error)
	require.NotNil(t, nested)
	assert.False(t, nested.Success)
	assert.ErrorIs(t, nested.Err, ErrRunInProgress)
	assert.ErrorIs(t, resetErr, ErrRunInProgress)
	assert.Equal(t, res.RunID, o.Status().RunID)
}

func TestProgressEventsAndDetails(t *testing.T) {
	o := newFactory(t, nil).New()
	var events []ProgressEvent
	res := o.Start(context.Background(), csvFile("a.csv", stockCSV), Options{OnProgress: func(ev ProgressEvent) { events = append(events, ev) }})
	require.True(t, res.Success)

	var order []StageID
	for _, ev := range events {
		assert.Equal(t, res.RunID, ev.RunID)
		assert.True(t, ev.Progress >= 0 && ev.Progress <= 100)
		if ev.Status == StageRunning && ev.Progress == 0 && ev.Detail == "" {
			order = append(order, ev.Stage)
		}
	}
	var want []StageID
	for _, s := range Stages() {
		want = append(want, s.ID)
	}
	assert.Equal(t, want, order)

	clean := o.Status().StageProgress[StageClean]
	assert.Equal(t, 100, clean.Progress)
	assert.Len(t, clean.Details, 1+len(cleaning.DefaultPipeline()))

	o.UpdateStageProgress(StageClean, 10, "late")
	assert.Equal(t, 100, o.Status().StageProgress[StageClean].Progress)
}

func TestResetReturnsToIdle(t *testing.T) {
	o := newFactory(t, nil).New()
	res := o.Start(context.Background(), csvFile("a.csv", stockCSV), Options{})
	require.True(t, res.Success)
	require.NoError(t, o.Reset())

	s := o.Status()
	assert.Equal(t, RunIdle, s.Status)
	assert.Empty(t, s.RunID)
	assert.Empty(t, s.Logs)
	assert.True(t, s.StartTime.IsZero())
	assertStages(t, s, StagePending, StagePending, StagePending, StagePending, StagePending, StagePending)
	assert.Equal(t, 0, o.OverallProgress())
}

func TestRunsAreIndependent(t *testing.T) {
	f := newFactory(t, nil)
	a, b := f.New(), f.New()
	ra := a.Start(context.Background(), csvFile("a.csv", stockCSV), Options{})
	rb := b.Start(context.Background(), File{Name: "x.pdf", Content: strings.NewReader("x")}, Options{})
	assert.True(t, ra.Success)
	assert.False(t, rb.Success)
	assert.NotEqual(t, ra.RunID, rb.RunID)
	assert.Equal(t, RunCompleted, a.Status().Status)
	assert.Equal(t, RunFailed, b.Status().Status)
}

func TestKeyMetricsFormula(t *testing.T) {
	km := keyMetrics(10, 90, 80, 8)
	// 0.4*90 + 0.4*80 + 0.2*80 = 84
	assert.Equal(t, 84, km.OverallQuality)
	assert.Equal(t, 0, keyMetrics(0, 0, 0, 0).OverallQuality)
	assert.Equal(t, 100, keyMetrics(1, 100, 100, 5).OverallQuality)
}

func TestFitTrend(t *testing.T) {
	p, ok := fitTrend([]any{"1", 2, nil, "4", 5.0}, "qty")
	require.True(t, ok)
	assert.True(t, p.Trend)
	assert.Equal(t, TrendIncreasing, p.Direction)
	assert.Equal(t, 4, p.Points)

	p, ok = fitTrend([]any{"3", "3", "3"}, "qty")
	require.True(t, ok)
	assert.False(t, p.Trend)
	assert.Equal(t, TrendStable, p.Direction)

	_, ok = fitTrend([]any{"x", 1}, "qty")
	assert.False(t, ok)
}

func TestStartSpreadsheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"materialCode", "price"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"M-1", 2.5}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"M-2", 4}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res := newFactory(t, nil).Start(context.Background(), File{Name: "stock.xlsx", Size: int64(buf.Len()), Content: buf}, Options{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "spreadsheet", res.Results.Parse.Format)
	assert.Equal(t, 2, res.Results.Parse.Summary.RecordCount)
	assert.Equal(t, 4.0, res.Results.Clean.Data[1]["price"])
}
