// Package pipeline runs an uploaded file through the six processing stages
// (upload, parse, clean, extract, summarize, AI analysis) and tracks the
// progress of each.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/tabloom-cli/internal/analysis"
	"github.com/KaramelBytes/tabloom-cli/internal/cleaning"
	"github.com/KaramelBytes/tabloom-cli/internal/insight"
	"github.com/KaramelBytes/tabloom-cli/internal/parser"
	"github.com/KaramelBytes/tabloom-cli/internal/quality"
	"github.com/KaramelBytes/tabloom-cli/internal/report"
)

// Deps are the collaborators shared by every orchestrator a Factory builds.
type Deps struct {
	Engine   *cleaning.Engine
	Parsers  *parser.Registry
	Analyzer *analysis.Analyzer
	// Insights may be nil, in which case the fallback is always used.
	Insights insight.Provider
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Factory builds one Orchestrator per run from shared dependencies.
type Factory struct {
	deps     Deps
	validate *validator.Validate
}

// NewFactory checks deps once and fills optional ones with defaults.
func NewFactory(deps Deps) (*Factory, error) {
	if deps.Engine == nil {
		return nil, errors.New("pipeline: rule engine is required")
	}
	if deps.Parsers == nil {
		return nil, errors.New("pipeline: parser registry is required")
	}
	if deps.Analyzer == nil {
		deps.Analyzer = analysis.NewAnalyzer(analysis.DefaultOptions())
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Factory{deps: deps, validate: validator.New(validator.WithRequiredStructEnabled())}, nil
}

// New returns a fresh orchestrator.
func (f *Factory) New() *Orchestrator {
	o := &Orchestrator{
		deps:     f.deps,
		validate: f.validate,
		logger:   f.deps.Logger.Named("pipeline"),
	}
	o.resetLocked()
	return o
}

// Start is a shortcut for f.New().Start.
func (f *Factory) Start(ctx context.Context, file File, opt Options) *Result {
	return f.New().Start(ctx, file, opt)
}

// New builds a single orchestrator without keeping the factory.
func New(deps Deps) (*Orchestrator, error) {
	f, err := NewFactory(deps)
	if err != nil {
		return nil, err
	}
	return f.New(), nil
}

// Orchestrator holds the state of at most one run.
type Orchestrator struct {
	deps     Deps
	validate *validator.Validate
	logger   *zap.Logger

	mu         sync.Mutex
	runID      string
	status     RunStatus
	current    StageID
	progress   map[StageID]*StageProgress
	logs       []LogEntry
	start, end time.Time
	errInfo    *ErrorInfo
	onProgress func(ProgressEvent)
}

// Start runs all stages in order. It always returns a Result; the first
// failing stage aborts the run and Result.Results keeps the outputs of the
// stages that completed.
func (o *Orchestrator) Start(ctx context.Context, file File, opt Options) *Result {
	o.mu.Lock()
	if o.status == RunRunning {
		o.mu.Unlock()
		return &Result{Err: ErrRunInProgress, Error: ErrRunInProgress.Error()}
	}
	o.resetLocked()
	o.runID = uuid.NewString()
	o.status = RunRunning
	o.start = o.deps.Clock()
	o.onProgress = opt.OnProgress
	runID := o.runID
	o.mu.Unlock()

	log := o.logger.With(zap.String("run_id", runID), zap.String("file", file.Name))
	log.Info("pipeline run started")
	o.addLog("info", "", fmt.Sprintf("run started for %s", file.Name))

	res := &Result{RunID: runID}
	err := o.runStages(ctx, file, opt, &res.Results)

	o.mu.Lock()
	o.end = o.deps.Clock()
	duration := o.end.Sub(o.start)
	if err != nil {
		o.status = RunFailed
		o.errInfo = &ErrorInfo{Stage: o.current, Type: errorType(err), Message: err.Error()}
	} else {
		o.status = RunCompleted
	}
	o.onProgress = nil
	o.mu.Unlock()

	if err != nil {
		log.Error("pipeline run failed", zap.Error(err), zap.Duration("duration", duration))
		o.addLog("error", "", "run failed: "+err.Error())
		res.Err = err
		res.Error = err.Error()
		return res
	}
	log.Info("pipeline run completed", zap.Duration("duration", duration))
	o.addLog("info", "", "run completed")
	res.Success = true
	res.Summary = summarizeRun(res.Results, duration)
	return res
}

func (o *Orchestrator) runStages(ctx context.Context, file File, opt Options, r *Results) error {
	up, err := execute(o, ctx, StageUpload, func(ctx context.Context) (*UploadResult, error) {
		return o.upload(ctx, file, opt)
	})
	if err != nil {
		return err
	}
	r.Upload = up

	pr, err := execute(o, ctx, StageParse, func(ctx context.Context) (*ParseResult, error) {
		return o.parse(ctx, up, opt)
	})
	if err != nil {
		return err
	}
	r.Parse = pr

	cr, err := execute(o, ctx, StageClean, func(ctx context.Context) (*CleaningReport, error) {
		return o.clean(ctx, pr, opt)
	})
	if err != nil {
		return err
	}
	r.Clean = cr

	er, err := execute(o, ctx, StageExtract, func(ctx context.Context) (*ExtractResult, error) {
		return o.extract(ctx, up, cr)
	})
	if err != nil {
		return err
	}
	r.Extract = er

	sr, err := execute(o, ctx, StageSummarize, func(ctx context.Context) (*report.Summary, error) {
		return o.summarize(ctx, up, pr, cr, er)
	})
	if err != nil {
		return err
	}
	r.Summarize = sr

	ar, err := execute(o, ctx, StageAIAnalysis, func(ctx context.Context) (*report.AIAnalysis, error) {
		return o.aiAnalysis(ctx, sr, er, opt)
	})
	if err != nil {
		return err
	}
	r.AIAnalysis = ar
	return nil
}

// execute is the typed form of executeStage.
func execute[T any](o *Orchestrator, ctx context.Context, id StageID, fn func(context.Context) (*T, error)) (*T, error) {
	v, err := o.executeStage(ctx, id, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

// executeStage marks id running, runs fn and records the outcome. Errors
// other than ValidationError and ParseError are wrapped in a StageError;
// panics are recovered into one. Nothing is retried.
func (o *Orchestrator) executeStage(ctx context.Context, id StageID, fn func(context.Context) (any, error)) (result any, err error) {
	o.mu.Lock()
	sp := o.progress[id]
	o.current = id
	sp.Status = StageRunning
	sp.StartTime = o.deps.Clock()
	sp.Progress = 0
	o.mu.Unlock()
	o.notify(id, StageRunning, 0, "")
	o.addLog("info", id, stageName(id)+" started")

	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = &StageError{Stage: id, Err: fmt.Errorf("%v", p), Panic: true}
		}
		o.finishStage(id, result, err)
	}()

	if cerr := ctx.Err(); cerr != nil {
		return nil, &StageError{Stage: id, Err: cerr}
	}
	result, err = fn(ctx)
	if err != nil {
		var (
			ve *ValidationError
			pe *ParseError
			se *StageError
		)
		if !errors.As(err, &ve) && !errors.As(err, &pe) && !errors.As(err, &se) {
			err = &StageError{Stage: id, Err: err}
		}
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) finishStage(id StageID, result any, err error) {
	o.mu.Lock()
	sp := o.progress[id]
	sp.EndTime = o.deps.Clock()
	sp.Duration = sp.EndTime.Sub(sp.StartTime)
	status := StageCompleted
	if err != nil {
		status = StageFailed
		sp.Error = err.Error()
	} else {
		sp.Progress = 100
		sp.Result = result
	}
	sp.Status = status
	progress, duration := sp.Progress, sp.Duration
	o.mu.Unlock()

	o.notify(id, status, progress, "")
	if err != nil {
		o.logger.Warn("stage failed", zap.String("stage", string(id)), zap.Error(err))
		o.addLog("error", id, stageName(id)+" failed: "+err.Error())
		return
	}
	o.logger.Debug("stage completed", zap.String("stage", string(id)), zap.Duration("duration", duration))
	o.addLog("info", id, fmt.Sprintf("%s completed in %s", stageName(id), duration))
}

// UpdateStageProgress publishes cooperative progress for a running stage.
// Percent is clamped to 0..100; detail, when set, is kept with a timestamp.
// Updates for stages that are not running are ignored.
func (o *Orchestrator) UpdateStageProgress(id StageID, percent int, detail string) {
	percent = max(0, min(100, percent))
	o.mu.Lock()
	sp, ok := o.progress[id]
	if !ok || sp.Status != StageRunning {
		o.mu.Unlock()
		return
	}
	sp.Progress = percent
	if detail != "" {
		sp.Details = append(sp.Details, Detail{Time: o.deps.Clock(), Message: detail})
	}
	o.mu.Unlock()
	o.notify(id, StageRunning, percent, detail)
}

func (o *Orchestrator) notify(id StageID, status StageStatus, percent int, detail string) {
	o.mu.Lock()
	cb, runID := o.onProgress, o.runID
	o.mu.Unlock()
	if cb != nil {
		cb(ProgressEvent{RunID: runID, Stage: id, Status: status, Progress: percent, Detail: detail})
	}
}

func (o *Orchestrator) addLog(level string, id StageID, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logs = append(o.logs, LogEntry{Time: o.deps.Clock(), Level: level, Stage: id, Message: msg})
}

// Status returns a copy of the current state.
func (o *Orchestrator) Status() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Snapshot{
		RunID:         o.runID,
		Status:        o.status,
		CurrentStage:  o.current,
		Stages:        Stages(),
		StageProgress: make(map[StageID]StageProgress, len(o.progress)),
		StartTime:     o.start,
		EndTime:       o.end,
		Logs:          append([]LogEntry(nil), o.logs...),
	}
	for id, sp := range o.progress {
		cp := *sp
		cp.Details = append([]Detail(nil), sp.Details...)
		s.StageProgress[id] = cp
	}
	switch {
	case !o.end.IsZero():
		s.Duration = o.end.Sub(o.start)
	case !o.start.IsZero():
		s.Duration = o.deps.Clock().Sub(o.start)
	}
	if o.errInfo != nil {
		ei := *o.errInfo
		s.ErrorInfo = &ei
	}
	return s
}

// OverallProgress is round(100 × completed stages / 6).
func (o *Orchestrator) OverallProgress() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	done := 0
	for _, sp := range o.progress {
		if sp.Status == StageCompleted {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(stages))))
}

// Reset returns the orchestrator to idle with every stage pending.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == RunRunning {
		return ErrRunInProgress
	}
	o.resetLocked()
	return nil
}

func (o *Orchestrator) resetLocked() {
	o.runID = ""
	o.status = RunIdle
	o.current = ""
	o.logs = nil
	o.start, o.end = time.Time{}, time.Time{}
	o.errInfo = nil
	o.onProgress = nil
	o.progress = make(map[StageID]*StageProgress, len(stages))
	for _, s := range stages {
		o.progress[s.ID] = &StageProgress{Status: StagePending}
	}
}

// stageTimings lists the durations of completed stages in order.
func (o *Orchestrator) stageTimings() []report.StageTiming {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []report.StageTiming
	for _, s := range stages {
		sp := o.progress[s.ID]
		if sp.Status == StageCompleted {
			out = append(out, report.StageTiming{Stage: string(s.ID), Name: s.Name, Duration: sp.Duration})
		}
	}
	return out
}

func summarizeRun(r Results, d time.Duration) *RunSummary {
	s := &RunSummary{Duration: d}
	if r.Upload != nil {
		s.FileName = r.Upload.FileName
	}
	if r.Parse != nil {
		s.Format = r.Parse.Format
	}
	if r.Clean != nil {
		s.OriginalCount = r.Clean.Statistics.OriginalCount
		s.ProcessedCount = r.Clean.Statistics.ProcessedCount
		s.QualityScore = r.Clean.QualityAfter
		s.Grade = quality.Grade(float64(s.QualityScore))
	}
	if r.AIAnalysis != nil {
		s.InsightSource = r.AIAnalysis.Source
	}
	return s
}
