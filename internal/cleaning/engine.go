// Package cleaning implements the rule engine: a registry of named
// dataset transformations applied in caller-defined order.
package cleaning

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
	"github.com/KaramelBytes/tabloom-cli/internal/quality"
)

// Category groups rules for listing.
type Category string

const (
	CategoryStructure   Category = "structure"
	CategoryFormat      Category = "format"
	CategoryDuplicates  Category = "duplicates"
	CategoryTerminology Category = "terminology"
	CategoryOutliers    Category = "outliers"
	CategoryValidation  Category = "validation"
	CategoryEnrichment  Category = "enrichment"
)

// ApplyFunc transforms a dataset. Implementations must not mutate ds.
type ApplyFunc func(ds dataset.Dataset, opt Options) (dataset.Dataset, error)

// Rule is a named dataset transformation. ID is its identity.
type Rule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Apply       ApplyFunc `json:"-"`
}

// RuleStatus is the outcome of one rule in a pass.
type RuleStatus string

const (
	RuleApplied RuleStatus = "applied"
	RuleSkipped RuleStatus = "skipped"
	RuleFailed  RuleStatus = "failed"
)

// Outcome records what one rule did.
type Outcome struct {
	RuleID   string        `json:"ruleId"`
	Status   RuleStatus    `json:"status"`
	Before   int           `json:"before"`
	After    int           `json:"after"`
	Removed  int           `json:"removed"`
	Modified bool          `json:"modified"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Statistics summarizes a cleaning pass. ModifiedCount is the number of
// applied rules whose output differs from their input.
type Statistics struct {
	OriginalCount  int `json:"originalCount"`
	ProcessedCount int `json:"processedCount"`
	RemovedCount   int `json:"removedCount"`
	ModifiedCount  int `json:"modifiedCount"`
	QualityScore   int `json:"qualityScore"`
}

// Result is the output of ApplyRules.
type Result struct {
	Data       dataset.Dataset `json:"data"`
	Statistics Statistics      `json:"statistics"`
	Outcomes   []Outcome       `json:"outcomes"`
	Warnings   []string        `json:"warnings,omitempty"`
	Errors     []*RuleError    `json:"-"`
}

// Engine holds the rule registry. Registration is safe for concurrent use
// but should complete before runs that depend on it start.
type Engine struct {
	mu       sync.RWMutex
	rules    map[string]Rule
	order    []string
	defaults map[string]Options

	scorer *quality.Scorer
	logger *zap.Logger
}

// NewEngine returns an engine with the built-in rules registered. A nil
// logger discards logs; a nil scorer uses quality.NewScorer().
func NewEngine(logger *zap.Logger, scorer *quality.Scorer) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scorer == nil {
		scorer = quality.NewScorer()
	}
	e := &Engine{
		rules:    map[string]Rule{},
		defaults: map[string]Options{},
		scorer:   scorer,
		logger:   logger.Named("cleaning"),
	}
	for _, r := range Builtins() {
		_ = e.Register(r)
	}
	return e
}

// Register adds or replaces a rule by ID.
func (e *Engine) Register(r Rule) error {
	if r.ID == "" || r.Apply == nil {
		return fmt.Errorf("%w: id=%q", ErrInvalidRule, r.ID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[r.ID]; !exists {
		e.order = append(e.order, r.ID)
	}
	e.rules[r.ID] = r
	return nil
}

// SetDefaults sets options applied to a rule under any per-call options.
func (e *Engine) SetDefaults(ruleID string, opt Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaults[ruleID] = opt
}

// Rule looks up a rule by ID.
func (e *Engine) Rule(id string) (Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rules[id]
	return r, ok
}

// Rules lists registered rules in registration order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.rules[id])
	}
	return out
}

// CalculateQualityScore scores ds in [0,100].
func (e *Engine) CalculateQualityScore(ds dataset.Dataset) int {
	return e.scorer.Score(ds)
}

// Scorer returns the engine's quality scorer.
func (e *Engine) Scorer() *quality.Scorer { return e.scorer }

// ApplyRules runs ruleIDs strictly in order. Unknown IDs are skipped with a
// warning; a failing or panicking rule is skipped and leaves the dataset as
// it was before that rule. The input dataset is never mutated.
func (e *Engine) ApplyRules(ds dataset.Dataset, ruleIDs []string, optsByID map[string]Options) *Result {
	return e.ApplyRulesProgress(ds, ruleIDs, optsByID, nil)
}

// ProgressFunc is told after each rule how many of total have run.
type ProgressFunc func(done, total int, oc Outcome)

// ApplyRulesProgress is ApplyRules reporting each outcome to progress.
func (e *Engine) ApplyRulesProgress(ds dataset.Dataset, ruleIDs []string, optsByID map[string]Options, progress ProgressFunc) *Result {
	if progress == nil {
		progress = func(int, int, Outcome) {}
	}
	res := &Result{
		Statistics: Statistics{OriginalCount: len(ds)},
	}
	current := ds.Clone()
	if current == nil {
		current = dataset.Dataset{}
	}

	for i, id := range ruleIDs {
		rule, ok := e.Rule(id)
		if !ok {
			msg := fmt.Sprintf("unknown cleaning rule %q skipped", id)
			e.logger.Warn("unknown cleaning rule", zap.String("rule", id))
			res.Warnings = append(res.Warnings, msg)
			oc := Outcome{RuleID: id, Status: RuleSkipped, Before: len(current), After: len(current)}
			res.Outcomes = append(res.Outcomes, oc)
			progress(i+1, len(ruleIDs), oc)
			continue
		}

		e.mu.RLock()
		opt := e.defaults[id].merge(optsByID[id])
		e.mu.RUnlock()

		start := time.Now()
		out, err := safeApply(rule, current.Clone(), opt)
		oc := Outcome{RuleID: id, Before: len(current), Duration: time.Since(start)}
		if err != nil {
			oc.Status = RuleFailed
			oc.After = len(current)
			oc.Error = err.Error()
			res.Errors = append(res.Errors, err)
			res.Outcomes = append(res.Outcomes, oc)
			e.logger.Error("cleaning rule failed", zap.String("rule", id), zap.Error(err))
			progress(i+1, len(ruleIDs), oc)
			continue
		}
		if out == nil {
			out = dataset.Dataset{}
		}
		oc.Status = RuleApplied
		oc.After = len(out)
		oc.Removed = len(current) - len(out)
		oc.Modified = !dataset.Equal(current, out)
		if oc.Modified {
			res.Statistics.ModifiedCount++
		}
		res.Outcomes = append(res.Outcomes, oc)
		e.logger.Debug("cleaning rule applied",
			zap.String("rule", id),
			zap.Int("before", oc.Before),
			zap.Int("after", oc.After),
			zap.Bool("modified", oc.Modified),
		)
		current = out
		progress(i+1, len(ruleIDs), oc)
	}

	res.Data = current
	res.Statistics.ProcessedCount = len(current)
	res.Statistics.RemovedCount = res.Statistics.OriginalCount - res.Statistics.ProcessedCount
	res.Statistics.QualityScore = e.scorer.Score(current)
	e.logger.Info("cleaning finished",
		zap.Int("original", res.Statistics.OriginalCount),
		zap.Int("processed", res.Statistics.ProcessedCount),
		zap.Int("removed", res.Statistics.RemovedCount),
		zap.Int("quality", res.Statistics.QualityScore),
	)
	return res
}

func safeApply(rule Rule, ds dataset.Dataset, opt Options) (out dataset.Dataset, rerr *RuleError) {
	defer func() {
		if p := recover(); p != nil {
			out = nil
			rerr = &RuleError{RuleID: rule.ID, Panic: true, Err: fmt.Errorf("%v", p)}
		}
	}()
	out, err := rule.Apply(ds, opt)
	if err != nil {
		return nil, &RuleError{RuleID: rule.ID, Err: err}
	}
	return out, nil
}
