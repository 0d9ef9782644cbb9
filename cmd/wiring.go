package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/tabloom-cli/internal/ai"
	"github.com/KaramelBytes/tabloom-cli/internal/analysis"
	"github.com/KaramelBytes/tabloom-cli/internal/cleaning"
	cfgpkg "github.com/KaramelBytes/tabloom-cli/internal/config"
	"github.com/KaramelBytes/tabloom-cli/internal/insight"
	"github.com/KaramelBytes/tabloom-cli/internal/parser"
	"github.com/KaramelBytes/tabloom-cli/internal/pipeline"
)

// runtimeConfig maps the loaded config onto a runtime config for provider.
func runtimeConfig(c *cfgpkg.Global, provider string) ai.Config {
	rc := ai.Config{
		HTTPTimeout: time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
		APIKey:      c.APIKey,
		Host:        c.OllamaHost,
	}
	if rc.APIKey == "" {
		rc.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if provider == ai.ProviderOllama && c.OllamaTimeoutSec > 0 {
		rc.HTTPTimeout = time.Duration(c.OllamaTimeoutSec) * time.Second
	}
	return rc
}

// buildProvider returns the insight provider for provider/model, or nil when
// the provider is "none" and only the fallback should run.
func buildProvider(c *cfgpkg.Global, provider, model string) (insight.Provider, error) {
	if provider == "" {
		provider = c.DefaultProvider
	}
	if model == "" {
		model = c.DefaultModel
	}
	rt, err := ai.NewRegistry().Build(provider, runtimeConfig(c, provider))
	if err != nil {
		return nil, err
	}
	if rt == nil {
		return nil, nil
	}
	llm, err := insight.NewLLM(rt, model, insight.LLMOptions{MaxTokens: c.MaxTokens, Temperature: c.Temperature}, logger)
	if err != nil {
		return nil, err
	}
	return llm, nil
}

// newEngine returns the rule engine with config-driven rule defaults.
func newEngine(c *cfgpkg.Global) *cleaning.Engine {
	e := cleaning.NewEngine(logger, nil)
	if len(c.DuplicateKeyFields) > 0 {
		e.SetDefaults(cleaning.RemoveDuplicates, cleaning.Options{"keyFields": c.DuplicateKeyFields})
	}
	merge := cleaning.Options{"threshold": c.SimilarityThreshold}
	if len(c.DuplicateKeyFields) > 0 {
		merge["keyFields"] = c.DuplicateKeyFields
	}
	e.SetDefaults(cleaning.MergeSimilar, merge)
	e.SetDefaults(cleaning.RemoveOutliers, cleaning.Options{"multiplier": c.OutlierMultiplier})
	return e
}

// newFactory wires the pipeline collaborators. p may be nil.
func newFactory(c *cfgpkg.Global, p insight.Provider) (*pipeline.Factory, error) {
	return pipeline.NewFactory(pipeline.Deps{
		Engine:  newEngine(c),
		Parsers: parser.DefaultRegistry(),
		Analyzer: analysis.NewAnalyzer(analysis.Options{
			TopN:                c.TopN,
			KeyFields:           c.DuplicateKeyFields,
			SimilarityThreshold: c.SimilarityThreshold,
		}),
		Insights: p,
		Logger:   logger,
	})
}

// runFlags are the per-run knobs shared by run, run-batch and serve.
type runFlags struct {
	maxSize   int64
	sheet     string
	sheetIdx  int
	noHeader  bool
	delimiter string
	encoding  string
	rules     []string
	keyFields []string
	noAI      bool
}

func (f runFlags) options(c *cfgpkg.Global) (pipeline.Options, error) {
	opt := pipeline.Options{
		Upload: pipeline.UploadOptions{MaxSize: c.MaxUploadBytes},
		Parse: parser.Options{
			Sheet:      f.sheet,
			SheetIndex: f.sheetIdx,
			NoHeader:   f.noHeader,
			Encoding:   f.encoding,
		},
		Clean: pipeline.CleanOptions{Rules: c.CleanRules},
	}
	if f.maxSize > 0 {
		opt.Upload.MaxSize = f.maxSize
	}
	d, err := parseDelimiter(f.delimiter)
	if err != nil {
		return opt, err
	}
	opt.Parse.Delimiter = d
	if len(f.rules) > 0 {
		opt.Clean.Rules = normalizeRules(f.rules)
	}
	if len(f.keyFields) > 0 {
		opt.Clean.RuleOptions = map[string]cleaning.Options{
			cleaning.RemoveDuplicates: {"keyFields": f.keyFields},
			cleaning.MergeSimilar:     {"keyFields": f.keyFields},
		}
	}
	if f.noAI {
		opt.AIAnalysis = map[string]any{"disabled": true}
	}
	return opt, nil
}

func parseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case ",", "comma":
		return ',', nil
	case ";", "semicolon":
		return ';', nil
	case "\t", "tab":
		return '\t', nil
	case "|", "pipe":
		return '|', nil
	}
	return 0, fmt.Errorf("unsupported --delimiter: %s (use ',' | ';' | 'tab' | '|')", s)
}

func normalizeRules(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r = strings.ToUpper(strings.TrimSpace(r)); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// openFile opens path as a pipeline upload. The MIME type is left to the
// pipeline, which resolves it from the extension.
func openFile(path string) (pipeline.File, *os.File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return pipeline.File{}, nil, err
	}
	st, err := fh.Stat()
	if err != nil {
		fh.Close()
		return pipeline.File{}, nil, err
	}
	if st.IsDir() {
		fh.Close()
		return pipeline.File{}, nil, fmt.Errorf("%s is a directory", path)
	}
	return pipeline.File{
		Name:         filepath.Base(path),
		Size:         st.Size(),
		LastModified: st.ModTime(),
		Content:      fh,
	}, fh, nil
}

// expandInputs resolves globs and literal paths, de-duplicated and sorted.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}
