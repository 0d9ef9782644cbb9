package cmd

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/tabloom-cli/internal/pipeline"
	"github.com/KaramelBytes/tabloom-cli/internal/utils"
)

var (
	rbOpts     runFlags
	rbProvider string
	rbModel    string
	rbOutDir   string
	rbFormat   string
	rbJobs     int
	rbQuiet    bool
)

// batchItem is the outcome of one file in a batch.
type batchItem struct {
	Path   string
	Output string
	Result *pipeline.Result
	Err    error
}

var runBatchCmd = &cobra.Command{
	Use:   "run-batch <files...>",
	Short: "Run many files through the pipeline concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := checkFormat(rbFormat); err != nil {
			return err
		}
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		opt, err := rbOpts.options(c)
		if err != nil {
			return err
		}
		var f *pipeline.Factory
		if rbOpts.noAI {
			f, err = newFactory(c, nil)
		} else {
			p, perr := buildProvider(c, rbProvider, rbModel)
			if perr != nil {
				return perr
			}
			f, err = newFactory(c, p)
		}
		if err != nil {
			return err
		}

		items := runBatch(cmd, f, files, opt)
		failed := 0
		for _, it := range items {
			if it.Err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", it.Path, it.Err)
				continue
			}
			if rbQuiet {
				continue
			}
			s := it.Result.Summary
			line := fmt.Sprintf("✓ %s: %d -> %d records, quality %d (%s)", it.Path, s.OriginalCount, s.ProcessedCount, s.QualityScore, s.Grade)
			if it.Output != "" {
				line += " -> " + it.Output
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(items))
		}
		return nil
	},
}

// runBatch processes files with at most rbJobs runs in flight. Each file gets
// its own orchestrator; one failure does not stop the others.
func runBatch(cmd *cobra.Command, f *pipeline.Factory, files []string, opt pipeline.Options) []batchItem {
	jobs := rbJobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	items := make([]batchItem, len(files))
	var g errgroup.Group
	g.SetLimit(jobs)

	names := make([]string, len(files))
	if rbOutDir != "" {
		used := map[string]int{}
		for i, path := range files {
			names[i] = outputPath(rbOutDir, path, rbFormat, used)
		}
	}

	var mu sync.Mutex
	total := len(files)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if !rbQuiet {
				mu.Lock()
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
				mu.Unlock()
			}
			it := batchItem{Path: path}
			defer func() { items[i] = it }()

			file, fh, err := openFile(path)
			if err != nil {
				it.Err = err
				return nil
			}
			defer fh.Close()
			res := f.Start(cmd.Context(), file, opt)
			it.Result = res
			if !res.Success {
				it.Err = res.Err
			}
			if names[i] == "" {
				return nil
			}
			out, err := renderResult(res, rbFormat)
			if err != nil {
				it.Err = err
				return nil
			}
			it.Output = names[i]
			if err := utils.SafeWriteFile(it.Output, out); err != nil {
				it.Err = fmt.Errorf("write report: %w", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// outputPath names the report for path inside dir, suffixing __N when two
// inputs share a base name.
func outputPath(dir, path, format string, used map[string]int) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	used[stem]++
	if n := used[stem]; n > 1 {
		stem = fmt.Sprintf("%s__%d", stem, n)
	}
	return filepath.Join(dir, stem+".report"+formatExt(format))
}

func init() {
	rootCmd.AddCommand(runBatchCmd)
	addRunFlags(runBatchCmd, &rbOpts)
	runBatchCmd.Flags().StringVar(&rbProvider, "provider", "", "insight provider: openrouter | ollama | none (default from config)")
	runBatchCmd.Flags().StringVarP(&rbModel, "model", "m", "", "model name (default from config)")
	runBatchCmd.Flags().StringVar(&rbOutDir, "out-dir", "", "directory for per-file reports (default: print a summary line per file)")
	runBatchCmd.Flags().StringVar(&rbFormat, "format", "markdown", "report format: markdown | json")
	runBatchCmd.Flags().IntVarP(&rbJobs, "jobs", "j", 0, "files processed concurrently (default: number of CPUs)")
	runBatchCmd.Flags().BoolVarP(&rbQuiet, "quiet", "q", false, "suppress progress output")
}
