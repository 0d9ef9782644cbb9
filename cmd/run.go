package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tabloom-cli/internal/pipeline"
	"github.com/KaramelBytes/tabloom-cli/internal/utils"
)

var (
	runOpts     runFlags
	runProvider string
	runModel    string
	runOutput   string
	runFormat   string
	runQuiet    bool
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a CSV/TSV/XLSX/JSON file through the processing pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := checkFormat(runFormat); err != nil {
			return err
		}
		opt, err := runOpts.options(c)
		if err != nil {
			return err
		}
		var f *pipeline.Factory
		if runOpts.noAI {
			f, err = newFactory(c, nil)
		} else {
			p, perr := buildProvider(c, runProvider, runModel)
			if perr != nil {
				return perr
			}
			f, err = newFactory(c, p)
		}
		if err != nil {
			return err
		}

		file, fh, err := openFile(args[0])
		if err != nil {
			return err
		}
		defer fh.Close()

		if !runQuiet {
			opt.OnProgress = progressPrinter(cmd.ErrOrStderr())
		}
		res := f.Start(cmd.Context(), file, opt)

		out, err := renderResult(res, runFormat)
		if err != nil {
			return err
		}
		if runOutput != "" {
			if err := utils.SafeWriteFile(runOutput, out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if !runQuiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote report to %s\n", runOutput)
			}
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		}
		if !res.Success {
			return res.Err
		}
		if !runQuiet {
			printRunSummary(cmd.ErrOrStderr(), res)
		}
		return nil
	},
}

func checkFormat(format string) error {
	switch format {
	case "markdown", "md", "json":
		return nil
	}
	return fmt.Errorf("unsupported --format: %s (use markdown or json)", format)
}

// renderResult renders a run as Markdown or as the full JSON result.
func renderResult(res *pipeline.Result, format string) ([]byte, error) {
	if format == "json" {
		return utils.PrettyJSON(res)
	}
	return []byte(res.Document().Markdown()), nil
}

// progressPrinter prints one line per stage start and failure.
func progressPrinter(w io.Writer) func(pipeline.ProgressEvent) {
	order := map[pipeline.StageID]int{}
	names := map[pipeline.StageID]string{}
	for _, s := range pipeline.Stages() {
		order[s.ID], names[s.ID] = s.Order, s.Name
	}
	total := len(order)
	return func(ev pipeline.ProgressEvent) {
		switch {
		case ev.Status == pipeline.StageRunning && ev.Progress == 0 && ev.Detail == "":
			fmt.Fprintf(w, "[%d/%d] %s...\n", order[ev.Stage], total, names[ev.Stage])
		case ev.Status == pipeline.StageFailed:
			fmt.Fprintf(w, "✗ %s failed\n", names[ev.Stage])
		}
	}
}

func printRunSummary(w io.Writer, res *pipeline.Result) {
	s := res.Summary
	if s == nil {
		return
	}
	fmt.Fprintf(w, "✓ %s: %d -> %d records, quality %d (%s), insights: %s, %s\n",
		s.FileName, s.OriginalCount, s.ProcessedCount, s.QualityScore, s.Grade, s.InsightSource, s.Duration.Round(time.Millisecond))
	if up := res.Results.Upload; up != nil {
		for _, msg := range up.Warnings {
			fmt.Fprintf(w, "⚠ Warning: %s\n", msg)
		}
	}
	if ai := res.Results.AIAnalysis; ai != nil && ai.FallbackReason != "" {
		fmt.Fprintf(w, "⚠ Warning: AI analysis used the fallback: %s\n", ai.FallbackReason)
	}
}

func addRunFlags(c *cobra.Command, f *runFlags) {
	c.Flags().Int64Var(&f.maxSize, "max-size", 0, "maximum upload size in bytes (overrides config)")
	c.Flags().StringVar(&f.sheet, "sheet", "", "XLSX: sheet name to read")
	c.Flags().IntVar(&f.sheetIdx, "sheet-index", 0, "XLSX: 1-based sheet index (used if --sheet not provided)")
	c.Flags().BoolVar(&f.noHeader, "no-header", false, "treat the first row as data")
	c.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | '|' (sniffed if omitted)")
	c.Flags().StringVar(&f.encoding, "encoding", "", "text encoding label, e.g. windows-1252 (default UTF-8)")
	c.Flags().StringSliceVar(&f.rules, "rules", nil, "cleaning rules to apply in order (default: config clean_rules or the built-in pipeline)")
	c.Flags().StringSliceVar(&f.keyFields, "key-fields", nil, "key fields for duplicate detection")
	c.Flags().BoolVar(&f.noAI, "no-ai", false, "skip the AI provider and use deterministic insights")
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd, &runOpts)
	runCmd.Flags().StringVar(&runProvider, "provider", "", "insight provider: openrouter | ollama | none (default from config)")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "model name (default from config)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "write the report to this path instead of stdout")
	runCmd.Flags().StringVar(&runFormat, "format", "markdown", "report format: markdown | json")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "suppress progress output")
}

// formatExt maps a report format to a file extension.
func formatExt(format string) string {
	if strings.EqualFold(format, "json") {
		return ".json"
	}
	return ".md"
}
