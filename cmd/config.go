package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/tabloom-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set Tabloom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "api_key: %s\n", mask(c.APIKey))
		fmt.Fprintf(w, "default_provider: %s\n", c.DefaultProvider)
		fmt.Fprintf(w, "default_model: %s\n", c.DefaultModel)
		fmt.Fprintf(w, "max_tokens: %d\n", c.MaxTokens)
		fmt.Fprintf(w, "temperature: %.3f\n", c.Temperature)
		fmt.Fprintf(w, "http_timeout_sec: %d\n", c.HTTPTimeoutSec)
		fmt.Fprintf(w, "retry_max_attempts: %d\n", c.RetryMaxAttempts)
		fmt.Fprintf(w, "retry_base_delay_ms: %d\n", c.RetryBaseDelayMs)
		fmt.Fprintf(w, "retry_max_delay_ms: %d\n", c.RetryMaxDelayMs)
		fmt.Fprintf(w, "ollama_host: %s\n", c.OllamaHost)
		fmt.Fprintf(w, "ollama_timeout_sec: %d\n", c.OllamaTimeoutSec)
		fmt.Fprintf(w, "max_upload_bytes: %d\n", c.MaxUploadBytes)
		fmt.Fprintf(w, "clean_rules: %s\n", strings.Join(c.CleanRules, ","))
		fmt.Fprintf(w, "duplicate_key_fields: %s\n", strings.Join(c.DuplicateKeyFields, ","))
		fmt.Fprintf(w, "similarity_threshold: %.3f\n", c.SimilarityThreshold)
		fmt.Fprintf(w, "outlier_multiplier: %.3f\n", c.OutlierMultiplier)
		fmt.Fprintf(w, "top_n: %d\n", c.TopN)
		fmt.Fprintf(w, "log_level: %s\n", c.LogLevel)
		fmt.Fprintf(w, "log_format: %s\n", c.LogFormat)
		fmt.Fprintf(w, "serve_addr: %s\n", c.ServeAddr)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Long:  "Set a config value and save to disk. Keys: " + strings.Join(cfgpkg.Keys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
