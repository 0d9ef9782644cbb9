package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. TABLOOM_API_KEY.
const EnvPrefix = "TABLOOM"

// Global configuration structure.
type Global struct {
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider" validate:"oneof=openrouter ollama none"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec" validate:"gte=0"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts" validate:"gte=0"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms" validate:"gte=0"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms" validate:"gte=0"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec" validate:"gte=0"`

	// Pipeline
	MaxUploadBytes      int64    `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes" validate:"gt=0"`
	CleanRules          []string `mapstructure:"clean_rules" yaml:"clean_rules"`
	DuplicateKeyFields  []string `mapstructure:"duplicate_key_fields" yaml:"duplicate_key_fields"`
	SimilarityThreshold float64  `mapstructure:"similarity_threshold" yaml:"similarity_threshold" validate:"gt=0,lte=1"`
	OutlierMultiplier   float64  `mapstructure:"outlier_multiplier" yaml:"outlier_multiplier" validate:"gt=0"`
	TopN                int      `mapstructure:"top_n" yaml:"top_n" validate:"gt=0"`

	// Logging and serving
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" validate:"oneof=console json"`
	ServeAddr string `mapstructure:"serve_addr" yaml:"serve_addr" validate:"required,hostname_port"`
}

var defaults = map[string]any{
	"api_key":              "",
	"default_model":        "openai/gpt-4o-mini",
	"default_provider":     "none",
	"max_tokens":           1024,
	"temperature":          0.2,
	"http_timeout_sec":     60,
	"retry_max_attempts":   3,
	"retry_base_delay_ms":  500,
	"retry_max_delay_ms":   4000,
	"ollama_host":          "http://127.0.0.1:11434",
	"ollama_timeout_sec":   60,
	"max_upload_bytes":     int64(10 << 20),
	"clean_rules":          []string{},
	"duplicate_key_fields": []string{},
	"similarity_threshold": 0.8,
	"outlier_multiplier":   1.5,
	"top_n":                10,
	"log_level":            "warn",
	"log_format":           "console",
	"serve_addr":           "127.0.0.1:8080",
}

// Keys lists every configuration key, sorted.
func Keys() []string {
	out := make([]string, 0, len(defaults))
	for k := range defaults {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dir returns ~/.tabloom.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".tabloom"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.tabloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. A missing config file is not an
// error; a malformed one is.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.DefaultProvider = normalizeProvider(c.DefaultProvider)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks value ranges and enumerations.
func (c *Global) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s: failed %q check (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Set assigns a single key from its string form. The result is validated
// before it is kept.
func (c *Global) Set(key, val string) error {
	next := *c
	var err error
	switch key {
	case "api_key":
		next.APIKey = val
	case "default_model":
		next.DefaultModel = val
	case "default_provider":
		next.DefaultProvider = normalizeProvider(val)
	case "max_tokens":
		next.MaxTokens, err = strconv.Atoi(val)
	case "temperature":
		next.Temperature, err = strconv.ParseFloat(val, 64)
	case "http_timeout_sec":
		next.HTTPTimeoutSec, err = strconv.Atoi(val)
	case "retry_max_attempts":
		next.RetryMaxAttempts, err = strconv.Atoi(val)
	case "retry_base_delay_ms":
		next.RetryBaseDelayMs, err = strconv.Atoi(val)
	case "retry_max_delay_ms":
		next.RetryMaxDelayMs, err = strconv.Atoi(val)
	case "ollama_host":
		next.OllamaHost = val
	case "ollama_timeout_sec":
		next.OllamaTimeoutSec, err = strconv.Atoi(val)
	case "max_upload_bytes":
		next.MaxUploadBytes, err = strconv.ParseInt(val, 10, 64)
	case "clean_rules":
		next.CleanRules = splitList(val)
	case "duplicate_key_fields":
		next.DuplicateKeyFields = splitList(val)
	case "similarity_threshold":
		next.SimilarityThreshold, err = strconv.ParseFloat(val, 64)
	case "outlier_multiplier":
		next.OutlierMultiplier, err = strconv.ParseFloat(val, 64)
	case "top_n":
		next.TopN, err = strconv.Atoi(val)
	case "log_level":
		next.LogLevel = strings.ToLower(val)
	case "log_format":
		next.LogFormat = strings.ToLower(val)
	case "serve_addr":
		next.ServeAddr = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func normalizeProvider(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "openrouter":
		return "openrouter"
	case "ollama", "local":
		return "ollama"
	case "", "none", "off", "fallback":
		return "none"
	}
	return p
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
