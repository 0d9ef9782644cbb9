// Package ai holds the chat-completion runtimes the insight stage talks to:
// OpenRouter over HTTPS and a local Ollama daemon.
package ai

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Runtime is implemented by every chat backend.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers accepted by configuration and CLI flags.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	// ProviderNone disables the runtime; insights come from the fallback.
	ProviderNone = "none"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	// JSONMode asks the backend to constrain output to a JSON object.
	JSONMode bool `json:"-"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Message Message `json:"message"`
}

type GenerateResponse struct {
	ID        string   `json:"id"`
	Choices   []Choice `json:"choices"`
	Usage     Usage    `json:"usage"`
	RequestID string   `json:"-"`
}

// Content returns the first choice's message text.
func (r *GenerateResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Config carries the knobs shared by runtimes. Zero values select the
// runtime's own defaults.
type Config struct {
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OpenRouter
	APIKey  string
	BaseURL string
	// Ollama
	Host string
}

// Factory builds a Runtime from a Config.
type Factory func(Config) (Runtime, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the OpenRouter and Ollama runtimes.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register(ProviderOpenRouter, func(c Config) (Runtime, error) {
		if c.APIKey == "" {
			return nil, fmt.Errorf("openrouter: api key is missing (set TABLOOM_API_KEY or OPENROUTER_API_KEY)")
		}
		return NewOpenRouterClient(c), nil
	})
	r.Register(ProviderOllama, func(c Config) (Runtime, error) {
		return NewOllamaClient(c), nil
	})
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build creates the runtime for a provider. ProviderNone and "" return a nil
// runtime without error.
func (r *Registry) Build(name string, cfg Config) (Runtime, error) {
	if name == "" || name == ProviderNone {
		return nil, nil
	}
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %v)", name, r.Names())
	}
	return f(cfg)
}

// Names lists registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
