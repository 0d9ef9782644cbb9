package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ipv4Server struct {
	URL string
	srv *http.Server
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	s := &ipv4Server{URL: "http://" + ln.Addr().String(), srv: srv}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return s
}

func hi() []Message { return []Message{{Role: "user", Content: "hi"}} }

func TestOpenRouterRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "slow down"}})
			return
		}
		_ = json.NewEncoder(w).Encode(GenerateResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: "ok"}}}})
	}))

	c := NewOpenRouterClient(Config{APIKey: "k", BaseURL: srv.URL, RetryMax: 3, BaseDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond})
	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: hi()})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content())
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestOpenRouterSendsJSONModeAndHeaders(t *testing.T) {
	var got map[string]any
	var title string
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("X-Title")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(GenerateResponse{Choices: []Choice{{Message: Message{Content: "{}"}}}})
	}))

	c := NewOpenRouterClient(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: hi(), JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, "Tabloom CLI", title)
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	assert.Equal(t, "m", got["model"])
}

func TestOpenRouterErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusUnauthorized, func(err error) bool { var e *AuthError; return errors.As(err, &e) }},
		{http.StatusBadRequest, func(err error) bool { var e *BadRequestError; return errors.As(err, &e) }},
		{http.StatusInternalServerError, func(err error) bool { var e *ServerError; return errors.As(err, &e) }},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Request-Id", "req_123")
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "nope", "code": "x"}})
			}))
			c := NewOpenRouterClient(Config{APIKey: "k", BaseURL: srv.URL, RetryMax: 1})
			_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: hi()})
			require.Error(t, err)
			assert.True(t, tc.check(err), "unexpected error type %T", err)
			assert.Contains(t, err.Error(), "req_123")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.StatusCode)
		})
	}
}

func TestOpenRouterRequiresKeyAndModel(t *testing.T) {
	_, err := NewOpenRouterClient(Config{}).Generate(context.Background(), GenerateRequest{Model: "m"})
	assert.Error(t, err)
	_, err = NewOpenRouterClient(Config{APIKey: "k"}).Generate(context.Background(), GenerateRequest{})
	assert.Error(t, err)
}

func TestOllamaGenerate(t *testing.T) {
	var got ollamaChatRequest
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]any{"role": "assistant", "content": "hello from ollama"},
			"done":              true,
			"prompt_eval_count": 7,
			"eval_count":        3,
		})
	}))

	c := NewOllamaClient(Config{Host: srv.URL, RetryMax: 1})
	msgs := []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}}
	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3:latest", Messages: msgs, MaxTokens: 16, JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, "hello from ollama", resp.Content())
	assert.Equal(t, 10, resp.Usage.TotalTokens)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, msgs, got.Messages)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	assert.EqualValues(t, 16, got.Options["num_predict"])
}

func TestOllamaErrors(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model 'x' not found"})
	}))
	c := NewOllamaClient(Config{Host: srv.URL, RetryMax: 1})
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "x", Messages: hi()})
	var nf *ModelNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "model 'x' not found", nf.Message)

	_, err = c.Generate(context.Background(), GenerateRequest{Model: "x"})
	assert.EqualError(t, err, "messages cannot be empty")

	down := NewOllamaClient(Config{Host: "http://127.0.0.1:1", RetryMax: 1, HTTPTimeout: time.Second})
	_, err = down.Generate(context.Background(), GenerateRequest{Model: "x", Messages: hi()})
	var ue *UnreachableError
	assert.ErrorAs(t, err, &ue)
}

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{ProviderOllama, ProviderOpenRouter}, reg.Names())

	rt, err := reg.Build(ProviderNone, Config{})
	require.NoError(t, err)
	assert.Nil(t, rt)

	_, err = reg.Build(ProviderOpenRouter, Config{})
	assert.Error(t, err)

	rt, err = reg.Build(ProviderOllama, Config{})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, rt)

	_, err = reg.Build("bogus", Config{})
	assert.ErrorContains(t, err, "unknown provider")
}

func TestContextTokens(t *testing.T) {
	assert.Equal(t, 200000, ContextTokens("anthropic/claude-3.5-sonnet"))
	assert.Equal(t, 8192, ContextTokens("llama3:8b"))
	assert.Equal(t, DefaultContextTokens, ContextTokens("unknown/model"))
}

func TestParseRetryAfter(t *testing.T) {
	d, err := parseRetryAfter("2")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
	_, err = parseRetryAfter("soon")
	assert.Error(t, err)
}
