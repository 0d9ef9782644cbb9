package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1"

// OpenRouterClient talks to the OpenRouter chat completions API.
type OpenRouterClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	retryMax   int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewOpenRouterClient applies defaults of 60s timeout, 3 attempts and a
// 500ms..4s backoff.
func NewOpenRouterClient(cfg Config) *OpenRouterClient {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 4 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenRouterURL
	}
	return &OpenRouterClient{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		retryMax:   cfg.RetryMax,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
	}
}

type openRouterRequest struct {
	GenerateRequest
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

func (c *OpenRouterClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("openrouter api key is missing")
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	body := openRouterRequest{GenerateRequest: req}
	if req.JSONMode {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + "/chat/completions"
	b := backoff{next: c.baseDelay, max: c.maxDelay}

	var lastErr error
	for attempt := 1; attempt <= c.retryMax; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("HTTP-Referer", "https://github.com/KaramelBytes/tabloom-cli")
		httpReq.Header.Set("X-Title", "Tabloom CLI")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if isRetryableNetErr(err) && attempt < c.retryMax {
				lastErr = err
				if werr := b.wait(ctx); werr != nil {
					return nil, werr
				}
				continue
			}
			return nil, fmt.Errorf("http request: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := readAPIError(resp)
			resp.Body.Close()
			lastErr = classifyAPIError(apiErr, resp.Header)
			if !isRetryableStatus(resp.StatusCode) || attempt == c.retryMax {
				return nil, lastErr
			}
			var werr error
			if d, perr := parseRetryAfter(resp.Header.Get("Retry-After")); perr == nil && d > 0 {
				werr = sleepCtx(ctx, d)
			} else {
				werr = b.wait(ctx)
			}
			if werr != nil {
				return nil, werr
			}
			continue
		}
		var out GenerateResponse
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		out.RequestID = extractRequestID(resp)
		return &out, nil
	}
	return nil, lastErr
}
