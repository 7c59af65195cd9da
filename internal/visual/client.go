package visual

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/ink-prompts/internal/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("visual: api key is required")

// APIError is a non-2xx response from the image API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("image API error %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if repeated.
// Only rate limiting and server errors qualify.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ClientOptions configures the image API client.
type ClientOptions struct {
	APIKey        string
	BaseURL       string
	Model         string
	FallbackModel string
	Size          string
	MaxRetries    int
	RetryDelay    time.Duration
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *zerolog.Logger
}

// Client talks to an OpenAI compatible /images/generations endpoint.
// It is safe for concurrent use and shared by every pipeline.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	fallback   string
	size       string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	logger     zerolog.Logger

	group    singleflight.Group
	mu       sync.RWMutex
	resolved string
}

// NewClient creates a Client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://openrouter.ai/api/v1"
	}
	if opts.Size == "" {
		opts.Size = "1024x1024"
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.HTTPClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		fallback:   opts.FallbackModel,
		size:       opts.Size,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		httpClient: opts.HTTPClient,
		logger:     logging.OrNop(opts.Logger).With().Str("component", "image_client").Logger(),
	}, nil
}

// FallbackModel returns the model tried after the resolved one fails.
func (c *Client) FallbackModel() string {
	return c.fallback
}

// ResolveModel returns the primary model if the provider lists it and the
// fallback otherwise. The lookup happens once per process; concurrent first
// callers share a single in-flight request. A failed lookup is not cached.
func (c *Client) ResolveModel(ctx context.Context) string {
	c.mu.RLock()
	resolved := c.resolved
	c.mu.RUnlock()
	if resolved != "" {
		return resolved
	}

	v, _, _ := c.group.Do("model", func() (any, error) {
		c.mu.RLock()
		if c.resolved != "" {
			defer c.mu.RUnlock()
			return c.resolved, nil
		}
		c.mu.RUnlock()

		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		model, err := c.probeModels(probeCtx)
		if err != nil {
			c.logger.Warn().Err(err).Str("model", c.model).Msg("model lookup failed, using primary")
			return c.model, nil
		}

		c.mu.Lock()
		c.resolved = model
		c.mu.Unlock()
		return model, nil
	})
	return v.(string)
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *Client) probeModels(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: readMessage(resp.Body)}
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("failed to decode models: %w", err)
	}

	available := make(map[string]bool, len(list.Data))
	for _, m := range list.Data {
		available[m.ID] = true
	}
	if available[c.model] || c.fallback == "" {
		return c.model, nil
	}
	if available[c.fallback] {
		c.logger.Warn().Str("primary", c.model).Str("fallback", c.fallback).Msg("primary image model unavailable")
		return c.fallback, nil
	}
	return c.model, nil
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// GenerateImage returns the URL of one generated image. 5xx and 429
// responses are retried with exponential backoff; other failures return
// immediately.
func (c *Client) GenerateImage(ctx context.Context, prompt, model string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		url, err := c.generateOnce(ctx, prompt, model)
		if err == nil {
			return url, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() || attempt == c.maxRetries {
			break
		}

		delay := c.retryDelay << attempt
		c.logger.Debug().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying image generation")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", lastErr
}

func (c *Client) generateOnce(ctx context.Context, prompt, model string) (string, error) {
	body, err := json.Marshal(imageRequest{
		Model:          model,
		Prompt:         prompt,
		N:              1,
		Size:           c.size,
		ResponseFormat: "url",
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build image request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Message: readMessage(resp.Body)}
	}

	var out imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode image response: %w", err)
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return "", fmt.Errorf("no image URL in response")
	}
	return out.Data[0].URL, nil
}

func readMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 2048))
	return strings.TrimSpace(string(b))
}
