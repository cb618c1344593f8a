// Package llm talks to the language-model providers draftr can draft with.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Request is a single-turn completion request.
type Request struct {
	System      string
	Prompt      string
	Model       string // empty uses the provider's configured default
	Temperature float64
	MaxTokens   int
}

// Response is the completion text and the model that produced it.
type Response struct {
	Text  string
	Model string
}

// Generator produces one completion per call.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// ErrEmptyResponse is returned when the provider answered with no text.
var ErrEmptyResponse = errors.New("empty completion")

// APIError is a non-success HTTP answer from a provider.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Status, e.Body)
}

// NetworkError is a transport failure before any HTTP answer arrived.
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

// Options selects and configures a provider.
type Options struct {
	Provider   string // "openrouter", "anthropic" or "ollama"
	APIKey     string
	BaseURL    string // empty uses the provider default
	Model      string
	HTTPClient *http.Client
}

const defaultTimeout = 60 * time.Second

// New builds the Generator for opts.Provider.
func New(opts Options) (Generator, error) {
	switch opts.Provider {
	case "", "openrouter":
		if opts.APIKey == "" {
			return nil, errors.New("openrouter: api key is required")
		}
		c := NewOpenRouter(opts.APIKey, opts.Model)
		if opts.BaseURL != "" {
			c.baseURL = trimBase(opts.BaseURL)
		}
		if opts.HTTPClient != nil {
			c.httpClient = opts.HTTPClient
		}
		return c, nil
	case "anthropic":
		return NewAnthropic(opts.APIKey, opts.BaseURL, opts.Model, opts.HTTPClient)
	case "ollama":
		c := NewOllama(opts.BaseURL, opts.Model)
		if opts.HTTPClient != nil {
			c.httpClient = opts.HTTPClient
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}
