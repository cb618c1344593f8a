package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "anthropic/claude-sonnet-4"
	maxRetries             = 3
	initialBackoff         = 500 * time.Millisecond
)

// OpenRouter speaks the OpenAI-compatible chat completions API. Any server
// exposing /chat/completions works when pointed at with a custom base URL.
type OpenRouter struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	referer    string
	title      string
}

// NewOpenRouter creates a client with the given API key and default model.
func NewOpenRouter(apiKey, model string) *OpenRouter {
	if model == "" {
		model = defaultOpenRouterModel
	}
	return &OpenRouter{
		apiKey:  apiKey,
		baseURL: defaultOpenRouterURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		referer: "https://github.com/kalambet/draftr",
		title:   "draftr",
	}
}

// NewOpenRouterWithBaseURL creates a client pointing at a custom base URL.
func NewOpenRouterWithBaseURL(apiKey, model, baseURL string) *OpenRouter {
	c := NewOpenRouter(apiKey, model)
	c.baseURL = trimBase(baseURL)
	return c
}

func trimBase(u string) string { return strings.TrimRight(u, "/") }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends a non-streaming chat completion, retrying on HTTP 429 with
// exponential backoff.
func (c *OpenRouter) Generate(ctx context.Context, req Request) (Response, error) {
	cr := chatCompletionRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}
	if cr.Model == "" {
		cr.Model = c.model
	}
	if req.Temperature > 0 {
		t := req.Temperature
		cr.Temperature = &t
	}
	if req.System != "" {
		cr.Messages = append(cr.Messages, chatMessage{Role: "system", Content: req.System})
	}
	cr.Messages = append(cr.Messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(cr)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		resp, err := c.doChat(ctx, body)
		if err == nil {
			if resp.Model == "" {
				resp.Model = cr.Model
			}
			return resp, nil
		}
		if !isRateLimit(err) {
			return Response{}, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return Response{}, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *OpenRouter) doChat(ctx context.Context, body []byte) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, &NetworkError{Provider: "openrouter", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Response{}, &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, &APIError{Provider: "openrouter", Status: resp.StatusCode, Body: string(respBody)}
	}

	var cr chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Response{}, fmt.Errorf("decoding completion: %w", err)
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{Text: cr.Choices[0].Message.Content, Model: cr.Model}, nil
}

// Model is a model entry returned by the /models endpoint.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

type modelList struct {
	Data []Model `json:"data"`
}

// ListModels returns the models the provider offers.
func (c *OpenRouter) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Provider: "openrouter", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: "openrouter", Status: resp.StatusCode}
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding models: %w", err)
	}
	if list.Data == nil {
		return []Model{}, nil
	}
	return list.Data, nil
}

func (c *OpenRouter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
}
