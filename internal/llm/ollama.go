package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2"
)

// Ollama generates completions with a local Ollama instance.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllama creates a client targeting baseURL (default localhost:11434).
func NewOllama(baseURL, model string) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &Ollama{
		baseURL: trimBase(baseURL),
		model:   model,
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
}

func (c *Ollama) Generate(ctx context.Context, req Request) (Response, error) {
	cr := ollamaChatRequest{Model: req.Model}
	if cr.Model == "" {
		cr.Model = c.model
	}
	if req.Temperature > 0 {
		cr.Options = map[string]any{"temperature": req.Temperature}
	}
	if req.System != "" {
		cr.Messages = append(cr.Messages, chatMessage{Role: "system", Content: req.System})
	}
	cr.Messages = append(cr.Messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(cr)
	if err != nil {
		return Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, &NetworkError{Provider: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, &APIError{Provider: "ollama", Status: resp.StatusCode, Body: string(respBody)}
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Response{}, fmt.Errorf("decoding chat response: %w", err)
	}
	if strings.TrimSpace(result.Message.Content) == "" {
		return Response{}, ErrEmptyResponse
	}
	model := result.Model
	if model == "" {
		model = cr.Model
	}
	return Response{Text: result.Message.Content, Model: model}, nil
}

// IsRunning returns true if the Ollama server responds to GET /api/tags with 200.
func (c *Ollama) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// HasModel reports whether the configured model is present locally.
func (c *Ollama) HasModel(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, &NetworkError{Provider: "ollama", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, &APIError{Provider: "ollama", Status: resp.StatusCode}
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	for _, m := range tags.Models {
		// Ollama may return "llama3.2:latest"; match without the tag suffix.
		if m.Name == c.model || strings.HasPrefix(m.Name, c.model+":") {
			return true, nil
		}
	}
	return false, nil
}

// PullProgress is one line of the streamed pull response.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

// EnsureModel pulls the configured model if it is missing. onProgress may be
// nil.
func (c *Ollama) EnsureModel(ctx context.Context, onProgress func(PullProgress)) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("ollama is not running at %s; start it with: ollama serve", c.baseURL)
	}
	ok, err := c.HasModel(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	body, err := json.Marshal(map[string]any{"name": c.model, "stream": true})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", c.model, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pull %s: unexpected status %d", c.model, resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var p PullProgress
		if err := dec.Decode(&p); err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("reading pull progress: %w", err)
		}
		if onProgress != nil {
			onProgress(p)
		}
	}
	return nil
}
