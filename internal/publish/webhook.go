package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook publishes by POSTing {"content": ...} to a URL.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook creates a Webhook. A nil client gets a 30s timeout.
func NewWebhook(url string, httpClient *http.Client) *Webhook {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Webhook{url: url, httpClient: httpClient}
}

// Publish sends content to the webhook. Any non-2xx status is an error.
func (w *Webhook) Publish(ctx context.Context, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("encoding webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "draftr")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
