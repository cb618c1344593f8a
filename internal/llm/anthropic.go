package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicBaseURL   = "https://api.anthropic.com"
	defaultAnthropicModel     = "claude-sonnet-4-0"
	defaultAnthropicMaxTokens = 1024
)

// Anthropic generates completions through the Messages API.
type Anthropic struct {
	sdk   anthropic.Client
	model string
}

// NewAnthropic creates a client. baseURL and httpClient are optional.
func NewAnthropic(apiKey, baseURL, model string, httpClient *http.Client) (*Anthropic, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if model == "" {
		model = defaultAnthropicModel
	}

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithBaseURL(resolvedAnthropicBaseURL(baseURL)),
	}
	if httpClient != nil {
		opts = append(opts, anthropicoption.WithHTTPClient(httpClient))
	}
	return &Anthropic{sdk: anthropic.NewClient(opts...), model: model}, nil
}

func resolvedAnthropicBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/v1")
	return strings.TrimRight(base, "/") + "/"
}

func (a *Anthropic) Generate(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     anthropic.Model(model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		// The Messages API caps temperature at 1.
		params.Temperature = anthropic.Float(min(req.Temperature, 1))
	}

	msg, err := a.sdk.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Response{}, &APIError{Provider: "anthropic", Status: apiErr.StatusCode, Body: apiErr.Error()}
		}
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, &NetworkError{Provider: "anthropic", Err: err}
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(variant.Text)
		default:
			// Ignore non-text blocks.
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{Text: text.String(), Model: string(msg.Model)}, nil
}
