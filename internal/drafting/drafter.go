// Package drafting turns a draft request into segmented, cleaned drafts.
package drafting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/draftr/internal/composer"
	"github.com/kalambet/draftr/internal/llm"
	"github.com/kalambet/draftr/internal/segment"
	"github.com/kalambet/draftr/internal/settings"
	"github.com/kalambet/draftr/internal/storage"
	"github.com/kalambet/draftr/internal/textclean"
)

const (
	defaultTimeout = 60 * time.Second
	sampleLimit    = 20
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid draft request")

// SettingsSource provides the current drafting settings.
type SettingsSource interface {
	Get() settings.Settings
}

// Store is the persistence the Drafter needs. Implemented by storage.Store.
type Store interface {
	ListSamples(limit int, normalizedOnly bool) ([]storage.Sample, error)
	SaveDraft(d storage.Draft) error
}

// Metrics records draft outcomes. Implemented by metrics.Registry.
type Metrics interface {
	DraftGenerated(kind, outcome string)
}

// Request asks for drafts of one kind.
type Request struct {
	Kind  composer.Kind `json:"kind"`
	Input string        `json:"input"`
	Count int           `json:"count,omitempty"` // 0 uses the settings default for the kind
	Tone  string        `json:"tone,omitempty"`
}

// Draft is the result of one generation.
type Draft struct {
	ID         string        `json:"id"`
	Kind       composer.Kind `json:"kind"`
	Items      []string      `json:"items"`
	Questions  []string      `json:"questions"`
	Model      string        `json:"model"`
	CreatedAt  time.Time     `json:"created_at"`
	DurationMs int64         `json:"duration_ms"`
}

// Drafter wires settings, samples, the composer, a generator and the
// segmenter into one call.
type Drafter struct {
	gen      llm.Generator
	settings SettingsSource
	store    Store
	composer *composer.Composer
	metrics  Metrics
	timeout  time.Duration
	maxItems int
	logger   *slog.Logger
}

// Options tunes a Drafter. Zero values use defaults.
type Options struct {
	Timeout  time.Duration
	MaxItems int
	Metrics  Metrics
	Logger   *slog.Logger
}

// New creates a Drafter.
func New(gen llm.Generator, src SettingsSource, store Store, comp *composer.Composer, opts Options) *Drafter {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = segment.DefaultMaxItems
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Drafter{
		gen:      gen,
		settings: src,
		store:    store,
		composer: comp,
		metrics:  opts.Metrics,
		timeout:  opts.Timeout,
		maxItems: opts.MaxItems,
		logger:   opts.Logger,
	}
}

// Draft runs the pipeline:
//  1. Validate the request and resolve the item count
//  2. Load settings and the newest writing samples
//  3. Compose the prompt and call the generator (bounded by the timeout)
//  4. Segment the completion and clean every item
//  5. Save the draft to history
//
// Generator errors are returned. Segmentation never fails; a history write
// failure is logged and the draft is still returned.
func (d *Drafter) Draft(ctx context.Context, req Request) (Draft, error) {
	start := time.Now()

	kind, err := composer.ParseKind(string(req.Kind))
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Count < 0 {
		return Draft{}, fmt.Errorf("%w: count must not be negative", ErrInvalidRequest)
	}

	s := d.settings.Get()
	count := req.Count
	if count == 0 {
		count = defaultCount(kind, s)
	}
	count = min(count, d.maxItems)

	var samples []string
	if stored, err := d.store.ListSamples(sampleLimit, true); err != nil {
		d.logger.Warn("drafting: failed to load writing samples", "error", err)
	} else {
		for _, sm := range stored {
			samples = append(samples, sm.Content)
		}
	}

	prompt, err := d.composer.Compose(composer.Input{
		Kind:     kind,
		Text:     req.Input,
		Count:    count,
		Tone:     req.Tone,
		Settings: s,
		Samples:  samples,
	})
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	genCtx, cancel := context.WithTimeout(ctx, d.timeout)
	resp, err := d.gen.Generate(genCtx, llm.Request{
		System:      prompt.System,
		Prompt:      prompt.User,
		Model:       s.Model,
		Temperature: s.Temperature,
	})
	cancel()
	if err != nil {
		d.record(kind, "error")
		return Draft{}, fmt.Errorf("generating %s drafts: %w", kind, err)
	}

	seg := segment.Segment(resp.Text, prompt.Options)
	draft := Draft{
		ID:         uuid.New().String(),
		Kind:       kind,
		Items:      cleanItems(seg.Items),
		Questions:  cleanQuestions(seg.Questions),
		Model:      resp.Model,
		CreatedAt:  time.Now().UTC(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err := d.store.SaveDraft(storage.Draft{
		ID:        draft.ID,
		CreatedAt: draft.CreatedAt,
		Kind:      string(kind),
		Input:     req.Input,
		Tone:      req.Tone,
		Model:     draft.Model,
		Items:     draft.Items,
		Questions: draft.Questions,
		RawOutput: resp.Text,
	}); err != nil {
		d.logger.Warn("drafting: failed to save draft history", "draft_id", draft.ID, "error", err)
	}

	d.record(kind, "ok")
	d.logger.Debug("draft complete",
		"draft_id", draft.ID,
		"kind", kind,
		"items", len(draft.Items),
		"duration_ms", draft.DurationMs,
	)
	return draft, nil
}

func (d *Drafter) record(kind composer.Kind, outcome string) {
	if d.metrics != nil {
		d.metrics.DraftGenerated(string(kind), outcome)
	}
}

func defaultCount(kind composer.Kind, s settings.Settings) int {
	switch kind {
	case composer.KindReply:
		return s.ReplyCount
	case composer.KindPost:
		return s.VariationCount
	default:
		return s.IdeaCount
	}
}

// cleanItems applies textclean.Item and keeps the segmenter's guarantee of
// at least one item.
func cleanItems(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if c := textclean.Item(it); c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return []string{segment.FallbackItem}
	}
	return out
}

// cleanQuestions applies textclean.Plain. When cleaning empties every
// question the fallback set is used, as the segmenter does for raw output.
func cleanQuestions(qs []string) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		if c := textclean.Plain(q); c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), segment.FallbackQuestions...)
	}
	return out
}

// FromStored converts a history row to the API shape.
func FromStored(sd storage.Draft) Draft {
	return Draft{
		ID:        sd.ID,
		Kind:      composer.Kind(sd.Kind),
		Items:     sd.Items,
		Questions: sd.Questions,
		Model:     sd.Model,
		CreatedAt: sd.CreatedAt,
	}
}
