package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/draftr/internal/storage"
	"github.com/kalambet/draftr/internal/textclean"
)

// maxSampleBytes bounds a single captured sample; scraped pages beyond this
// are almost certainly not a single post.
const maxSampleBytes = 64 << 10

// SampleStore is what Capture writes to. Implemented by storage.Store.
type SampleStore interface {
	SaveSample(s storage.Sample) error
	EnqueueJob(job storage.Job) error
}

// SampleInput is a captured piece of the user's own writing.
type SampleInput struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"` // "text" (default) or "html"
	Source      string `json:"source,omitempty"`
}

// ErrInvalidSample wraps capture validation failures.
var ErrInvalidSample = errors.New("invalid sample")

// Capture stores a sample. Text samples are cleaned immediately; HTML is
// stored raw and a sample_normalize job is queued for the worker.
func Capture(store SampleStore, in SampleInput) (storage.Sample, error) {
	if strings.TrimSpace(in.Content) == "" {
		return storage.Sample{}, fmt.Errorf("%w: content is empty", ErrInvalidSample)
	}
	if len(in.Content) > maxSampleBytes {
		return storage.Sample{}, fmt.Errorf("%w: content exceeds %d bytes", ErrInvalidSample, maxSampleBytes)
	}

	ct := in.ContentType
	if ct == "" {
		ct = "text"
	}
	if ct != "text" && ct != "html" {
		return storage.Sample{}, fmt.Errorf("%w: content_type must be text or html, got %q", ErrInvalidSample, ct)
	}

	sample := storage.Sample{
		ID:          uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
		Source:      in.Source,
		ContentType: ct,
		Raw:         in.Content,
	}
	if ct == "text" {
		sample.Content = textclean.Plain(in.Content)
		sample.Normalized = true
	}

	if err := store.SaveSample(sample); err != nil {
		return storage.Sample{}, fmt.Errorf("saving sample: %w", err)
	}

	if ct == "html" {
		payload, _ := json.Marshal(normalizePayload{SampleID: sample.ID})
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        JobNormalize,
			PayloadJSON: string(payload),
		}
		if err := store.EnqueueJob(job); err != nil {
			return storage.Sample{}, fmt.Errorf("queueing normalization for sample %s: %w", sample.ID, err)
		}
	}
	return sample, nil
}
