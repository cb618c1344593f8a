package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/kalambet/draftr/internal/storage"
	"github.com/kalambet/draftr/internal/textclean"
)

// JobNormalize converts a captured HTML sample into plain text.
const JobNormalize = "sample_normalize"

// JobStore abstracts the job queue and sample operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetSample(id string) (storage.Sample, error)
	UpdateSampleContent(id, content string) error
}

// Worker processes sample_normalize jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	md     *converter.Converter
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		md:     newConverter(),
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

func newConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single sample_normalize job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobNormalize})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type normalizePayload struct {
	SampleID string `json:"sample_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload normalizePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	sample, err := w.store.GetSample(payload.SampleID)
	if err != nil {
		return fmt.Errorf("loading sample %s: %w", payload.SampleID, err)
	}

	text, err := w.normalize(sample)
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("sample %s has no text after normalization", sample.ID)
	}

	if err := w.store.UpdateSampleContent(sample.ID, text); err != nil {
		return fmt.Errorf("storing normalized sample: %w", err)
	}
	w.logger.Debug("sample normalized", "sample_id", sample.ID, "chars", len(text))
	return nil
}

func (w *Worker) normalize(s storage.Sample) (string, error) {
	if s.ContentType != "html" {
		return textclean.Plain(s.Raw), nil
	}
	var opts []converter.ConvertOptionFunc
	if s.Source != "" {
		opts = append(opts, converter.WithDomain(s.Source))
	}
	markdown, err := w.md.ConvertString(s.Raw, opts...)
	if err != nil {
		return "", fmt.Errorf("converting html: %w", err)
	}
	return textclean.Plain(markdown), nil
}
