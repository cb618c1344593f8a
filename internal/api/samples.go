package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/draftr/internal/ingest"
	"github.com/kalambet/draftr/internal/storage"
)

// SampleResponse is the API shape of a writing sample. Raw HTML is not
// echoed back.
type SampleResponse struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source,omitempty"`
	ContentType string    `json:"content_type"`
	Content     string    `json:"content"`
	Normalized  bool      `json:"normalized"`
}

func toSampleResponse(s storage.Sample) SampleResponse {
	return SampleResponse{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		Source:      s.Source,
		ContentType: s.ContentType,
		Content:     s.Content,
		Normalized:  s.Normalized,
	}
}

func handleCreateSample(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingest.SampleInput
		if !decodeBody(w, r, &req) {
			return
		}

		sample, err := ingest.Capture(deps.Store, req)
		if errors.Is(err, ingest.ErrInvalidSample) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save sample: %v", err)
			return
		}

		status := "stored"
		if !sample.Normalized {
			status = "queued"
		}
		writeJSON(w, http.StatusCreated, map[string]string{
			"id":     sample.ID,
			"status": status,
		})
	}
}

func handleListSamples(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		samples, err := deps.Store.ListSamples(limit, false)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list samples: %v", err)
			return
		}

		out := make([]SampleResponse, 0, len(samples))
		for _, s := range samples {
			out = append(out, toSampleResponse(s))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleDeleteSample(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteSample(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "sample not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete sample: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
