package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/draftr/internal/composer"
	"github.com/kalambet/draftr/internal/drafting"
	"github.com/kalambet/draftr/internal/llm"
	"github.com/kalambet/draftr/internal/segment"
	"github.com/kalambet/draftr/internal/storage"
)

// SegmentRequest lets the extension segment a completion it obtained
// elsewhere. Separators default to the ones draftr's prompts use.
type SegmentRequest struct {
	Raw               string `json:"raw"`
	ItemSeparator     string `json:"item_separator"`
	QuestionSeparator string `json:"question_separator"`
	SecondaryMarker   string `json:"secondary_marker"`
	MaxItems          int    `json:"max_items"`
}

func handleSegment(w http.ResponseWriter, r *http.Request) {
	var req SegmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.QuestionSeparator == "" {
		req.QuestionSeparator = composer.QuestionSeparator
	}
	res := segment.Segment(req.Raw, segment.Options{
		ItemSeparator:     req.ItemSeparator,
		QuestionSeparator: req.QuestionSeparator,
		SecondaryMarker:   req.SecondaryMarker,
		MaxItems:          req.MaxItems,
	})
	writeJSON(w, http.StatusOK, res)
}

func handleCreateDraft(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req drafting.Request
		if !decodeBody(w, r, &req) {
			return
		}

		draft, err := deps.Drafter.Draft(r.Context(), req)
		if err != nil {
			writeDraftError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, draft)
	}
}

func writeDraftError(w http.ResponseWriter, err error) {
	var apiErr *llm.APIError
	var netErr *llm.NetworkError
	switch {
	case errors.Is(err, drafting.ErrInvalidRequest):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		httpError(w, http.StatusGatewayTimeout, "api_error", "generation timed out")
	case errors.As(err, &apiErr), errors.As(err, &netErr), errors.Is(err, llm.ErrEmptyResponse):
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func handleListDrafts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := strings.TrimSpace(r.URL.Query().Get("kind"))
		if kind != "" {
			if _, err := composer.ParseKind(kind); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
		}
		limit := parseIntParam(r, "limit", 20, 100)

		stored, err := deps.Store.ListDrafts(kind, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list drafts: %v", err)
			return
		}

		drafts := make([]drafting.Draft, 0, len(stored))
		for _, sd := range stored {
			drafts = append(drafts, drafting.FromStored(sd))
		}
		writeJSON(w, http.StatusOK, drafts)
	}
}

func handleGetDraft(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		sd, err := deps.Store.GetDraft(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "draft not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get draft: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, drafting.FromStored(sd))
	}
}
