package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/draftr/internal/drafting"
	"github.com/kalambet/draftr/internal/schedule"
	"github.com/kalambet/draftr/internal/settings"
	"github.com/kalambet/draftr/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Metrics is the HTTP side of the metrics collector.
type Metrics interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

type AppDeps struct {
	Store     *storage.Store
	Settings  *settings.Manager
	Drafter   *drafting.Drafter
	Scheduler *schedule.Scheduler
	Hub       http.Handler // optional; /ws is not served when nil
	Metrics   Metrics      // optional
	Token     string
	Logger    *slog.Logger
}

// NewAppHandler returns the router for everything the extension and the CLI
// talk to. /health and /metrics are open; the rest requires the API token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	r.Get("/health", handleHealth)

	if deps.Hub != nil {
		r.With(QueryTokenAuth(deps.Token)).Handle("/ws", deps.Hub)
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/segment", handleSegment)

		r.Post("/drafts", handleCreateDraft(deps))
		r.Get("/drafts", handleListDrafts(deps))
		r.Get("/drafts/{id}", handleGetDraft(deps))

		r.Post("/scheduled-posts", handleSchedulePost(deps))
		r.Get("/scheduled-posts", handleListScheduledPosts(deps))
		r.Delete("/scheduled-posts/{id}", handleCancelScheduledPost(deps))

		r.Get("/settings", handleGetSettings(deps))
		r.Patch("/settings", handlePatchSettings(deps))

		r.Post("/samples", handleCreateSample(deps))
		r.Get("/samples", handleListSamples(deps))
		r.Delete("/samples/{id}", handleDeleteSample(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
