package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/draftr/internal/schedule"
)

type ScheduleRequest struct {
	Content       string    `json:"content"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

func handleSchedulePost(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}

		post, err := deps.Scheduler.Schedule(r.Context(), req.Content, req.ScheduledTime)
		if err != nil {
			writeScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, post)
	}
}

func handleListScheduledPosts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")

		var (
			posts []schedule.Post
			err   error
		)
		switch status {
		case "missed":
			posts, err = deps.Scheduler.Missed(r.Context())
		case "", string(schedule.StatusPending), string(schedule.StatusPosted):
			posts, err = deps.Scheduler.List(r.Context())
			posts = filterStatus(posts, schedule.Status(status))
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "status must be pending, posted or missed")
			return
		}
		if err != nil {
			writeScheduleError(w, err)
			return
		}
		if posts == nil {
			posts = []schedule.Post{}
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

func filterStatus(posts []schedule.Post, status schedule.Status) []schedule.Post {
	if status == "" {
		return posts
	}
	out := posts[:0]
	for _, p := range posts {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

func handleCancelScheduledPost(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Scheduler.Cancel(r.Context(), id); err != nil {
			writeScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func writeScheduleError(w http.ResponseWriter, err error) {
	var storageErr *schedule.StorageError
	switch {
	case errors.Is(err, schedule.ErrInvalidSchedule):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, schedule.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "scheduled post not found")
	case errors.Is(err, schedule.ErrAlreadyPosted):
		httpError(w, http.StatusConflict, "conflict", "scheduled post was already published")
	case errors.As(err, &storageErr):
		httpError(w, http.StatusServiceUnavailable, "storage_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
