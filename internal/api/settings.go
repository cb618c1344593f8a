package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kalambet/draftr/internal/settings"
)

func handleGetSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Settings.Get())
	}
}

// handlePatchSettings overlays the fields present in the body onto the
// current settings as a single update.
func handlePatchSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}

		updated, err := deps.Settings.Update(r.Context(), func(s *settings.Settings) error {
			dec := json.NewDecoder(bytes.NewReader(body))
			dec.DisallowUnknownFields()
			if err := dec.Decode(s); err != nil {
				return fmt.Errorf("%w: %v", errPatch, err)
			}
			return nil
		})
		if errors.Is(err, errPatch) || errors.Is(err, settings.ErrInvalid) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update settings: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

var errPatch = errors.New("invalid settings patch")
