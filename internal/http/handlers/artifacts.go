package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"clipforge/internal/storage"
)

func artifactRef(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "*"))
}

func (a *App) ArtifactGet(w http.ResponseWriter, r *http.Request) {
	ref := artifactRef(r)
	if ref == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "reference required")
		return
	}
	blob, err := a.Store.Open(r.Context(), ref)
	if errors.Is(err, storage.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "artifact not found")
		return
	}
	if err != nil {
		a.Logger.Warn().Err(err).Str("reference", ref).Msg("open artifact")
		a.error(w, http.StatusBadRequest, "bad_request", "artifact unavailable")
		return
	}
	ct := blob.MIMEType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

// ArtifactDelete releases the artifact and drops it from history.
func (a *App) ArtifactDelete(w http.ResponseWriter, r *http.Request) {
	ref := artifactRef(r)
	if ref == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "reference required")
		return
	}
	err := a.Store.Release(r.Context(), ref)
	removed := a.History.Remove(ref)
	if errors.Is(err, storage.ErrNotFound) && !removed {
		a.error(w, http.StatusNotFound, "not_found", "artifact not found")
		return
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		a.Logger.Warn().Err(err).Str("reference", ref).Msg("release artifact")
		a.error(w, http.StatusInternalServerError, "internal", "failed to release artifact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
