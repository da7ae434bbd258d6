package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"clipforge/internal/generation"
	"clipforge/internal/storage"
	ziparchive "clipforge/pkg/zip"
)

type generationRequest struct {
	Mode        string        `json:"mode"`
	Prompt      string        `json:"prompt"`
	AspectRatio string        `json:"aspect_ratio"`
	Image       *imagePayload `json:"image,omitempty"`
}

type imagePayload struct {
	Data     string `json:"data"`
	MIMEType string `json:"mime_type"`
}

type artifactResponse struct {
	Reference     string    `json:"reference"`
	URL           string    `json:"url"`
	Prompt        string    `json:"prompt"`
	MIMEType      string    `json:"mime_type"`
	Size          int64     `json:"size"`
	Mode          string    `json:"mode"`
	AspectRatio   string    `json:"aspect_ratio"`
	OperationName string    `json:"operation_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toArtifactResponse(a generation.Artifact) artifactResponse {
	return artifactResponse{
		Reference:     a.LocalReference,
		URL:           "/v1/artifacts/" + a.LocalReference,
		Prompt:        a.SourcePrompt,
		MIMEType:      a.MIMEType,
		Size:          a.Size,
		Mode:          a.Mode,
		AspectRatio:   a.AspectRatio,
		OperationName: a.OperationName,
		CreatedAt:     a.CreatedAt,
	}
}

func (p generationRequest) toRequest() (generation.Request, error) {
	mode, err := generation.ParseMode(p.Mode)
	if err != nil {
		return generation.Request{}, err
	}
	aspect, err := generation.ParseAspectRatio(p.AspectRatio)
	if err != nil {
		return generation.Request{}, err
	}
	req := generation.Request{Mode: mode, Prompt: p.Prompt, AspectRatio: aspect}
	if p.Image != nil && strings.TrimSpace(p.Image.Data) != "" {
		img, err := generation.DecodeSourceImage(p.Image.Data, p.Image.MIMEType)
		if err != nil {
			return generation.Request{}, err
		}
		req.Image = img
	}
	return req, nil
}

// GenerationsCreate blocks until the artifact is materialized or the
// generation fails.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	var payload generationRequest
	if err := a.decode(w, r, &payload); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	artifact, err := a.Generator.Generate(r.Context(), req)
	if err != nil {
		a.generationError(w, err)
		return
	}

	for _, old := range a.History.Add(*artifact) {
		if err := a.Store.Release(r.Context(), old.LocalReference); err != nil {
			a.Logger.Warn().Err(err).Str("reference", old.LocalReference).Msg("release evicted artifact")
		}
	}
	a.json(w, http.StatusCreated, toArtifactResponse(*artifact))
}

func (a *App) GenerationsList(w http.ResponseWriter, r *http.Request) {
	entries := a.History.List()
	items := make([]artifactResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, toArtifactResponse(e))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// GenerationsArchive streams the artifacts still held in history as a zip.
// Entries whose artifact was released elsewhere are skipped.
func (a *App) GenerationsArchive(w http.ResponseWriter, r *http.Request) {
	entries := a.History.List()
	files := make([]ziparchive.Entry, 0, len(entries))
	for i, e := range entries {
		blob, err := a.Store.Open(r.Context(), e.LocalReference)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			a.Logger.Warn().Err(err).Str("reference", e.LocalReference).Msg("open artifact for archive")
			a.error(w, http.StatusInternalServerError, "internal", "failed to read artifacts")
			return
		}
		files = append(files, ziparchive.Entry{
			Name:     ziparchive.EntryName(i+1, e.SourcePrompt, archiveExt(blob.MIMEType)),
			Data:     blob.Data,
			Modified: e.CreatedAt,
		})
	}
	if len(files) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no artifacts to archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="clipforge-recent.zip"`)
	w.WriteHeader(http.StatusOK)
	if err := ziparchive.Write(w, files); err != nil {
		a.Logger.Warn().Err(err).Msg("write archive")
	}
}

func archiveExt(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "video/webm"):
		return ".webm"
	case strings.HasPrefix(mimeType, "video/quicktime"):
		return ".mov"
	default:
		return ".mp4"
	}
}
