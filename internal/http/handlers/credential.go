package handlers

import (
	"net/http"
	"strings"

	"clipforge/internal/generation"
)

type credentialStatus struct {
	Available bool `json:"available"`
}

type credentialUpdate struct {
	APIKey string `json:"api_key"`
}

func (a *App) CredentialStatus(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, credentialStatus{Available: a.Generator.CheckCredential(r.Context())})
}

// CredentialRequest runs the configured credential flow and reports whether a
// key is available afterwards.
func (a *App) CredentialRequest(w http.ResponseWriter, r *http.Request) {
	a.Generator.RequestCredential(r.Context())
	a.json(w, http.StatusOK, credentialStatus{Available: a.Generator.CheckCredential(r.Context())})
}

func (a *App) CredentialSet(w http.ResponseWriter, r *http.Request) {
	var req credentialUpdate
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "api_key is required")
		return
	}
	if a.Keys != nil {
		if err := a.Keys.SetGeminiAPIKey(r.Context(), key); err != nil {
			a.Logger.Error().Err(err).Msg("persist gemini api key")
			a.error(w, http.StatusInternalServerError, "internal", "failed to store api key")
			return
		}
	}
	a.Generator.SetCredential(generation.NewCredential(key))
	a.json(w, http.StatusOK, credentialStatus{Available: true})
}
