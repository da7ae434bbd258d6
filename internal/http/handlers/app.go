package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"clipforge/internal/generation"
	"clipforge/internal/history"
	"clipforge/internal/infra"
	"clipforge/internal/storage"
)

// Generator is the generation client as seen by the handlers.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Artifact, error)
	CheckCredential(ctx context.Context) bool
	RequestCredential(ctx context.Context)
	SetCredential(cred generation.Credential)
}

// KeyStore persists a Gemini API key supplied through the API.
type KeyStore interface {
	SetGeminiAPIKey(ctx context.Context, apiKey string) error
}

type App struct {
	Generator Generator
	Store     storage.Store
	History   *history.Recent
	Keys      KeyStore
	Logger    *infra.Logger

	// MaxBodyBytes caps request bodies; source images travel inline.
	MaxBodyBytes int64
}

const defaultMaxBodyBytes = 20 << 20

func NewApp(gen Generator, store storage.Store, recent *history.Recent, logger *infra.Logger) *App {
	if recent == nil {
		recent = history.NewRecent(history.DefaultSize)
	}
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &App{
		Generator:    gen,
		Store:        store,
		History:      recent,
		Logger:       logger,
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code             string `json:"code"`
	Message          string `json:"message"`
	Reason           string `json:"reason,omitempty"`
	CredentialPrompt bool   `json:"credential_prompt,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) error {
	limit := a.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v)
}

// generationError writes a failure from the generation client. Auth-related
// failures set credential_prompt so the caller can offer the key flow.
func (a *App) generationError(w http.ResponseWriter, err error) {
	ge, ok := generation.AsError(err)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "generation failed")
		return
	}
	status, code := statusFor(ge)
	a.json(w, status, errorBody{Error: errorDetail{
		Code:             code,
		Message:          ge.Error(),
		Reason:           string(ge.Reason),
		CredentialPrompt: ge.NeedsCredential(),
	}})
}

func statusFor(ge *generation.Error) (int, string) {
	switch {
	case errors.Is(ge, generation.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(ge, generation.ErrCredentialMissing):
		return http.StatusUnauthorized, "credential_missing"
	}
	code := "generation_failed"
	if errors.Is(ge, generation.ErrArtifactFetchFailed) {
		code = "artifact_fetch_failed"
	}
	switch ge.Reason {
	case generation.ReasonAuth:
		return http.StatusUnauthorized, code
	case generation.ReasonQuota:
		return http.StatusTooManyRequests, code
	case generation.ReasonDeadline:
		return http.StatusGatewayTimeout, code
	case generation.ReasonCanceled:
		return http.StatusRequestTimeout, code
	default:
		return http.StatusBadGateway, code
	}
}
