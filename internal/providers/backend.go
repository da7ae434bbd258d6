// Package providers selects the remote video backend from configuration.
package providers

import (
	"fmt"
	"net/http"
	"strings"

	"clipforge/internal/generation"
	"clipforge/internal/infra"
	"clipforge/internal/providers/genaisdk"
	"clipforge/internal/providers/veo"
)

// NewBackend builds the backend named by cfg.VeoBackend. The SDK backend
// still downloads URIs through the REST client so the key stays in headers.
func NewBackend(cfg *infra.Config, httpClient *http.Client, logger *infra.Logger) (generation.Backend, error) {
	rest, err := veo.NewClient(veo.Options{
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.VeoModel,
		Resolution: cfg.VeoResolution,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.VeoBackend)) {
	case "", infra.BackendREST:
		return rest, nil
	case infra.BackendSDK:
		return genaisdk.New(genaisdk.Options{
			Model:      cfg.VeoModel,
			Resolution: cfg.VeoResolution,
			HTTPClient: httpClient,
			Fetcher:    rest,
			Logger:     logger,
		}), nil
	default:
		return nil, fmt.Errorf("providers: unknown backend %q", cfg.VeoBackend)
	}
}
