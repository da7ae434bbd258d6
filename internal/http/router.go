package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"clipforge/internal/http/handlers"
	"clipforge/internal/infra"
	"clipforge/internal/middleware"
)

// RouterOptions carries the middleware settings taken from configuration.
type RouterOptions struct {
	CORSOrigins     []string
	RateLimitPerMin int
	// TrustProxyHeaders lets chi's RealIP rewrite RemoteAddr from
	// X-Forwarded-For and X-Real-IP. Enable it only behind a proxy that
	// overwrites those headers.
	TrustProxyHeaders bool
}

// OptionsFromConfig extracts RouterOptions from cfg.
func OptionsFromConfig(cfg *infra.Config) RouterOptions {
	return RouterOptions{
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitPerMin:   cfg.RateLimitPerMin,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}
}

func NewRouter(app *handlers.App, opts RouterOptions) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer, middleware.Logger(*app.Logger))
	r.Use(middleware.CORS(opts.CORSOrigins))

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/v1/credential", func(r chi.Router) {
		r.Get("/", app.CredentialStatus)
		r.Put("/", app.CredentialSet)
		r.Post("/request", app.CredentialRequest)
	})

	r.Route("/v1/generations", func(r chi.Router) {
		r.Get("/", app.GenerationsList)
		r.Get("/archive", app.GenerationsArchive)
		if opts.RateLimitPerMin > 0 {
			r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.GenerationsCreate)
		} else {
			r.Post("/", app.GenerationsCreate)
		}
	})

	r.Route("/v1/artifacts", func(r chi.Router) {
		r.Get("/*", app.ArtifactGet)
		r.Delete("/*", app.ArtifactDelete)
	})

	return r
}
