package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"clipforge/internal/generation"
	"clipforge/internal/history"
	httpapi "clipforge/internal/http"
	"clipforge/internal/http/handlers"
	"clipforge/internal/infra"
	"clipforge/internal/infra/credentials"
	"clipforge/internal/providers"
	"clipforge/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg)

	ctx := context.Background()

	sources := credentials.ChainSource{credentials.EnvSource{}}
	var (
		keyStore  *credentials.Store
		requester generation.CredentialRequester
	)
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()

		keyStore = credentials.NewStore(infra.NewSQLRunner(dbpool, logger))
		if err := keyStore.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare credential store")
		}
		stored := credentials.StoreSource{Store: keyStore}
		sources = credentials.ChainSource{stored, credentials.EnvSource{}}
		requester = stored
	} else {
		logger.Info().Msg("DATABASE_URL not set; api keys are not persisted")
	}

	store, err := storage.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise storage")
	}

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	backend, err := providers.NewBackend(cfg, httpClient, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise video backend")
	}

	client, err := generation.NewClient(generation.Options{
		Backend:       backend,
		Materializer:  store,
		Credential:    generation.NewCredential(cfg.GeminiAPIKey),
		Source:        sources,
		Requester:     requester,
		PollInterval:  cfg.PollInterval,
		MaxWait:       cfg.MaxWait,
		MaxConcurrent: cfg.MaxConcurrent,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise generation client")
	}

	app := handlers.NewApp(client, store, history.NewRecent(cfg.HistorySize), &logger)
	if keyStore != nil {
		app.Keys = keyStore
	}

	router := httpapi.NewRouter(app, httpapi.OptionsFromConfig(cfg))
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("backend", cfg.VeoBackend).
			Str("storage", cfg.StorageDriver).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
