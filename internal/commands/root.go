package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"clipforge/internal/infra"
	"clipforge/internal/infra/credentials"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "clipforge",
	Short:         "Generate short videos with Veo",
	Long:          `Generate videos from a text prompt or a still image and manage the Gemini API key used to do so.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file applied over the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

// loadConfig reads .env, the environment and the optional --config file.
func loadConfig() (*infra.Config, error) {
	_ = godotenv.Load()
	if strings.TrimSpace(configPath) != "" {
		if err := os.Setenv("CONFIG_FILE", configPath); err != nil {
			return nil, err
		}
	}
	return infra.LoadConfig()
}

func newLogger(cfg *infra.Config) zerolog.Logger {
	logger := infra.NewLoggerTo(os.Stderr, cfg).With().Str("cmd", "clipforge").Logger()
	if !verbose {
		logger = logger.Level(zerolog.WarnLevel)
	}
	return logger
}

// openKeyStore connects to the credential database. The returned close
// function is never nil.
func openKeyStore(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*credentials.Store, func(), error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, func() {}, fmt.Errorf("DATABASE_URL is required to manage stored keys")
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, func() {}, err
	}
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, func() {}, fmt.Errorf("failed to prepare credential store: %w", err)
	}
	return store, pool.Close, nil
}
