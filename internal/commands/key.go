package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clipforge/internal/generation"
	"clipforge/internal/infra/credentials"
)

var keyValue string

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the stored Gemini API key",
}

var keySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a Gemini API key",
	Long: `Store a Gemini API key in the credential database.

The key is taken from --key, then GEMINI_API_KEY, and is otherwise read from
the terminal without echo.`,
	Args: cobra.NoArgs,
	RunE: runKeySet,
}

var keyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether a Gemini API key is stored",
	Args:  cobra.NoArgs,
	RunE:  runKeyCheck,
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored Gemini API key",
	Args:  cobra.NoArgs,
	RunE:  runKeyDelete,
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keySetCmd, keyCheckCmd, keyDeleteCmd)

	keySetCmd.Flags().StringVar(&keyValue, "key", "", "API key (falls back to GEMINI_API_KEY, then a prompt)")
}

func withKeyStore(cmd *cobra.Command, fn func(ctx context.Context, store *credentials.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	store, closeStore, err := openKeyStore(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, store)
}

func runKeySet(cmd *cobra.Command, args []string) error {
	key, err := resolveKey(cmd.Context(), keyValue, os.Getenv("GEMINI_API_KEY"), credentials.TerminalPrompter{Out: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	return withKeyStore(cmd, func(ctx context.Context, store *credentials.Store) error {
		if err := store.SetGeminiAPIKey(ctx, key); err != nil {
			return fmt.Errorf("failed to persist gemini api key: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "gemini api key stored")
		return nil
	})
}

func runKeyCheck(cmd *cobra.Command, args []string) error {
	return withKeyStore(cmd, func(ctx context.Context, store *credentials.Store) error {
		key, err := store.GeminiAPIKey(ctx)
		if err != nil {
			return fmt.Errorf("failed to read gemini api key: %w", err)
		}
		if key == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "no gemini api key stored")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "gemini api key stored (%s)\n", maskKey(key))
		return nil
	})
}

func runKeyDelete(cmd *cobra.Command, args []string) error {
	return withKeyStore(cmd, func(ctx context.Context, store *credentials.Store) error {
		removed, err := store.DeleteGeminiAPIKey(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete gemini api key: %w", err)
		}
		if !removed {
			fmt.Fprintln(cmd.OutOrStdout(), "no gemini api key stored")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "gemini api key deleted")
		return nil
	})
}

// resolveKey picks the first non-empty key from the flag, the environment and
// finally the prompter.
func resolveKey(ctx context.Context, flagValue, envValue string, prompter generation.CredentialRequester) (string, error) {
	if key := strings.TrimSpace(flagValue); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(envValue); key != "" {
		return key, nil
	}
	cred, err := prompter.RequestCredential(ctx)
	if err != nil {
		return "", err
	}
	if cred.Empty() {
		return "", fmt.Errorf("gemini api key is required via --key, GEMINI_API_KEY or the prompt")
	}
	return cred.Key(), nil
}

// maskKey keeps the last four characters so users can tell keys apart.
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 4) + key[len(key)-4:]
}
