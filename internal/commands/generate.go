package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clipforge/internal/generation"
	"clipforge/internal/infra/credentials"
	"clipforge/internal/providers"
	"clipforge/internal/storage"
)

var (
	genPrompt string
	genAspect string
	genImage  string
	genOut    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a video and save it locally",
	Long: `Generate a video from a prompt, or from a still image with an optional prompt.

Examples:
  clipforge generate --prompt "a red ball bouncing"
  clipforge generate --image still.png --aspect 9:16 --out ./clips`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&genPrompt, "prompt", "", "Text prompt")
	generateCmd.Flags().StringVar(&genAspect, "aspect", "16:9", "Aspect ratio: 16:9 or 9:16")
	generateCmd.Flags().StringVar(&genImage, "image", "", "Source image file; switches to image mode")
	generateCmd.Flags().StringVar(&genOut, "out", "", "Output directory (default: STORAGE_PATH)")
}

// buildRequest turns flag values into a generation request.
func buildRequest(prompt, aspect, imagePath string) (generation.Request, error) {
	ratio, err := generation.ParseAspectRatio(aspect)
	if err != nil {
		return generation.Request{}, err
	}
	req := generation.Request{Mode: generation.ModeText, Prompt: prompt, AspectRatio: ratio}
	if strings.TrimSpace(imagePath) == "" {
		return req, nil
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return generation.Request{}, fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	req.Mode = generation.ModeImage
	req.Image = &generation.SourceImage{Data: data, MIMEType: mime}
	return req, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(genPrompt, genAspect, genImage)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	outDir := genOut
	if strings.TrimSpace(outDir) == "" {
		outDir = cfg.StoragePath
	}
	store, err := storage.NewFileStore(outDir)
	if err != nil {
		return err
	}

	prompter := credentials.TerminalPrompter{Out: cmd.ErrOrStderr()}
	sources := credentials.ChainSource{credentials.EnvSource{}}
	if cfg.DatabaseURL != "" {
		keys, closeStore, err := openKeyStore(ctx, cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("credential store unavailable")
		} else {
			defer closeStore()
			sources = credentials.ChainSource{credentials.EnvSource{}, credentials.StoreSource{Store: keys}}
			prompter.Persist = keys.SetGeminiAPIKey
		}
	}

	backend, err := providers.NewBackend(cfg, &http.Client{Timeout: 2 * time.Minute}, &logger)
	if err != nil {
		return err
	}
	client, err := generation.NewClient(generation.Options{
		Backend:      backend,
		Materializer: store,
		Credential:   generation.NewCredential(cfg.GeminiAPIKey),
		Source:       sources,
		Requester:    prompter,
		PollInterval: cfg.PollInterval,
		MaxWait:      cfg.MaxWait,
		Logger:       &logger,
	})
	if err != nil {
		return err
	}

	artifact, err := generateWithPrompt(ctx, client, req, cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(store.BasePath(), filepath.FromSlash(artifact.LocalReference)))
	return nil
}

type credentialedGenerator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Artifact, error)
	CheckCredential(ctx context.Context) bool
	RequestCredential(ctx context.Context)
}

// generateWithPrompt asks for a key up front when none is configured, and
// once more when the service rejects the key it was given.
func generateWithPrompt(ctx context.Context, client credentialedGenerator, req generation.Request, cmd *cobra.Command) (*generation.Artifact, error) {
	if !client.CheckCredential(ctx) {
		client.RequestCredential(ctx)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "generating, this usually takes a few minutes...")
	artifact, err := client.Generate(ctx, req)
	if err != nil && generation.NeedsCredential(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "the API key was rejected or is missing:", err)
		client.RequestCredential(ctx)
		artifact, err = client.Generate(ctx, req)
	}
	return artifact, err
}

var _ credentialedGenerator = (*generation.Client)(nil)
