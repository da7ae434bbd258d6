package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"clipforge/internal/generation"
)

func TestBuildRequestTextMode(t *testing.T) {
	req, err := buildRequest("a red ball bouncing", "tall", "")
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}
	if req.Mode != generation.ModeText || req.AspectRatio != generation.AspectTall || req.Image != nil {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestBuildRequestImageMode(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	path := filepath.Join(t.TempDir(), "still.png")
	if err := os.WriteFile(path, png, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	req, err := buildRequest("", "16:9", path)
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}
	if req.Mode != generation.ModeImage || req.Image == nil {
		t.Fatalf("expected image mode, got %+v", req)
	}
	if req.Image.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", req.Image.MIMEType)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestBuildRequestErrors(t *testing.T) {
	if _, err := buildRequest("x", "4:3", ""); err == nil {
		t.Error("expected error for unsupported aspect ratio")
	}
	if _, err := buildRequest("x", "16:9", filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing image")
	}
}

type promptFunc func(ctx context.Context) (generation.Credential, error)

func (f promptFunc) RequestCredential(ctx context.Context) (generation.Credential, error) {
	return f(ctx)
}

func TestResolveKeyOrder(t *testing.T) {
	prompted := false
	prompter := promptFunc(func(ctx context.Context) (generation.Credential, error) {
		prompted = true
		return generation.NewCredential("typed"), nil
	})

	if key, _ := resolveKey(context.Background(), " flag ", "env", prompter); key != "flag" {
		t.Errorf("flag key = %q", key)
	}
	if key, _ := resolveKey(context.Background(), "", "env", prompter); key != "env" {
		t.Errorf("env key = %q", key)
	}
	if prompted {
		t.Error("prompter used while a key was available")
	}
	if key, _ := resolveKey(context.Background(), "", "", prompter); key != "typed" || !prompted {
		t.Errorf("prompted key = %q", key)
	}

	empty := promptFunc(func(ctx context.Context) (generation.Credential, error) { return generation.Credential{}, nil })
	if _, err := resolveKey(context.Background(), "", "", empty); err == nil {
		t.Error("expected error when no key is supplied")
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey("AIzaSyExample1234"); got != "****1234" {
		t.Errorf("maskKey() = %q", got)
	}
	if got := maskKey("abc"); got != "***" {
		t.Errorf("maskKey() = %q", got)
	}
}

type scriptedGenerator struct {
	available bool
	requests  int
	results   []error
	calls     int
}

func (s *scriptedGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Artifact, error) {
	err := s.results[s.calls]
	s.calls++
	if err != nil {
		return nil, err
	}
	return &generation.Artifact{LocalReference: "generated/videos/x.mp4"}, nil
}

func (s *scriptedGenerator) CheckCredential(ctx context.Context) bool { return s.available }

func (s *scriptedGenerator) RequestCredential(ctx context.Context) {
	s.requests++
	s.available = true
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetOut(&bytes.Buffer{})
	return cmd
}

func TestGenerateWithPromptAsksWhenMissing(t *testing.T) {
	gen := &scriptedGenerator{results: []error{nil}}
	if _, err := generateWithPrompt(context.Background(), gen, generation.Request{}, testCommand()); err != nil {
		t.Fatalf("generateWithPrompt() error = %v", err)
	}
	if gen.requests != 1 || gen.calls != 1 {
		t.Errorf("requests=%d calls=%d", gen.requests, gen.calls)
	}
}

func TestGenerateWithPromptRetriesOnceAfterAuthFailure(t *testing.T) {
	authErr := &generation.Error{Kind: generation.ErrGenerationFailed, Reason: generation.ReasonAuth}
	gen := &scriptedGenerator{available: true, results: []error{authErr, nil}}
	if _, err := generateWithPrompt(context.Background(), gen, generation.Request{}, testCommand()); err != nil {
		t.Fatalf("generateWithPrompt() error = %v", err)
	}
	if gen.requests != 1 || gen.calls != 2 {
		t.Errorf("requests=%d calls=%d", gen.requests, gen.calls)
	}
}

func TestGenerateWithPromptDoesNotRetryOtherFailures(t *testing.T) {
	quotaErr := &generation.Error{Kind: generation.ErrGenerationFailed, Reason: generation.ReasonQuota}
	gen := &scriptedGenerator{available: true, results: []error{quotaErr}}
	_, err := generateWithPrompt(context.Background(), gen, generation.Request{}, testCommand())
	if !errors.Is(err, generation.ErrGenerationFailed) {
		t.Fatalf("expected generation failure, got %v", err)
	}
	if gen.requests != 0 || gen.calls != 1 {
		t.Errorf("requests=%d calls=%d", gen.requests, gen.calls)
	}
}

func TestLoadConfigAppliesConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipforge.yaml")
	if err := os.WriteFile(path, []byte("veo_model: veo-3.1-generate-preview\nmax_wait_seconds: 120\n"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	t.Setenv("CONFIG_FILE", "")
	configPath = path
	defer func() { configPath = "" }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.VeoModel != "veo-3.1-generate-preview" {
		t.Errorf("VeoModel = %q", cfg.VeoModel)
	}
	if cfg.MaxWait.Seconds() != 120 {
		t.Errorf("MaxWait = %s", cfg.MaxWait)
	}
}
