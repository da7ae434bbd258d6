// Package genaisdk drives Veo through the official google.golang.org/genai
// SDK. It is an alternative to the hand-written REST client in package veo.
package genaisdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"clipforge/internal/generation"
	"clipforge/internal/infra"
)

const DefaultModel = "veo-3.1-fast-generate-preview"

// videoAPI is the subset of the SDK used by Backend.
type videoAPI interface {
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

type sdkAPI struct {
	client *genai.Client
}

func (a sdkAPI) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return a.client.Models.GenerateVideos(ctx, model, prompt, image, config)
}

func (a sdkAPI) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	return a.client.Operations.GetVideosOperation(ctx, op, config)
}

// Options configures Backend.
type Options struct {
	Model      string
	Resolution string
	// BaseURL overrides the SDK endpoint (scheme and host, no API version).
	BaseURL    string
	HTTPClient *http.Client
	// Fetcher downloads result URIs. Required unless the service always
	// returns inline bytes.
	Fetcher generation.Fetcher
	Logger  *infra.Logger
}

// Backend implements generation.Backend on top of the genai SDK. One SDK
// client is kept per API key.
type Backend struct {
	model      string
	resolution string
	baseURL    string
	httpClient *http.Client
	fetcher    generation.Fetcher
	logger     *infra.Logger

	newAPI func(ctx context.Context, key string) (videoAPI, error)

	mu      sync.Mutex
	clients map[string]videoAPI
}

// New builds a Backend.
func New(opts Options) *Backend {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	b := &Backend{
		model:      model,
		resolution: strings.TrimSpace(opts.Resolution),
		baseURL:    strings.TrimSpace(opts.BaseURL),
		httpClient: opts.HTTPClient,
		fetcher:    opts.Fetcher,
		logger:     logger,
		clients:    map[string]videoAPI{},
	}
	b.newAPI = b.dial
	return b
}

func (b *Backend) dial(ctx context.Context, key string) (videoAPI, error) {
	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: b.httpClient,
	}
	if b.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: b.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("genaisdk: create client: %w", err)
	}
	return sdkAPI{client: client}, nil
}

func (b *Backend) api(ctx context.Context, cred generation.Credential) (videoAPI, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if api, ok := b.clients[cred.Key()]; ok {
		return api, nil
	}
	api, err := b.newAPI(ctx, cred.Key())
	if err != nil {
		return nil, err
	}
	b.clients[cred.Key()] = api
	return api, nil
}

// Submit starts a GenerateVideos operation.
func (b *Backend) Submit(ctx context.Context, cred generation.Credential, req generation.Request) (*generation.Operation, error) {
	api, err := b.api(ctx, cred)
	if err != nil {
		return nil, err
	}
	var image *genai.Image
	if req.Mode == generation.ModeImage && req.Image != nil {
		image = &genai.Image{ImageBytes: req.Image.Data, MIMEType: req.Image.MIMEType}
	}
	config := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    string(req.AspectRatio),
		Resolution:     b.resolution,
	}
	op, err := api.GenerateVideos(ctx, b.model, strings.TrimSpace(req.Prompt), image, config)
	if err != nil {
		return nil, mapError("generate videos", err)
	}
	b.logger.Debug().Str("model", b.model).Str("operation", op.Name).Msg("genaisdk: operation submitted")
	return toOperation(op), nil
}

// Poll refreshes op through the operations service.
func (b *Backend) Poll(ctx context.Context, cred generation.Credential, op *generation.Operation) (*generation.Operation, error) {
	if op == nil || strings.TrimSpace(op.Name) == "" {
		return nil, errors.New("genaisdk: operation name is required")
	}
	api, err := b.api(ctx, cred)
	if err != nil {
		return nil, err
	}
	next, err := api.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: op.Name}, nil)
	if err != nil {
		return nil, mapError("get operation", err)
	}
	out := toOperation(next)
	if out.Name == "" {
		out.Name = op.Name
	}
	return out, nil
}

// Fetch delegates to the configured fetcher.
func (b *Backend) Fetch(ctx context.Context, cred generation.Credential, uri string) (*generation.Blob, error) {
	if b.fetcher == nil {
		return nil, errors.New("genaisdk: no fetcher configured for uri results")
	}
	return b.fetcher.Fetch(ctx, cred, uri)
}

func toOperation(op *genai.GenerateVideosOperation) *generation.Operation {
	if op == nil {
		return nil
	}
	out := &generation.Operation{Name: op.Name, Done: op.Done}
	if !op.Done {
		return out
	}
	if len(op.Error) > 0 {
		out.Error = operationError(op.Error)
		return out
	}
	if op.Response == nil {
		return out
	}
	for _, v := range op.Response.GeneratedVideos {
		if v == nil || v.Video == nil {
			continue
		}
		if len(v.Video.VideoBytes) == 0 && strings.TrimSpace(v.Video.URI) == "" {
			continue
		}
		out.Result = &generation.Result{URI: v.Video.URI, MIMEType: v.Video.MIMEType, Data: v.Video.VideoBytes}
		return out
	}
	if op.Response.RAIMediaFilteredCount > 0 {
		out.Error = &generation.OperationError{
			Status:  "FAILED_PRECONDITION",
			Message: "video filtered by safety policy: " + strings.Join(op.Response.RAIMediaFilteredReasons, "; "),
		}
	}
	return out
}

func operationError(raw map[string]any) *generation.OperationError {
	e := &generation.OperationError{}
	switch code := raw["code"].(type) {
	case float64:
		e.Code = int(code)
	case int:
		e.Code = code
	case int32:
		e.Code = int(code)
	}
	e.Status, _ = raw["status"].(string)
	e.Message, _ = raw["message"].(string)
	if e.Message == "" {
		e.Message = fmt.Sprint(raw)
	}
	return e
}

// sdkError carries the reason derived from a genai.APIError.
type sdkError struct {
	op     string
	reason generation.Reason
	err    error
}

func (e *sdkError) Error() string { return fmt.Sprintf("genaisdk: %s: %v", e.op, e.err) }

func (e *sdkError) Unwrap() error { return e.err }

func (e *sdkError) Reason() generation.Reason { return e.reason }

func mapError(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &sdkError{op: op, reason: reasonFor(apiErr), err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &sdkError{op: op, reason: reasonFor(*apiErrPtr), err: err}
	}
	return &sdkError{op: op, reason: generation.ReasonUnknown, err: err}
}

func reasonFor(e genai.APIError) generation.Reason {
	msg := strings.ToLower(e.Message)
	switch {
	case e.Code == http.StatusUnauthorized, e.Code == http.StatusForbidden:
		return generation.ReasonAuth
	case e.Code == http.StatusNotFound && strings.Contains(msg, "requested entity was not found"):
		return generation.ReasonAuth
	case e.Code == http.StatusBadRequest && strings.Contains(msg, "api key not valid"):
		return generation.ReasonAuth
	case e.Code == http.StatusTooManyRequests, e.Status == "RESOURCE_EXHAUSTED":
		return generation.ReasonQuota
	case e.Code == http.StatusRequestTimeout, e.Code >= http.StatusInternalServerError:
		return generation.ReasonTransient
	}
	return generation.ReasonUnknown
}

var _ generation.Backend = (*Backend)(nil)
