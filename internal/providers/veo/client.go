package veo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"clipforge/internal/generation"
	"clipforge/internal/infra"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel      = "veo-3.1-fast-generate-preview"
	DefaultResolution = "720p"

	apiKeyHeader = "x-goog-api-key"

	defaultMaxArtifactBytes = 512 << 20
)

// Options controls how the Veo client is configured.
type Options struct {
	BaseURL          string
	Model            string
	Resolution       string
	MaxArtifactBytes int64
	HTTPClient       *http.Client
	Logger           *infra.Logger
}

// Client implements generation.Backend against the Gemini REST API. The
// credential is sent as a header on every request and never placed in a URL.
type Client struct {
	baseURL          string
	model            string
	resolution       string
	maxArtifactBytes int64
	httpClient       *http.Client
	logger           *infra.Logger
}

// NewClient constructs a Veo client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("veo: invalid base url: %w", err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	resolution := strings.TrimSpace(opts.Resolution)
	if resolution == "" {
		resolution = DefaultResolution
	}
	maxBytes := opts.MaxArtifactBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxArtifactBytes
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		baseURL:          baseURL,
		model:            model,
		resolution:       resolution,
		maxArtifactBytes: maxBytes,
		httpClient:       client,
		logger:           logger,
	}, nil
}

// Model returns the configured Veo model identifier.
func (c *Client) Model() string {
	return c.model
}

// Submit starts a predictLongRunning job. Image mode sends the still frame
// inline next to the prompt.
func (c *Client) Submit(ctx context.Context, cred generation.Credential, req generation.Request) (*generation.Operation, error) {
	instance := predictInstance{Prompt: strings.TrimSpace(req.Prompt)}
	if req.Mode == generation.ModeImage && req.Image != nil {
		instance.Image = &inlineImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(req.Image.Data),
			MimeType:           firstNonEmpty(req.Image.MIMEType, "image/png"),
		}
	}
	payload := predictRequest{
		Instances: []predictInstance{instance},
		Parameters: predictParameters{
			AspectRatio: string(req.AspectRatio),
			SampleCount: 1,
			Resolution:  c.resolution,
		},
	}

	var resp operationResponse
	endpoint := c.baseURL + fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(c.model))
	if err := c.invoke(ctx, http.MethodPost, endpoint, cred, payload, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Name) == "" && !resp.Done {
		return nil, errors.New("veo: submit returned no operation name")
	}

	c.logger.Debug().
		Str("model", c.model).
		Str("operation", resp.Name).
		Msg("veo: operation submitted")

	return toOperation(resp), nil
}

// Poll fetches the current state of op.
func (c *Client) Poll(ctx context.Context, cred generation.Credential, op *generation.Operation) (*generation.Operation, error) {
	if op == nil || strings.TrimSpace(op.Name) == "" {
		return nil, errors.New("veo: operation name is required")
	}
	var resp operationResponse
	endpoint := c.baseURL + "/" + strings.TrimLeft(op.Name, "/")
	if err := c.invoke(ctx, http.MethodGet, endpoint, cred, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Name == "" {
		resp.Name = op.Name
	}
	return toOperation(resp), nil
}

// Fetch downloads the artifact at uri. Relative URIs resolve against the
// configured base URL.
func (c *Client) Fetch(ctx context.Context, cred generation.Credential, uri string) (*generation.Blob, error) {
	target := strings.TrimSpace(uri)
	if target == "" {
		return nil, errors.New("veo: artifact uri is required")
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(target, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("veo: create download request: %w", err)
	}
	c.authorize(req, cred)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{op: "download artifact", err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeAPIError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxArtifactBytes+1))
	if err != nil {
		return nil, &transportError{op: "read artifact", err: err}
	}
	if int64(len(data)) > c.maxArtifactBytes {
		return nil, fmt.Errorf("veo: artifact exceeds %d bytes", c.maxArtifactBytes)
	}

	c.logger.Debug().
		Int("bytes", len(data)).
		Str("content_type", resp.Header.Get("Content-Type")).
		Msg("veo: artifact downloaded")

	return &generation.Blob{Data: data, MIMEType: mediaType(resp.Header.Get("Content-Type"))}, nil
}

func (c *Client) invoke(ctx context.Context, method, endpoint string, cred generation.Credential, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("veo: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("veo: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req, cred)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{op: "invoke", err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("veo: decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request, cred generation.Credential) {
	if !cred.Empty() {
		req.Header.Set(apiKeyHeader, cred.Key())
	}
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{HTTPStatus: resp.StatusCode}
	var parsed errorResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Status = parsed.Error.Status
		apiErr.Message = parsed.Error.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

func toOperation(resp operationResponse) *generation.Operation {
	op := &generation.Operation{Name: resp.Name, Done: resp.Done}
	if !resp.Done {
		return op
	}
	if resp.Error != nil && (resp.Error.Code != 0 || resp.Error.Message != "") {
		op.Error = &generation.OperationError{
			Code:    resp.Error.Code,
			Status:  resp.Error.Status,
			Message: resp.Error.Message,
		}
		return op
	}
	if resp.Response == nil || resp.Response.GenerateVideoResponse == nil {
		return op
	}
	videoResp := resp.Response.GenerateVideoResponse
	for _, sample := range videoResp.GeneratedSamples {
		if sample.Video == nil || strings.TrimSpace(sample.Video.URI) == "" {
			continue
		}
		op.Result = &generation.Result{URI: sample.Video.URI, MIMEType: sample.Video.MimeType}
		return op
	}
	if videoResp.RAIMediaFilteredCount > 0 {
		op.Error = &generation.OperationError{
			Status:  "FAILED_PRECONDITION",
			Message: "video filtered by safety policy: " + strings.Join(videoResp.RAIMediaFilteredReasons, "; "),
		}
	}
	return op
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(mt)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ generation.Backend = (*Client)(nil)
