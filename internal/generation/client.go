package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"clipforge/internal/infra"
)

const (
	// DefaultPollInterval is the pause between two status queries.
	DefaultPollInterval = 5 * time.Second
	// DefaultMaxWait bounds a single Generate call, polling included.
	DefaultMaxWait = 10 * time.Minute

	defaultArtifactMIME = "video/mp4"
)

// Options configures a Client.
type Options struct {
	Backend      Backend
	Materializer Materializer

	// Credential is the initial credential. Source is consulted when it is
	// empty; Requester runs on RequestCredential.
	Credential Credential
	Source     CredentialSource
	Requester  CredentialRequester

	PollInterval  time.Duration
	MaxWait       time.Duration
	MaxConcurrent int

	Logger *infra.Logger

	// Wait suspends for d or until ctx ends. Tests replace it to avoid real
	// sleeps and to observe the interval.
	Wait func(ctx context.Context, d time.Duration) error
	Now  func() time.Time
}

// Client drives long-running generation jobs: submit, poll until done, fetch
// the artifact and materialize it. Calls are independent; the credential is
// the only state shared between them.
type Client struct {
	backend      Backend
	materializer Materializer
	source       CredentialSource
	requester    CredentialRequester

	pollInterval time.Duration
	maxWait      time.Duration
	slots        *semaphore.Weighted

	logger *infra.Logger
	wait   func(ctx context.Context, d time.Duration) error
	now    func() time.Time

	mu   sync.RWMutex
	cred Credential
}

// NewClient validates opts and applies defaults.
func NewClient(opts Options) (*Client, error) {
	if opts.Backend == nil {
		return nil, errors.New("generation: backend is required")
	}
	if opts.Materializer == nil {
		return nil, errors.New("generation: materializer is required")
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	c := &Client{
		backend:      opts.Backend,
		materializer: opts.Materializer,
		source:       opts.Source,
		requester:    opts.Requester,
		pollInterval: interval,
		maxWait:      maxWait,
		logger:       logger,
		wait:         opts.Wait,
		now:          opts.Now,
		cred:         opts.Credential,
	}
	if opts.MaxConcurrent > 0 {
		c.slots = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	if c.wait == nil {
		c.wait = sleepContext
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// PollInterval returns the configured pause between status queries.
func (c *Client) PollInterval() time.Duration { return c.pollInterval }

// SetCredential replaces the held credential.
func (c *Client) SetCredential(cred Credential) {
	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()
}

func (c *Client) credential() Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

// CheckCredential reports whether a usable credential is available. It never
// fails: without a source, or when the source errors, it assumes a
// credential is available and lets the remote call decide.
func (c *Client) CheckCredential(ctx context.Context) bool {
	if !c.credential().Empty() {
		return true
	}
	if c.source == nil {
		return true
	}
	cred, err := c.source.Credential(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("generation: credential lookup failed; assuming available")
		return true
	}
	if cred.Empty() {
		return false
	}
	c.SetCredential(cred)
	return true
}

// RequestCredential runs the configured out-of-band flow. A non-empty result
// replaces the held credential; nothing guarantees that one was supplied.
func (c *Client) RequestCredential(ctx context.Context) {
	if c.requester == nil {
		return
	}
	cred, err := c.requester.RequestCredential(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("generation: credential request failed")
		return
	}
	if cred.Empty() {
		c.logger.Info().Msg("generation: credential request returned no key")
		return
	}
	c.SetCredential(cred)
	c.logger.Info().Msg("generation: credential updated")
}

// Generate runs one request to completion: submit, poll every PollInterval
// until the operation is done, fetch the artifact and materialize it. The
// call ends early when ctx is done or MaxWait elapses. Failures are *Error
// values matching one of the kind sentinels.
func (c *Client) Generate(ctx context.Context, req Request) (*Artifact, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.Normalized()

	if !c.CheckCredential(ctx) {
		return nil, &Error{
			Kind:    ErrCredentialMissing,
			Reason:  ReasonAuth,
			Op:      "check credential",
			Message: "no credential configured",
		}
	}
	cred := c.credential()

	ctx, cancel := context.WithTimeout(ctx, c.maxWait)
	defer cancel()

	if c.slots != nil {
		if err := c.slots.Acquire(ctx, 1); err != nil {
			return nil, wrap(ErrGenerationFailed, "acquire slot", "", err)
		}
		defer c.slots.Release(1)
	}

	log := c.logger.With().
		Str("mode", string(req.Mode)).
		Str("aspect_ratio", string(req.AspectRatio)).
		Logger()

	op, err := c.backend.Submit(ctx, cred, req)
	if err != nil {
		log.Warn().Err(err).Msg("generation: submit failed")
		return nil, wrap(ErrGenerationFailed, "submit", "", err)
	}
	if op == nil {
		return nil, &Error{Kind: ErrGenerationFailed, Reason: ReasonUnknown, Op: "submit", Message: "backend returned no operation"}
	}
	log = log.With().Str("operation", op.Name).Logger()
	log.Info().Bool("done", op.Done).Msg("generation: submitted")

	op, err = c.await(ctx, cred, op, &log)
	if err != nil {
		return nil, err
	}

	if op.Error != nil {
		log.Warn().Str("status", op.Error.Status).Str("message", op.Error.Message).Msg("generation: operation failed")
		return nil, wrap(ErrGenerationFailed, "operation", op.Name, op.Error)
	}
	if op.Result == nil || (strings.TrimSpace(op.Result.URI) == "" && len(op.Result.Data) == 0) {
		log.Warn().Msg("generation: operation finished without an artifact")
		return nil, &Error{
			Kind:      ErrGenerationFailed,
			Reason:    ReasonUnknown,
			Op:        "inspect result",
			Operation: op.Name,
			Message:   "no artifact produced",
		}
	}

	blob, err := c.fetch(ctx, cred, op)
	if err != nil {
		log.Warn().Err(err).Msg("generation: artifact fetch failed")
		return nil, err
	}

	ref, err := c.materializer.Materialize(ctx, *blob)
	if err != nil {
		log.Warn().Err(err).Msg("generation: materialize failed")
		return nil, wrap(ErrArtifactFetchFailed, "materialize", op.Name, err)
	}

	log.Info().Str("reference", ref).Int("bytes", len(blob.Data)).Msg("generation: completed")

	return &Artifact{
		LocalReference: ref,
		SourcePrompt:   req.Prompt,
		MIMEType:       blob.MIMEType,
		Size:           int64(len(blob.Data)),
		OperationName:  op.Name,
		AspectRatio:    string(req.AspectRatio),
		Mode:           string(req.Mode),
		CreatedAt:      c.now().UTC(),
	}, nil
}

// await polls op until it reports done. A done operation on entry is returned
// without any status query.
func (c *Client) await(ctx context.Context, cred Credential, op *Operation, log *zerolog.Logger) (*Operation, error) {
	name := op.Name
	polls := 0
	for !op.Done {
		if err := c.wait(ctx, c.pollInterval); err != nil {
			log.Warn().Err(err).Int("polls", polls).Msg("generation: stopped waiting")
			return nil, wrap(ErrGenerationFailed, "poll", name, err)
		}
		next, err := c.backend.Poll(ctx, cred, op)
		if err != nil {
			log.Warn().Err(err).Int("polls", polls).Msg("generation: poll failed")
			return nil, wrap(ErrGenerationFailed, "poll", name, err)
		}
		if next == nil {
			return nil, &Error{Kind: ErrGenerationFailed, Reason: ReasonUnknown, Op: "poll", Operation: name, Message: "backend returned no operation"}
		}
		if next.Name == "" {
			next.Name = name
		}
		op = next
		polls++
		log.Debug().Int("polls", polls).Bool("done", op.Done).Msg("generation: polled")
	}
	return op, nil
}

func (c *Client) fetch(ctx context.Context, cred Credential, op *Operation) (*Blob, error) {
	mime := strings.TrimSpace(op.Result.MIMEType)
	if len(op.Result.Data) > 0 {
		if mime == "" {
			mime = defaultArtifactMIME
		}
		return &Blob{Data: op.Result.Data, MIMEType: mime}, nil
	}

	blob, err := c.backend.Fetch(ctx, cred, op.Result.URI)
	if err != nil {
		return nil, wrap(ErrArtifactFetchFailed, "fetch", op.Name, err)
	}
	if blob == nil || len(blob.Data) == 0 {
		return nil, &Error{Kind: ErrArtifactFetchFailed, Reason: ReasonUnknown, Op: "fetch", Operation: op.Name, Message: "artifact is empty"}
	}
	out := *blob
	if strings.TrimSpace(out.MIMEType) == "" || out.MIMEType == "application/octet-stream" {
		out.MIMEType = firstNonEmpty(mime, defaultArtifactMIME)
	}
	return &out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
