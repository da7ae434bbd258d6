package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBackend struct {
	mu sync.Mutex

	submitOp  *Operation
	submitErr error
	polls     []*Operation
	pollErr   error
	blob      *Blob
	fetchErr  error

	submitCalls int
	pollCalls   int
	fetchCalls  int
	lastCred    Credential
	lastReq     Request
	fetchedURI  string
}

func (f *fakeBackend) Submit(ctx context.Context, cred Credential, req Request) (*Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastCred = cred
	f.lastReq = req
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	op := *f.submitOp
	return &op, nil
}

func (f *fakeBackend) Poll(ctx context.Context, cred Credential, op *Operation) (*Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if len(f.polls) == 0 {
		return &Operation{Name: op.Name}, nil
	}
	next := f.polls[0]
	f.polls = f.polls[1:]
	return next, nil
}

func (f *fakeBackend) Fetch(ctx context.Context, cred Credential, uri string) (*Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	f.fetchedURI = uri
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.blob == nil {
		return &Blob{Data: []byte("video-bytes"), MIMEType: "video/mp4"}, nil
	}
	return f.blob, nil
}

type fakeMaterializer struct {
	mu    sync.Mutex
	n     int
	blobs map[string]Blob
	err   error
}

func (m *fakeMaterializer) Materialize(ctx context.Context, blob Blob) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.blobs == nil {
		m.blobs = map[string]Blob{}
	}
	m.n++
	ref := fmt.Sprintf("blob:%d", m.n)
	m.blobs[ref] = blob
	return ref, nil
}

type waitRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitRecorder) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.waits = append(w.waits, d)
	w.mu.Unlock()
	return ctx.Err()
}

func doneOp(name, uri string) *Operation {
	return &Operation{Name: name, Done: true, Result: &Result{URI: uri}}
}

func newTestClient(t *testing.T, backend Backend, opts Options) (*Client, *fakeMaterializer, *waitRecorder) {
	t.Helper()
	mat := &fakeMaterializer{}
	rec := &waitRecorder{}
	opts.Backend = backend
	if opts.Materializer == nil {
		opts.Materializer = mat
	}
	if opts.Wait == nil {
		opts.Wait = rec.wait
	}
	if opts.Credential.Empty() && opts.Source == nil {
		opts.Credential = NewCredential("test-key")
	}
	client, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return client, mat, rec
}

func textRequest(prompt string) Request {
	return Request{Mode: ModeText, Prompt: prompt}
}

func TestNewClientRequiresCollaborators(t *testing.T) {
	if _, err := NewClient(Options{Materializer: &fakeMaterializer{}}); err == nil {
		t.Fatal("expected error without backend")
	}
	if _, err := NewClient(Options{Backend: &fakeBackend{}}); err == nil {
		t.Fatal("expected error without materializer")
	}
	c, err := NewClient(Options{Backend: &fakeBackend{}, Materializer: &fakeMaterializer{}})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if c.PollInterval() != DefaultPollInterval {
		t.Fatalf("poll interval = %s, want %s", c.PollInterval(), DefaultPollInterval)
	}
}

func TestGenerateImageModeWithoutImageFailsBeforeAnyCall(t *testing.T) {
	backend := &fakeBackend{submitOp: doneOp("op", "uri")}
	client, _, _ := newTestClient(t, backend, Options{})

	_, err := client.Generate(context.Background(), Request{Mode: ModeImage, Prompt: "animate"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if backend.submitCalls != 0 || backend.pollCalls != 0 || backend.fetchCalls != 0 {
		t.Fatalf("backend called: submit=%d poll=%d fetch=%d", backend.submitCalls, backend.pollCalls, backend.fetchCalls)
	}
}

func TestGenerateEmptyPromptIsInvalid(t *testing.T) {
	backend := &fakeBackend{submitOp: doneOp("op", "uri")}
	client, _, _ := newTestClient(t, backend, Options{})

	for _, prompt := range []string{"", "   \n\t"} {
		_, err := client.Generate(context.Background(), textRequest(prompt))
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("prompt %q: expected ErrInvalidRequest, got %v", prompt, err)
		}
	}
	if backend.submitCalls != 0 {
		t.Fatalf("submit called %d times", backend.submitCalls)
	}
}

func TestGenerateWithoutCredentialNeverSubmits(t *testing.T) {
	backend := &fakeBackend{submitOp: doneOp("op", "uri")}
	source := CredentialSourceFunc(func(ctx context.Context) (Credential, error) {
		return Credential{}, nil
	})
	client, _, _ := newTestClient(t, backend, Options{Source: source})

	if client.CheckCredential(context.Background()) {
		t.Fatal("CheckCredential = true, want false")
	}
	_, err := client.Generate(context.Background(), textRequest("a cat"))
	if !errors.Is(err, ErrCredentialMissing) {
		t.Fatalf("expected ErrCredentialMissing, got %v", err)
	}
	if !NeedsCredential(err) {
		t.Fatal("expected NeedsCredential")
	}
	if backend.submitCalls != 0 {
		t.Fatalf("submit called %d times", backend.submitCalls)
	}
}

func TestGenerateDoneOnSubmitSkipsPolling(t *testing.T) {
	backend := &fakeBackend{submitOp: doneOp("op-1", "https://files/one")}
	client, mat, rec := newTestClient(t, backend, Options{})

	artifact, err := client.Generate(context.Background(), textRequest("sunrise"))
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if backend.pollCalls != 0 || len(rec.waits) != 0 {
		t.Fatalf("polls=%d waits=%d, want 0", backend.pollCalls, len(rec.waits))
	}
	if backend.fetchedURI != "https://files/one" {
		t.Fatalf("fetched %q", backend.fetchedURI)
	}
	if _, ok := mat.blobs[artifact.LocalReference]; !ok {
		t.Fatalf("artifact reference %q not materialized", artifact.LocalReference)
	}
}

func TestGeneratePollsUntilDoneAtConfiguredInterval(t *testing.T) {
	backend := &fakeBackend{
		submitOp: &Operation{Name: "op-2"},
		polls: []*Operation{
			{Name: "op-2"},
			doneOp("op-2", "https://files/two"),
		},
	}
	client, _, rec := newTestClient(t, backend, Options{PollInterval: 7 * time.Second})

	if _, err := client.Generate(context.Background(), textRequest("waves")); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if backend.pollCalls != 2 {
		t.Fatalf("poll calls = %d, want 2", backend.pollCalls)
	}
	if len(rec.waits) != 2 {
		t.Fatalf("waits = %v, want 2 entries", rec.waits)
	}
	for _, d := range rec.waits {
		if d != 7*time.Second {
			t.Fatalf("wait = %s, want 7s", d)
		}
	}
}

func TestGenerateKeepsOperationNameWhenPollOmitsIt(t *testing.T) {
	backend := &fakeBackend{
		submitOp: &Operation{Name: "op-named"},
		polls:    []*Operation{{Done: true, Result: &Result{URI: "u"}}},
	}
	client, _, _ := newTestClient(t, backend, Options{})

	artifact, err := client.Generate(context.Background(), textRequest("x"))
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if artifact.OperationName != "op-named" {
		t.Fatalf("operation name = %q", artifact.OperationName)
	}
}

func TestGenerateWithoutResultFailsWithoutFetch(t *testing.T) {
	backend := &fakeBackend{submitOp: &Operation{Name: "op-3", Done: true}}
	client, _, _ := newTestClient(t, backend, Options{})

	_, err := client.Generate(context.Background(), textRequest("nothing"))
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	ge, ok := AsError(err)
	if !ok || ge.Operation != "op-3" || ge.Message != "no artifact produced" {
		t.Fatalf("unexpected error %#v", err)
	}
	if backend.fetchCalls != 0 {
		t.Fatalf("fetch called %d times", backend.fetchCalls)
	}
}

func TestGenerateOperationError(t *testing.T) {
	backend := &fakeBackend{submitOp: &Operation{Name: "op-4", Done: true, Error: &OperationError{Code: 8, Status: "RESOURCE_EXHAUSTED", Message: "quota exceeded"}}}
	client, _, _ := newTestClient(t, backend, Options{})

	_, err := client.Generate(context.Background(), textRequest("x"))
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	ge, _ := AsError(err)
	if ge.Reason != ReasonQuota {
		t.Fatalf("reason = %q, want quota", ge.Reason)
	}
	if backend.fetchCalls != 0 {
		t.Fatal("fetch must not run for a failed operation")
	}
}

func TestGenerateSubmitAuthFailureNeedsCredential(t *testing.T) {
	backend := &fakeBackend{submitErr: errors.New("Requested entity was not found.")}
	client, _, _ := newTestClient(t, backend, Options{})

	_, err := client.Generate(context.Background(), textRequest("x"))
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if !NeedsCredential(err) {
		t.Fatal("expected auth failure to ask for a credential")
	}
}

func TestGenerateDistinctReferences(t *testing.T) {
	backend := &fakeBackend{submitOp: doneOp("op", "uri")}
	client, _, _ := newTestClient(t, backend, Options{})

	a, err := client.Generate(context.Background(), textRequest("same"))
	if err != nil {
		t.Fatalf("first Generate error: %v", err)
	}
	b, err := client.Generate(context.Background(), textRequest("same"))
	if err != nil {
		t.Fatalf("second Generate error: %v", err)
	}
	if a.LocalReference == b.LocalReference {
		t.Fatalf("references collide: %q", a.LocalReference)
	}
}

func TestGenerateReturnsSourcePrompt(t *testing.T) {
	backend := &fakeBackend{
		submitOp: &Operation{Name: "op-5"},
		polls:    []*Operation{doneOp("op-5", "artifact-123")},
		blob:     &Blob{Data: []byte("mp4"), MIMEType: ""},
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	client, _, _ := newTestClient(t, backend, Options{Now: func() time.Time { return now }})

	artifact, err := client.Generate(context.Background(), textRequest("a red ball bouncing"))
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if artifact.SourcePrompt != "a red ball bouncing" {
		t.Fatalf("source prompt = %q", artifact.SourcePrompt)
	}
	if backend.fetchedURI != "artifact-123" {
		t.Fatalf("fetched %q", backend.fetchedURI)
	}
	if artifact.MIMEType != "video/mp4" || artifact.Size != 3 {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
	if artifact.AspectRatio != string(AspectWide) || artifact.Mode != string(ModeText) {
		t.Fatalf("unexpected defaults %+v", artifact)
	}
	if !artifact.CreatedAt.Equal(now) || artifact.CreatedAt.Location() != time.UTC {
		t.Fatalf("created at = %v", artifact.CreatedAt)
	}
}

func TestGenerateInlineResultSkipsFetch(t *testing.T) {
	backend := &fakeBackend{submitOp: &Operation{Name: "op-6", Done: true, Result: &Result{Data: []byte("inline")}}}
	client, mat, _ := newTestClient(t, backend, Options{})

	artifact, err := client.Generate(context.Background(), textRequest("x"))
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if backend.fetchCalls != 0 {
		t.Fatal("inline result must not be fetched")
	}
	if string(mat.blobs[artifact.LocalReference].Data) != "inline" {
		t.Fatal("inline bytes not materialized")
	}
}

func TestGenerateFetchFailure(t *testing.T) {
	backend := &fakeBackend{submitOp: doneOp("op", "uri"), fetchErr: errors.New("connection reset by peer")}
	client, _, _ := newTestClient(t, backend, Options{})

	_, err := client.Generate(context.Background(), textRequest("x"))
	if !errors.Is(err, ErrArtifactFetchFailed) {
		t.Fatalf("expected ErrArtifactFetchFailed, got %v", err)
	}
	if ge, _ := AsError(err); ge.Reason != ReasonTransient {
		t.Fatalf("reason = %q, want transient", ge.Reason)
	}
}

func TestGenerateEmptyFetchIsFailure(t *testing.T) {
	backend := &fakeBackend{submitOp: doneOp("op", "uri"), blob: &Blob{}}
	client, _, _ := newTestClient(t, backend, Options{})

	if _, err := client.Generate(context.Background(), textRequest("x")); !errors.Is(err, ErrArtifactFetchFailed) {
		t.Fatalf("expected ErrArtifactFetchFailed, got %v", err)
	}
}

func TestGenerateMaterializeFailure(t *testing.T) {
	backend := &fakeBackend{submitOp: doneOp("op", "uri")}
	client, _, _ := newTestClient(t, backend, Options{Materializer: &fakeMaterializer{err: errors.New("disk full")}})

	if _, err := client.Generate(context.Background(), textRequest("x")); !errors.Is(err, ErrArtifactFetchFailed) {
		t.Fatalf("expected ErrArtifactFetchFailed, got %v", err)
	}
}

func TestGenerateStopsAtMaxWait(t *testing.T) {
	backend := &fakeBackend{submitOp: &Operation{Name: "slow"}}
	client, _, _ := newTestClient(t, backend, Options{
		MaxWait: 20 * time.Millisecond,
		Wait: func(ctx context.Context, d time.Duration) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	_, err := client.Generate(context.Background(), textRequest("x"))
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if ge, _ := AsError(err); ge.Reason != ReasonDeadline {
		t.Fatalf("reason = %q, want deadline", ge.Reason)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected wrapped deadline")
	}
}

func TestGenerateHonoursCancellation(t *testing.T) {
	backend := &fakeBackend{submitOp: &Operation{Name: "slow"}}
	ctx, cancel := context.WithCancel(context.Background())
	client, _, _ := newTestClient(t, backend, Options{
		Wait: func(waitCtx context.Context, d time.Duration) error {
			cancel()
			<-waitCtx.Done()
			return waitCtx.Err()
		},
	})

	_, err := client.Generate(ctx, textRequest("x"))
	if ge, ok := AsError(err); !ok || ge.Reason != ReasonCanceled {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if backend.pollCalls != 0 {
		t.Fatalf("poll calls = %d after cancel", backend.pollCalls)
	}
}

type blockingBackend struct {
	fakeBackend
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func (b *blockingBackend) Submit(ctx context.Context, cred Credential, req Request) (*Operation, error) {
	n := b.active.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer b.active.Add(-1)
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return doneOp("op", "uri"), nil
}

func TestGenerateRespectsMaxConcurrent(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	client, _, _ := newTestClient(t, backend, Options{MaxConcurrent: 1})

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Generate(context.Background(), textRequest("x"))
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
	}
	if peak := backend.peak.Load(); peak != 1 {
		t.Fatalf("peak concurrency = %d, want 1", peak)
	}
}

func TestCheckCredential(t *testing.T) {
	backend := &fakeBackend{}
	mat := &fakeMaterializer{}

	held, _ := NewClient(Options{Backend: backend, Materializer: mat, Credential: NewCredential("k")})
	if !held.CheckCredential(context.Background()) {
		t.Fatal("held credential should be available")
	}

	noSource, _ := NewClient(Options{Backend: backend, Materializer: mat})
	if !noSource.CheckCredential(context.Background()) {
		t.Fatal("without a source the check is optimistic")
	}

	failing, _ := NewClient(Options{Backend: backend, Materializer: mat, Source: CredentialSourceFunc(func(ctx context.Context) (Credential, error) {
		return Credential{}, errors.New("db down")
	})})
	if !failing.CheckCredential(context.Background()) {
		t.Fatal("a failing source should not block generation")
	}

	found, _ := NewClient(Options{Backend: backend, Materializer: mat, Source: CredentialSourceFunc(func(ctx context.Context) (Credential, error) {
		return NewCredential("from-source"), nil
	})})
	if !found.CheckCredential(context.Background()) {
		t.Fatal("expected credential from source")
	}
	if found.credential().Key() != "from-source" {
		t.Fatalf("credential not stored")
	}
}

func TestRequestCredentialReplacesHeldCredential(t *testing.T) {
	backend := &fakeBackend{submitOp: doneOp("op", "uri")}
	calls := 0
	client, _, _ := newTestClient(t, backend, Options{
		Source: CredentialSourceFunc(func(ctx context.Context) (Credential, error) { return Credential{}, nil }),
		Requester: CredentialRequesterFunc(func(ctx context.Context) (Credential, error) {
			calls++
			if calls == 1 {
				return Credential{}, errors.New("user dismissed")
			}
			return NewCredential(" picked-key "), nil
		}),
	})

	client.RequestCredential(context.Background())
	if client.CheckCredential(context.Background()) {
		t.Fatal("failed request must not produce a credential")
	}
	client.RequestCredential(context.Background())
	if !client.CheckCredential(context.Background()) {
		t.Fatal("expected credential after request")
	}
	if _, err := client.Generate(context.Background(), textRequest("x")); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if backend.lastCred.Key() != "picked-key" {
		t.Fatalf("submitted with %q", backend.lastCred.Key())
	}
}

func TestRequestCredentialWithoutRequesterIsNoop(t *testing.T) {
	client, _, _ := newTestClient(t, &fakeBackend{}, Options{})
	client.RequestCredential(context.Background())
	if client.credential().Key() != "test-key" {
		t.Fatal("credential changed")
	}
}

func TestCredentialStringIsRedacted(t *testing.T) {
	if got := fmt.Sprint(NewCredential("super-secret")); got != "<redacted>" {
		t.Fatalf("String() = %q", got)
	}
	if got := fmt.Sprint(Credential{}); got != "<none>" {
		t.Fatalf("String() = %q", got)
	}
}
