package generation

import (
	"context"
	"strings"
)

// Credential is the API key used against the remote service. It formats as a
// redacted string so it can be passed to loggers by accident without leaking.
type Credential struct {
	key string
}

// NewCredential trims key and wraps it.
func NewCredential(key string) Credential {
	return Credential{key: strings.TrimSpace(key)}
}

// Key returns the raw secret. Only transports should call it.
func (c Credential) Key() string { return c.key }

// Empty reports whether no key is set.
func (c Credential) Empty() bool { return c.key == "" }

func (c Credential) String() string {
	if c.key == "" {
		return "<none>"
	}
	return "<redacted>"
}

// CredentialSource looks up a credential. An empty credential with a nil
// error means the source definitively has none.
type CredentialSource interface {
	Credential(ctx context.Context) (Credential, error)
}

// CredentialRequester runs an out-of-band flow (terminal prompt, database
// reload, picker) that may produce a credential.
type CredentialRequester interface {
	RequestCredential(ctx context.Context) (Credential, error)
}

// CredentialSourceFunc adapts a function to CredentialSource.
type CredentialSourceFunc func(ctx context.Context) (Credential, error)

func (f CredentialSourceFunc) Credential(ctx context.Context) (Credential, error) {
	return f(ctx)
}

// CredentialRequesterFunc adapts a function to CredentialRequester.
type CredentialRequesterFunc func(ctx context.Context) (Credential, error)

func (f CredentialRequesterFunc) RequestCredential(ctx context.Context) (Credential, error) {
	return f(ctx)
}
