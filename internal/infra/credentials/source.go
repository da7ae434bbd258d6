package credentials

import (
	"context"
	"errors"
	"os"

	"clipforge/internal/generation"
)

// EnvSource reads the key from an environment variable on every lookup.
type EnvSource struct {
	Var string
}

func (s EnvSource) Credential(ctx context.Context) (generation.Credential, error) {
	name := s.Var
	if name == "" {
		name = "GEMINI_API_KEY"
	}
	return generation.NewCredential(os.Getenv(name)), nil
}

// StoreSource resolves the Gemini key from the database. Reloading from the
// store is also how the HTTP service answers a credential request.
type StoreSource struct {
	Store *Store
}

func (s StoreSource) Credential(ctx context.Context) (generation.Credential, error) {
	if s.Store == nil {
		return generation.Credential{}, errors.New("credentials: no store configured")
	}
	key, err := s.Store.GeminiAPIKey(ctx)
	if err != nil {
		return generation.Credential{}, err
	}
	return generation.NewCredential(key), nil
}

func (s StoreSource) RequestCredential(ctx context.Context) (generation.Credential, error) {
	return s.Credential(ctx)
}

// ChainSource returns the first non-empty credential. Errors from earlier
// sources are remembered and only reported when no source produced a key.
type ChainSource []generation.CredentialSource

func (c ChainSource) Credential(ctx context.Context) (generation.Credential, error) {
	var errs []error
	for _, src := range c {
		if src == nil {
			continue
		}
		cred, err := src.Credential(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !cred.Empty() {
			return cred, nil
		}
	}
	return generation.Credential{}, errors.Join(errs...)
}

var (
	_ generation.CredentialSource    = EnvSource{}
	_ generation.CredentialSource    = StoreSource{}
	_ generation.CredentialRequester = StoreSource{}
	_ generation.CredentialSource    = ChainSource{}
)
