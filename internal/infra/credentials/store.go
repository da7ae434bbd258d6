package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"clipforge/internal/infra"
	"clipforge/internal/sqlinline"
)

// ProviderGemini is the integration_tokens row holding the Veo API key.
const ProviderGemini = "gemini"

// Store keeps provider API keys in the integration_tokens table. One row per
// provider; writes replace the previous key.
type Store struct {
	sql infra.SQLExecutor
	now func() time.Time
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql, now: time.Now}
}

// tokenProperties is stored as jsonb next to the key.
type tokenProperties struct {
	Source string    `json:"source"`
	SetAt  time.Time `json:"set_at"`
}

// EnsureSchema creates the integration_tokens table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QCreateIntegrationTokens); err != nil {
		return fmt.Errorf("credentials: ensure schema: %w", err)
	}
	return nil
}

// Key returns the key stored for provider, or "" when there is none.
func (s *Store) Key(ctx context.Context, provider string) (string, error) {
	var token string
	err := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider).Scan(&token)
	switch {
	case infra.IsNoRows(err):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("credentials: read %s key: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// SetKey stores key for provider.
func (s *Store) SetKey(ctx context.Context, provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("credentials: api key is required")
	}
	props, err := json.Marshal(tokenProperties{Source: "clipforge", SetAt: s.now().UTC()})
	if err != nil {
		return err
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, key, props); err != nil {
		return fmt.Errorf("credentials: store %s key: %w", provider, err)
	}
	return nil
}

// DeleteKey removes the key for provider and reports whether one existed.
func (s *Store) DeleteKey(ctx context.Context, provider string) (bool, error) {
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, provider)
	if err != nil {
		return false, fmt.Errorf("credentials: delete %s key: %w", provider, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Key(ctx, ProviderGemini)
}

func (s *Store) SetGeminiAPIKey(ctx context.Context, key string) error {
	return s.SetKey(ctx, ProviderGemini, key)
}

func (s *Store) DeleteGeminiAPIKey(ctx context.Context) (bool, error) {
	return s.DeleteKey(ctx, ProviderGemini)
}
