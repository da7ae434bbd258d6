// Package storage materializes generated artifacts into locally addressable
// references and serves them back until they are released.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/generation"
	"clipforge/internal/infra"
)

// ErrNotFound is returned by Open and Release for unknown or released refs.
var ErrNotFound = errors.New("storage: artifact not found")

// Store is a generation.Materializer whose references can be read back and
// revoked by the caller that owns them.
type Store interface {
	generation.Materializer
	Open(ctx context.Context, ref string) (*generation.Blob, error)
	Release(ctx context.Context, ref string) error
}

// New selects a Store from configuration.
func New(cfg *infra.Config) (Store, error) {
	switch cfg.StorageDriver {
	case "", infra.StorageMemory:
		return NewMemoryStore(), nil
	case infra.StorageFilesystem:
		return NewFileStore(cfg.StoragePath)
	case infra.StorageSupabase:
		return NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", cfg.StorageDriver)
	}
}

var videoExtensions = map[string]string{
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
}

func extensionFor(mimeType string) string {
	if ext, ok := videoExtensions[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return ext
	}
	return ".mp4"
}

func mimeForKey(key string) string {
	lower := strings.ToLower(key)
	for mt, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return mt
		}
	}
	return "application/octet-stream"
}

// objectKey lays artifacts out as generated/videos/<yyyy>/<mm>/<uuid><ext>.
func objectKey(now time.Time, mimeType string) string {
	now = now.UTC()
	return fmt.Sprintf("generated/videos/%04d/%02d/%s%s", now.Year(), int(now.Month()), uuid.NewString(), extensionFor(mimeType))
}
