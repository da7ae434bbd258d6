package storage

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"clipforge/internal/generation"
)

const memoryPrefix = "blob:"

// MemoryStore keeps artifacts in process memory under "blob:<uuid>" refs.
// Nothing is reclaimed until Release is called.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]generation.Blob
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: map[string]generation.Blob{}}
}

// Materialize copies blob into memory and returns a fresh reference.
func (s *MemoryStore) Materialize(ctx context.Context, blob generation.Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(blob.Data) == 0 {
		return "", errors.New("storage: empty artifact")
	}
	data := make([]byte, len(blob.Data))
	copy(data, blob.Data)
	ref := memoryPrefix + uuid.NewString()

	s.mu.Lock()
	s.blobs[ref] = generation.Blob{Data: data, MIMEType: blob.MIMEType}
	s.mu.Unlock()
	return ref, nil
}

// Open returns the bytes behind ref.
func (s *MemoryStore) Open(ctx context.Context, ref string) (*generation.Blob, error) {
	s.mu.RLock()
	blob, ok := s.blobs[strings.TrimSpace(ref)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &blob, nil
}

// Release revokes ref. Later Open calls fail with ErrNotFound.
func (s *MemoryStore) Release(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, ref)
	return nil
}

// Len reports how many artifacts are held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
