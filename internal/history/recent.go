// Package history keeps the most recent generated artifacts in memory.
package history

import (
	"sync"

	"clipforge/internal/generation"
)

// DefaultSize is the number of entries kept when none is configured.
const DefaultSize = 15

// Recent is a bounded newest-first list of artifacts. It is safe for
// concurrent use.
type Recent struct {
	mu      sync.Mutex
	size    int
	entries []generation.Artifact
}

// NewRecent returns a list holding at most size entries.
func NewRecent(size int) *Recent {
	if size <= 0 {
		size = DefaultSize
	}
	return &Recent{size: size}
}

// Add prepends a and returns the artifacts evicted to stay within bounds, so
// the caller can release them.
func (r *Recent) Add(a generation.Artifact) []generation.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]generation.Artifact{a}, r.entries...)
	if len(r.entries) <= r.size {
		return nil
	}
	evicted := append([]generation.Artifact(nil), r.entries[r.size:]...)
	r.entries = r.entries[:r.size]
	return evicted
}

// List returns a snapshot, newest first.
func (r *Recent) List() []generation.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]generation.Artifact(nil), r.entries...)
}

// Remove drops the entry with the given reference and reports whether it
// was present.
func (r *Recent) Remove(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.LocalReference == ref {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the number of entries.
func (r *Recent) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
