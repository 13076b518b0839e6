package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"checkplotcore/pkg/domain"
)

// MemoryStore is an in-memory manifest used by tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.Mutex
	current domain.Manifest
}

// NewMemoryStore constructs a manifest store seeded with the given record
// identifiers.
func NewMemoryStore(recordIDs ...string) *MemoryStore {
	return &MemoryStore{current: domain.Manifest{
		RecordIDs: recordIDs,
		Reviewed:  make(map[string]json.RawMessage),
	}}
}

// Snapshot returns a deep copy of the current manifest.
func (s *MemoryStore) Snapshot() domain.Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// RecordReview inserts or overwrites the annotation for objectID.
func (s *MemoryStore) RecordReview(_ context.Context, objectID string, annotation json.RawMessage) error {
	if objectID == "" || len(annotation) == 0 {
		return fmt.Errorf("%w: could not parse changes to the checkplot filelist", domain.ErrInvalidInput)
	}
	if !json.Valid(annotation) {
		return fmt.Errorf("%w: review annotation is not valid JSON", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Reviewed[objectID] = annotation
	return nil
}
