package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"checkplotcore/pkg/domain"
)

// FileStore caches the manifest in memory and rewrites the backing JSON file
// in full on every accepted mutation. Mutations serialize on the store's
// mutex; this is the single serialization point for manifest writes.
type FileStore struct {
	path string

	mu      sync.Mutex
	current domain.Manifest
}

// NewFileStore loads the manifest file at path. A manifest without a
// `reviewed` key (written by older pipelines) is normalized to an empty map.
func NewFileStore(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if m.Reviewed == nil {
		m.Reviewed = make(map[string]json.RawMessage)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	m.RootPath = abs
	return &FileStore{path: abs, current: m}, nil
}

// Root returns the directory containing the manifest file. Record
// identifiers resolve relative to it.
func (s *FileStore) Root() string { return filepath.Dir(s.path) }

// Snapshot returns a deep copy of the cached manifest.
func (s *FileStore) Snapshot() domain.Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// RecordReview inserts or overwrites the annotation for objectID, then
// rewrites the manifest file. The write goes through a temp file renamed
// into place so a failed encode leaves the previous manifest intact.
func (s *FileStore) RecordReview(_ context.Context, objectID string, annotation json.RawMessage) error {
	if objectID == "" || len(annotation) == 0 {
		return fmt.Errorf("%w: could not parse changes to the checkplot filelist", domain.ErrInvalidInput)
	}
	if !json.Valid(annotation) {
		return fmt.Errorf("%w: review annotation is not valid JSON", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, had := s.current.Reviewed[objectID]
	s.current.Reviewed[objectID] = annotation
	if err := s.persistLocked(); err != nil {
		if had {
			s.current.Reviewed[objectID] = previous
		} else {
			delete(s.current.Reviewed, objectID)
		}
		return err
	}
	return nil
}

func (s *FileStore) persistLocked() error {
	data, err := json.Marshal(s.current)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".manifest-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
