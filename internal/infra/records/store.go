package records

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"checkplotcore/internal/infra/manifest"
	"checkplotcore/pkg/domain"
)

// Store loads and saves checkplot records under the manifest root. An
// identifier not present in the manifest is treated as nonexistent
// regardless of filesystem contents.
type Store struct {
	root     string
	manifest manifest.Store
	codec    domain.RecordCodec

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore constructs a record store rooted at root. When codec is nil the
// gzip+JSON default is used.
func NewStore(root string, m manifest.Store, codec domain.RecordCodec) *Store {
	if codec == nil {
		codec = GzipJSONCodec{}
	}
	return &Store{
		root:     root,
		manifest: m,
		codec:    codec,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Path resolves a record identifier to its absolute storage path.
func (s *Store) Path(id string) string {
	return filepath.Join(s.root, id)
}

// Load reads the record for id. The identifier must be a manifest member
// (domain.ErrUnknownIdentifier otherwise); a registered identifier whose
// file is absent reports domain.NotFoundError so callers can react
// differently.
func (s *Store) Load(ctx context.Context, id string) (domain.Record, error) {
	path, err := s.resolve(id)
	if err != nil {
		return domain.Record{}, err
	}
	return s.codec.Decode(ctx, path)
}

// Save performs a read-modify-write: it loads the current on-disk record,
// overlays only the patch's editable fields, and writes the merged record
// back through a temp file renamed into place. The per-identifier lock is
// held across the whole read-modify-write to prevent lost updates between
// concurrent saves of the same record.
func (s *Store) Save(ctx context.Context, id string, patch domain.RecordPatch) (domain.Record, error) {
	path, err := s.resolve(id)
	if err != nil {
		return domain.Record{}, err
	}
	if patch.Bundle != nil {
		if !patch.Method.IsValid() {
			return domain.Record{}, fmt.Errorf("%w: unknown method %q", domain.ErrInvalidInput, patch.Method)
		}
		if err := patch.Bundle.Validate(); err != nil {
			return domain.Record{}, err
		}
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.codec.Decode(ctx, path)
	if err != nil {
		return domain.Record{}, err
	}
	merged := merge(current, patch)

	data, err := s.codec.Encode(ctx, merged)
	if err != nil {
		// Nothing has been written; the original file is untouched.
		return domain.Record{}, err
	}
	if err := writeAtomic(path, data); err != nil {
		return domain.Record{}, fmt.Errorf("%w: write record %s: %w", domain.ErrBackendFailure, path, err)
	}
	return merged, nil
}

// Resolve checks an identifier without reading the record: it must be
// non-empty, a manifest member, and present on storage. The resolved absolute
// path is returned. Dispatchers call this before spending a worker slot.
func (s *Store) Resolve(id string) (string, error) {
	return s.resolve(id)
}

func (s *Store) resolve(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: no checkplot provided", domain.ErrInvalidInput)
	}
	if !s.manifest.Snapshot().Contains(id) {
		return "", domain.ErrUnknownIdentifier
	}
	path := s.Path(id)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", domain.NotFoundError{Path: path}
	}
	return path, nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// merge overlays the caller-editable fields onto the stored record. The
// three editable bags replace wholesale when supplied; nil means "leave
// unchanged". A validated bundle replaces the slot for its method.
func merge(current domain.Record, patch domain.RecordPatch) domain.Record {
	merged := current.Clone()
	if patch.ObjectInfo != nil {
		merged.ObjectInfo = patch.ObjectInfo
	}
	if patch.VarInfo != nil {
		merged.VarInfo = patch.VarInfo
	}
	if patch.Comments != nil {
		merged.Comments = patch.Comments
	}
	if patch.Bundle != nil {
		if merged.Periodograms == nil {
			merged.Periodograms = make(map[domain.Method]domain.PeriodogramBundle, 1)
		}
		merged.Periodograms[patch.Method] = *patch.Bundle
	}
	return merged
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".record-*")
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
	return os.Rename(tmp.Name(), path)
}
