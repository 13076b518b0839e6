// Package manifest owns the project manifest: the ordered list of record
// identifiers plus per-object review annotations. The on-disk JSON file is
// the sole durable source of truth and is rewritten in full on every
// accepted mutation.
package manifest

import (
	"context"
	"encoding/json"

	"checkplotcore/pkg/domain"
)

// Store is the manifest access contract consumed by the service layer.
type Store interface {
	// Snapshot returns a deep copy of the current manifest.
	Snapshot() domain.Manifest
	// RecordReview inserts or overwrites the review annotation for objectID
	// and synchronously persists the whole manifest.
	RecordReview(ctx context.Context, objectID string, annotation json.RawMessage) error
}
