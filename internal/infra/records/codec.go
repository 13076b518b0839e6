// Package records persists individual checkplot records under the manifest
// root and owns the merge-and-save path for caller-editable fields.
package records

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"checkplotcore/pkg/domain"
)

// GzipJSONCodec encodes records as gzip-compressed JSON. It is the default
// domain.RecordCodec; the manifest may still list the files under their
// pipeline extension (.pkl), the codec only cares about the bytes.
type GzipJSONCodec struct{}

// Decode reads and decompresses the record at path.
func (GzipJSONCodec) Decode(_ context.Context, path string) (domain.Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Record{}, domain.NotFoundError{Path: path}
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: open record: %w", domain.ErrBackendFailure, err)
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: decompress record %s: %w", domain.ErrBackendFailure, path, err)
	}
	defer func() { _ = zr.Close() }()

	data, err := io.ReadAll(zr)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: read record %s: %w", domain.ErrBackendFailure, path, err)
	}
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Record{}, fmt.Errorf("%w: decode record %s: %w", domain.ErrBackendFailure, path, err)
	}
	return rec, nil
}

// Encode serializes the record to its on-disk byte form.
func (GzipJSONCodec) Encode(_ context.Context, record domain.Record) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: encode record: %w", domain.ErrBackendFailure, err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("%w: compress record: %w", domain.ErrBackendFailure, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: compress record: %w", domain.ErrBackendFailure, err)
	}
	return buf.Bytes(), nil
}
