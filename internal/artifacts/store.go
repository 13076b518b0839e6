// Package artifacts stores rendered checkplot exports (PNG renders of merged
// records) outside the record files themselves. Backends follow the same
// driver layout as the audit log: local filesystem for the single-operator
// default, in-memory for tests, and S3/MinIO for shared deployments.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// Driver identifies a concrete artifact storage backend.
type Driver string

const (
	// DriverFilesystem is the local filesystem driver (default).
	DriverFilesystem Driver = "fs"
	// DriverS3 is the S3 / MinIO compatible driver.
	DriverS3 Driver = "s3"
	// DriverMemory is the in-memory test driver.
	DriverMemory Driver = "memory"
)

// Info describes a stored artifact.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
	// Location is the backend-specific address of the artifact: an absolute
	// file path for the fs driver, an object URL for s3. It is what the
	// update envelope reports as the rendered-artifact path.
	Location string `json:"location"`
}

// Store is the artifact storage contract. Unlike record files, artifacts are
// derived data: Put overwrites an existing key so a re-render replaces the
// previous export.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	// List returns artifacts whose key has the given prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// Open selects a Store implementation using environment variables.
//
//	CHECKPLOT_ARTIFACT_DRIVER: fs|s3|memory (default fs)
//	CHECKPLOT_ARTIFACT_FS_ROOT: directory root when driver=fs (default ./artifacts)
//	(S3 specific variables documented in s3.go)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("CHECKPLOT_ARTIFACT_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("CHECKPLOT_ARTIFACT_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown artifact driver %s", driver)
	}
}
