// Package store defines the content store abstraction: a version-controlled
// file addressed by owner/repo/branch/path, read and written through a
// contents API with optimistic concurrency keyed by content hash.
package store

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned by Get when the file does not exist yet. It is not
// a failure on the write path: a commit against a missing file creates it.
var ErrNotFound = errors.New("file not found")

// FileRef addresses the stored catalog file.
type FileRef struct {
	Owner  string
	Repo   string
	Branch string
	Path   string
}

// FileInfo is the current state of a stored file: its raw bytes and the
// opaque content hash used as the optimistic-concurrency token.
type FileInfo struct {
	Content []byte
	SHA     string
}

// PutFile is one conditional write. An empty SHA means "create": the store
// must reject the write if the file already exists. A non-empty SHA makes the
// update conditional: the store must reject the write if the file's current
// hash no longer matches.
type PutFile struct {
	Message string
	Content []byte
	SHA     string
}

// PutResult reports an accepted write.
type PutResult struct {
	// CommitID identifies the accepted commit. May be empty if the store's
	// response did not carry one.
	CommitID string
	// NewSHA is the content hash of the file after the write.
	NewSHA string
}

// ContentStore is the read/write boundary to the version-controlled store.
//
// Get returns ErrNotFound for a missing file and *UpstreamError for any other
// failure. Put returns *UpstreamError for rejected writes, including
// hash-mismatch conflicts (status 409).
type ContentStore interface {
	Get(ctx context.Context, ref FileRef) (*FileInfo, error)
	Put(ctx context.Context, ref FileRef, file PutFile) (*PutResult, error)
}

// UpstreamError carries a store failure together with the upstream status
// code and response body, so the service boundary can propagate both.
type UpstreamError struct {
	Op         string // "get" or "put"
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("store %s: upstream status %d: %s", e.Op, e.StatusCode, e.Detail)
}

// IsConflict reports whether the error is a rejected conditional write, i.e.
// the caller's hash went stale between its read and this write.
func IsConflict(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Op == "put" && ue.StatusCode == 409
}
