// Package commit implements the catalog write path: a read-modify-write
// against the version-controlled store, conditional on the content hash read
// immediately before the write.
package commit

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/vitrina-store/api/internal/domain/catalog"
	"github.com/vitrina-store/api/internal/store"
)

// DefaultMessage is used when the caller does not supply a commit message.
const DefaultMessage = "Update perfumes.json"

// Sentinel errors surfaced as structured responses at the HTTP boundary.
var (
	// ErrMissingConfig means a required setting (credential, owner, repo) is
	// absent. Fatal: the service must not attempt any store call.
	ErrMissingConfig = errors.New("missing environment configuration")
	// ErrNilItems means the request carried no item array.
	ErrNilItems = errors.New("items must be an array")
)

// Config identifies the stored file and whether the write credential is
// present. Branch and Path carry deployment defaults; Owner, Repo, and the
// credential are required.
type Config struct {
	Owner         string
	Repo          string
	Branch        string
	Path          string
	HasCredential bool
}

// Complete reports whether all required settings are present.
func (c Config) Complete() bool {
	return c.Owner != "" && c.Repo != "" && c.HasCredential
}

// Ref returns the file reference this configuration addresses.
func (c Config) Ref() store.FileRef {
	return store.FileRef{Owner: c.Owner, Repo: c.Repo, Branch: c.Branch, Path: c.Path}
}

// Request is one save: a commit message and the full replacement catalog.
// Items must be non-nil; an empty catalog is a valid write.
type Request struct {
	Message string
	Items   catalog.Catalog
}

// Result reports an accepted commit.
type Result struct {
	// CommitID is the store's identifier for the accepted write. Empty when
	// the store's response did not carry one.
	CommitID string
	Path     string
	Branch   string
	Owner    string
	Repo     string
}

// Service performs the commit protocol on behalf of untrusted callers. It is
// stateless across requests; concurrency safety relies entirely on the
// store's conditional writes.
type Service struct {
	cfg   Config
	store store.ContentStore
}

// NewService creates a commit Service over the given store.
func NewService(cfg Config, cs store.ContentStore) *Service {
	return &Service{cfg: cfg, store: cs}
}

// Config returns the service configuration, for boundary-level reporting.
func (s *Service) Config() Config {
	return s.cfg
}

// Commit runs the protocol: validate configuration and input, read the
// current hash, serialize and encode the catalog, then write conditionally.
// Step decisions are appended to rec in order. No retry is performed; a
// stale-hash rejection is surfaced for the caller to re-read and retry.
func (s *Service) Commit(ctx context.Context, req Request, rec *Recorder) (*Result, error) {
	if !s.cfg.Complete() {
		rec.Logf("missing required configuration: owner=%q repo=%q hasToken=%t",
			s.cfg.Owner, s.cfg.Repo, s.cfg.HasCredential)
		return nil, ErrMissingConfig
	}
	if req.Items == nil {
		rec.Logf("request items is not an array")
		return nil, ErrNilItems
	}
	rec.Logf("items received: %d", len(req.Items))

	ref := s.cfg.Ref()

	// Read the current hash right before the write. The hash is never reused
	// across writes.
	sha := ""
	switch current, err := s.store.Get(ctx, ref); {
	case errors.Is(err, store.ErrNotFound):
		rec.Logf("file does not exist yet; it will be created")
	case err != nil:
		rec.Logf("get failed: %v", err)
		return nil, errors.Wrap(err, "get current file")
	default:
		sha = current.SHA
		rec.Logf("current sha: %s", sha)
	}

	content := catalog.Encode(req.Items)
	rec.Logf("content bytes: %d", len(content))

	message := req.Message
	if message == "" {
		message = DefaultMessage
	}

	result, err := s.store.Put(ctx, ref, store.PutFile{
		Message: message,
		Content: content,
		SHA:     sha,
	})
	if err != nil {
		rec.Logf("put failed: %v", err)
		return nil, errors.Wrap(err, "put file")
	}
	rec.Logf("commit accepted: %s", result.CommitID)

	return &Result{
		CommitID: result.CommitID,
		Path:     s.cfg.Path,
		Branch:   s.cfg.Branch,
		Owner:    s.cfg.Owner,
		Repo:     s.cfg.Repo,
	}, nil
}
