// Package editor holds the admin working copy of the catalog and its save
// flow. The working copy lives only in memory; persistence goes through the
// commit service, and the displayed state after a save is re-read from the
// store rather than trusted from the working copy.
package editor

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/vitrina-store/api/internal/domain/catalog"
	"github.com/vitrina-store/api/internal/domain/commit"
)

// SaveMessage is the fixed human-readable commit message for admin saves.
const SaveMessage = "Update perfumes.json desde Admin"

var (
	// ErrSaveInFlight is returned when a save is requested while a previous
	// one is still running. The caller should wait and retry.
	ErrSaveInFlight = errors.New("a save is already in flight")
	// ErrIndexOutOfRange is returned for edits addressing a missing row.
	ErrIndexOutOfRange = errors.New("item index out of range")
	// ErrUnknownField is returned for edits addressing an unknown column.
	ErrUnknownField = errors.New("unknown item field")
)

// Committer is the slice of the commit service the editor needs.
type Committer interface {
	Commit(ctx context.Context, req commit.Request, rec *commit.Recorder) (*commit.Result, error)
}

// Fetcher re-reads the catalog from the store after a save.
type Fetcher interface {
	Fetch(ctx context.Context) catalog.Catalog
}

// Backup receives the working copy before each remote commit, so the
// operator's edits survive a failed commit.
type Backup interface {
	Save(ctx context.Context, data []byte) error
}

// Session is one admin editing session over a working copy of the catalog.
type Session struct {
	commits Committer
	fetcher Fetcher
	backup  Backup
	lg      *zap.Logger

	mu    sync.Mutex
	items catalog.Catalog

	// saving serializes Save calls: a second save while one is in flight is
	// rejected instead of racing. The store's conditional write remains the
	// final safety net.
	saving atomic.Bool
}

// NewSession creates a Session. backup may be nil.
func NewSession(commits Committer, fetcher Fetcher, backup Backup, lg *zap.Logger) *Session {
	return &Session{
		commits: commits,
		fetcher: fetcher,
		backup:  backup,
		lg:      lg,
		items:   catalog.Catalog{},
	}
}

// Open initializes the working copy from the reader's current view.
func (s *Session) Open(ctx context.Context) catalog.Catalog {
	items := s.fetcher.Fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	return s.snapshotLocked()
}

// Items returns a snapshot of the working copy.
func (s *Session) Items() catalog.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SetField edits one field of one item in place.
func (s *Session) SetField(index int, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.items) {
		return ErrIndexOutOfRange
	}
	switch field {
	case "nombre":
		s.items[index].Name = value
	case "precio":
		s.items[index].Price = value
	case "descripcion":
		s.items[index].Description = value
	case "imagen":
		s.items[index].Image = value
	default:
		return errors.Wrapf(ErrUnknownField, "%q", field)
	}
	return nil
}

// Append adds a blank item at the end of the working copy.
func (s *Session) Append() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, catalog.Item{})
}

// Delete removes the item at the given position, preserving order of the rest.
func (s *Session) Delete(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.items) {
		return ErrIndexOutOfRange
	}
	s.items = append(s.items[:index], s.items[index+1:]...)
	return nil
}

// Import replaces the working copy with an imported JSON document. Non-array
// input is rejected and the working copy is left untouched.
func (s *Session) Import(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "read import")
	}
	c, err := catalog.Decode(data)
	if err != nil {
		return err
	}
	c = catalog.NormalizeAll(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = c
	return nil
}

// Export writes the working copy as a pretty-printed JSON document.
func (s *Session) Export(w io.Writer) error {
	_, err := w.Write(catalog.Encode(s.Items()))
	return err
}

// Save persists the working copy: backup first (best effort, a failure is
// logged but never loses the remote write), then the commit service, then a
// fresh read from the store. The returned catalog is the store's accepted
// state, which may differ from the working copy if the store rejected or
// mutated the write.
func (s *Session) Save(ctx context.Context, rec *commit.Recorder) (catalog.Catalog, error) {
	if !s.saving.CompareAndSwap(false, true) {
		return nil, ErrSaveInFlight
	}
	defer s.saving.Store(false)

	items := s.Items()

	if s.backup != nil {
		if err := s.backup.Save(ctx, catalog.Encode(items)); err != nil {
			s.lg.Warn("backup save before commit failed", zap.Error(err))
		}
	}

	if _, err := s.commits.Commit(ctx, commit.Request{
		Message: SaveMessage,
		Items:   items,
	}, rec); err != nil {
		return nil, err
	}

	return s.fetcher.Fetch(ctx), nil
}

func (s *Session) snapshotLocked() catalog.Catalog {
	out := make(catalog.Catalog, len(s.items))
	copy(out, s.items)
	return out
}
