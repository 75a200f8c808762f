// Package reader implements the catalog read path: the store's raw endpoint
// first, then the backup copy, then the static build copy, then an empty
// catalog. It never surfaces an error to its caller; a possibly-stale display
// beats an error page.
package reader

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vitrina-store/api/internal/domain/catalog"
)

// Backup is the local backup copy of the catalog document, written after
// every successful raw read.
type Backup interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
}

// Config holds the reader's sources. RawURL is required; Backup and
// StaticPath are optional fallback tiers and skipped when unset.
type Config struct {
	// RawURL is the store's public raw endpoint for the catalog file.
	RawURL string
	// StaticPath is the same-origin static copy shipped with the build.
	StaticPath string
}

// Fetcher fetches the current catalog with multi-tier fallback.
type Fetcher struct {
	cfg    Config
	http   *http.Client
	backup Backup
	lg     *zap.Logger

	// group collapses concurrent page-load fetches into one upstream call.
	group singleflight.Group
	now   func() time.Time
}

// NewFetcher creates a Fetcher. backup may be nil.
func NewFetcher(cfg Config, backup Backup, lg *zap.Logger) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		backup: backup,
		lg:     lg,
		now:    time.Now,
	}
}

// Fetch resolves the current catalog, trying each tier in strict order and
// returning the first success. It always returns a catalog, possibly empty.
func (f *Fetcher) Fetch(ctx context.Context) catalog.Catalog {
	v, _, _ := f.group.Do("catalog", func() (any, error) {
		// The flight serves every collapsed caller; it must not die with
		// whichever request happened to start it.
		return f.fetch(context.WithoutCancel(ctx)), nil
	})
	return v.(catalog.Catalog)
}

func (f *Fetcher) fetch(ctx context.Context) catalog.Catalog {
	if c, ok := f.fetchRaw(ctx); ok {
		return c
	}
	if c, ok := f.fetchBackup(ctx); ok {
		return c
	}
	if c, ok := f.fetchStatic(); ok {
		return c
	}
	f.lg.Warn("all catalog sources failed; returning empty catalog")
	return catalog.Catalog{}
}

// fetchRaw reads the store's raw endpoint, cache-busted with a timestamp so
// no intermediary serves a stale copy. On success the normalized document is
// persisted to the backup, best effort.
func (f *Fetcher) fetchRaw(ctx context.Context) (catalog.Catalog, bool) {
	if f.cfg.RawURL == "" {
		return nil, false
	}
	u := f.cfg.RawURL + "?ts=" + strconv.FormatInt(f.now().UnixMilli(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		f.lg.Warn("build raw request", zap.Error(err))
		return nil, false
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := f.http.Do(req)
	if err != nil {
		f.lg.Warn("raw fetch failed; falling back", zap.Error(err))
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.lg.Warn("raw fetch returned non-success; falling back", zap.Int("status", resp.StatusCode))
		return nil, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.lg.Warn("raw fetch read failed; falling back", zap.Error(err))
		return nil, false
	}

	c, err := catalog.Decode(body)
	if err != nil {
		f.lg.Warn("raw document parse failed; falling back", zap.Error(err))
		return nil, false
	}
	c = catalog.NormalizeAll(c)

	if f.backup != nil {
		if err := f.backup.Save(ctx, catalog.Encode(c)); err != nil {
			f.lg.Warn("backup save failed", zap.Error(err))
		}
	}
	return c, true
}

// fetchBackup returns the backup copy as stored. It was normalized on the
// way in, so it is not re-normalized here.
func (f *Fetcher) fetchBackup(ctx context.Context) (catalog.Catalog, bool) {
	if f.backup == nil {
		return nil, false
	}
	data, err := f.backup.Load(ctx)
	if err != nil {
		f.lg.Warn("backup load failed; falling back", zap.Error(err))
		return nil, false
	}
	c, err := catalog.Decode(data)
	if err != nil {
		f.lg.Warn("backup parse failed; falling back", zap.Error(err))
		return nil, false
	}
	return c, true
}

// fetchStatic reads the static copy shipped with the build. It may be
// outdated; it exists only to survive a full outage of the store.
func (f *Fetcher) fetchStatic() (catalog.Catalog, bool) {
	if f.cfg.StaticPath == "" {
		return nil, false
	}
	data, err := os.ReadFile(f.cfg.StaticPath)
	if err != nil {
		f.lg.Warn("static copy read failed", zap.Error(err))
		return nil, false
	}
	c, err := catalog.Decode(data)
	if err != nil {
		f.lg.Warn("static copy parse failed", zap.Error(err))
		return nil, false
	}
	return c, true
}
