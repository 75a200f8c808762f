// Package handler exposes the HTTP surface: the public read path, the commit
// proxy, and the token-gated admin editing endpoints. All failures leave this
// package as structured JSON; nothing escapes as an unstructured response.
package handler

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vitrina-store/api/internal/domain/commit"
	"github.com/vitrina-store/api/internal/domain/editor"
	"github.com/vitrina-store/api/internal/domain/reader"
	"github.com/vitrina-store/api/internal/store"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseDir is prepended to bare image filenames in product responses.
	ImageBaseDir string
	// WhatsAppPhone is the number product deep links open a chat with.
	WhatsAppPhone string
	// AdminToken enables the admin editing surface when non-empty. The admin
	// capability does not exist without it; the storefront's click trigger is
	// obscurity, not access control, and is not reproduced here.
	AdminToken string
	// StaticDir, when non-empty, serves the storefront assets.
	StaticDir string
}

// Handler wires the domain services to their routes.
type Handler struct {
	cfg     Config
	commits *commit.Service
	fetch   *reader.Fetcher
	session *editor.Session
	files   store.ContentStore
	lg      *zap.Logger

	// sessionOpened tracks whether the admin working copy was initialized
	// from the store at least once.
	sessionOpened atomic.Bool
}

// New constructs a Handler. session may be nil when the admin capability is
// disabled.
func New(cfg Config, commits *commit.Service, fetch *reader.Fetcher, session *editor.Session, files store.ContentStore, lg *zap.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		commits: commits,
		fetch:   fetch,
		session: session,
		files:   files,
		lg:      lg,
	}
}

// Routes registers all endpoints on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/commit", h.handleCommit)
	mux.HandleFunc("/api/catalog", h.handleCatalog)
	mux.HandleFunc("/api/products", h.handleProducts)

	if h.cfg.AdminToken != "" && h.session != nil {
		admin := h.requireAdmin
		mux.HandleFunc("GET /api/admin/catalog", admin(h.handleAdminCatalog))
		mux.HandleFunc("PUT /api/admin/catalog", admin(h.handleAdminImport))
		mux.HandleFunc("PATCH /api/admin/items/{index}", admin(h.handleAdminEdit))
		mux.HandleFunc("POST /api/admin/items", admin(h.handleAdminAppend))
		mux.HandleFunc("DELETE /api/admin/items/{index}", admin(h.handleAdminDelete))
		mux.HandleFunc("POST /api/admin/save", admin(h.handleAdminSave))
		mux.HandleFunc("GET /api/admin/export", admin(h.handleAdminExport))
	}

	if h.cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(h.cfg.StaticDir)))
	}

	return mux
}

// writeJSON writes a JSON response with the given status.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Status is already written; nothing left to do but log.
		h.lg.Warn("write response", zap.Error(err))
	}
}

// decodeJSONBody decodes a small JSON request body into dst, rejecting
// unknown fields.
func decodeJSONBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// methodNotAllowed writes a 405 with the Allow header.
func (h *Handler) methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	h.writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
}

// detailValue preserves upstream response bodies: JSON bodies are embedded
// as-is, anything else is carried as a string.
func detailValue(detail string) any {
	if json.Valid([]byte(detail)) {
		return json.RawMessage(detail)
	}
	return detail
}
