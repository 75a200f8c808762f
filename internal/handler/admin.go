package handler

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/vitrina-store/api/internal/domain/commit"
	"github.com/vitrina-store/api/internal/domain/editor"
)

// requireAdmin guards the editing surface. The token is compared in constant
// time; the routes are not even mounted when no token is configured.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	expected := sha256.Sum256([]byte(h.cfg.AdminToken))
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		got := sha256.Sum256([]byte(token))
		if subtle.ConstantTimeCompare(expected[:], got[:]) != 1 {
			h.writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// handleAdminCatalog returns the working copy. The first call, or any call
// with ?reload=1, reinitializes it from the store's current state.
func (h *Handler) handleAdminCatalog(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("reload") == "1" || !h.sessionOpened.Load() {
		h.sessionOpened.Store(true)
		h.writeJSON(w, http.StatusOK, h.session.Open(r.Context()))
		return
	}
	h.writeJSON(w, http.StatusOK, h.session.Items())
}

// handleAdminImport replaces the working copy with the request body.
func (h *Handler) handleAdminImport(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Import(r.Body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "items must be an array"})
		return
	}
	h.sessionOpened.Store(true)
	h.writeJSON(w, http.StatusOK, h.session.Items())
}

// editBody is one field-level edit.
type editBody struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (h *Handler) handleAdminEdit(w http.ResponseWriter, r *http.Request) {
	index, ok := h.pathIndex(w, r)
	if !ok {
		return
	}

	var body editBody
	if err := decodeJSONBody(r, &body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}

	if err := h.session.SetField(index, body.Field, body.Value); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, editor.ErrIndexOutOfRange) {
			status = http.StatusNotFound
		}
		h.writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, h.session.Items())
}

func (h *Handler) handleAdminAppend(w http.ResponseWriter, _ *http.Request) {
	h.session.Append()
	h.writeJSON(w, http.StatusOK, h.session.Items())
}

func (h *Handler) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	index, ok := h.pathIndex(w, r)
	if !ok {
		return
	}
	if err := h.session.Delete(index); err != nil {
		h.writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, h.session.Items())
}

// handleAdminSave persists the working copy through the commit service and
// responds with the store-accepted catalog. A save racing another save is
// rejected with 409 so the operator retries instead of clobbering.
func (h *Handler) handleAdminSave(w http.ResponseWriter, r *http.Request) {
	wantDebug := r.URL.Query().Get("debug") == "1"
	rec := commit.NewRecorder(zctx.From(r.Context()))

	refreshed, err := h.session.Save(r.Context(), rec)
	if err != nil {
		if errors.Is(err, editor.ErrSaveInFlight) {
			h.writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
			return
		}
		h.writeCommitError(w, err, rec, wantDebug)
		return
	}

	resp := map[string]any{"ok": true, "items": refreshed}
	if wantDebug {
		resp["logs"] = rec.Lines()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleAdminExport downloads the working copy as a JSON document.
func (h *Handler) handleAdminExport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="perfumes.json"`)
	if err := h.session.Export(w); err != nil {
		h.lg.Warn("export write failed", zap.Error(err))
	}
}

func (h *Handler) pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid item index"})
		return 0, false
	}
	return index, true
}
