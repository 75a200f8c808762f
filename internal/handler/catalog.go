package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/vitrina-store/api/internal/domain/catalog"
	"github.com/vitrina-store/api/internal/store"
)

// handleCatalog is the authenticated read proxy: it returns the catalog
// document's current bytes from the store, caching disabled. Readers use it
// as a fallback when the public raw endpoint is unavailable.
func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		h.methodNotAllowed(w, "GET, OPTIONS")
		return
	}

	cfg := h.commits.Config()
	if !cfg.Complete() {
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "missing environment configuration",
		})
		return
	}

	file, err := h.files.Get(r.Context(), cfg.Ref())
	if err != nil {
		status := http.StatusInternalServerError
		detail := any(err.Error())

		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
			detail = "file not found"
		}
		var ue *store.UpstreamError
		if errors.As(err, &ue) {
			status = ue.StatusCode
			detail = detailValue(ue.Detail)
		}
		h.writeJSON(w, status, map[string]any{"error": "GET file error", "detail": detail})
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Content)
}

// productView is one storefront card: the normalized item plus the resolved
// image source and the pre-filled WhatsApp link.
type productView struct {
	Name        string `json:"nombre"`
	Price       string `json:"precio"`
	Description string `json:"descripcion"`
	Image       string `json:"imagen"`
	WhatsApp    string `json:"whatsapp,omitempty"`
}

// handleProducts serves the storefront list through the reader's fallback
// chain. It never fails: worst case is an empty list.
func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		h.methodNotAllowed(w, "GET, OPTIONS")
		return
	}

	items := h.fetch.Fetch(r.Context())

	views := make([]productView, len(items))
	for i, it := range items {
		views[i] = productView{
			Name:        it.Name,
			Price:       it.Price,
			Description: it.Description,
			Image:       catalog.ResolveImage(it.Image, h.cfg.ImageBaseDir),
		}
		if h.cfg.WhatsAppPhone != "" {
			views[i].WhatsApp = catalog.WhatsAppLink(h.cfg.WhatsAppPhone, it.Name)
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusOK, views)
}
