package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"

	"github.com/vitrina-store/api/internal/domain/catalog"
	"github.com/vitrina-store/api/internal/domain/commit"
	"github.com/vitrina-store/api/internal/store"
)

// commitBody is the write endpoint's request body. Items stays nil when the
// field is missing or not an array; that distinction drives the 400 path.
type commitBody struct {
	Message string
	Items   catalog.Catalog
	Debug   bool
}

// handleCommit is the write endpoint: POST runs the commit protocol, OPTIONS
// answers preflight, everything else is 405.
func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		h.methodNotAllowed(w, "POST, OPTIONS")
		return
	}

	rec := commit.NewRecorder(zctx.From(r.Context()))

	body := decodeCommitBody(r, rec)
	wantDebug := body.Debug || r.URL.Query().Get("debug") == "1"

	result, err := h.commits.Commit(r.Context(), commit.Request{
		Message: body.Message,
		Items:   body.Items,
	}, rec)
	if err != nil {
		h.writeCommitError(w, err, rec, wantDebug)
		return
	}

	resp := map[string]any{
		"ok":     true,
		"commit": nil,
		"path":   result.Path,
		"branch": result.Branch,
		"owner":  result.Owner,
		"repo":   result.Repo,
	}
	if result.CommitID != "" {
		resp["commit"] = result.CommitID
	}
	if wantDebug {
		resp["logs"] = rec.Lines()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// decodeCommitBody parses {message?, items, debug?}. A malformed body or a
// non-array items field leaves Items nil; the service rejects that before
// any store call.
func decodeCommitBody(r *http.Request, rec *commit.Recorder) commitBody {
	var body commitBody

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		rec.Logf("read body: %v", err)
		return body
	}

	d := jx.DecodeBytes(raw)
	if d.Next() != jx.Object {
		rec.Logf("body is not a JSON object")
		return body
	}
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "message":
			if d.Next() != jx.String {
				// Non-string messages coerce to the default downstream.
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			body.Message = s
		case "items":
			itemBytes, err := d.Raw()
			if err != nil {
				return err
			}
			items, err := catalog.Decode(itemBytes)
			if err != nil {
				// Leave Items nil: not an array.
				return nil
			}
			body.Items = catalog.NormalizeAll(items)
		case "debug":
			b, err := d.Bool()
			if err != nil {
				return err
			}
			body.Debug = b
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		rec.Logf("parse body: %v", err)
		return commitBody{}
	}
	return body
}

// writeCommitError maps service failures to the structured response shapes,
// mirroring the upstream status where one is known.
func (h *Handler) writeCommitError(w http.ResponseWriter, err error, rec *commit.Recorder, wantDebug bool) {
	withLogs := func(body map[string]any) map[string]any {
		if wantDebug {
			body["logs"] = rec.Lines()
		}
		return body
	}

	switch {
	case errors.Is(err, commit.ErrNilItems):
		h.writeJSON(w, http.StatusBadRequest, withLogs(map[string]any{
			"error": "items must be an array",
		}))
		return
	case errors.Is(err, commit.ErrMissingConfig):
		cfg := h.commits.Config()
		h.writeJSON(w, http.StatusInternalServerError, withLogs(map[string]any{
			"error": "missing environment configuration",
			"env": map[string]any{
				"owner":    cfg.Owner,
				"repo":     cfg.Repo,
				"branch":   cfg.Branch,
				"path":     cfg.Path,
				"hasToken": cfg.HasCredential,
			},
		}))
		return
	}

	var ue *store.UpstreamError
	if errors.As(err, &ue) {
		label := "GET file error"
		if ue.Op == "put" {
			label = "PUT file error"
		}
		h.writeJSON(w, ue.StatusCode, withLogs(map[string]any{
			"error":  label,
			"detail": detailValue(ue.Detail),
		}))
		return
	}

	h.writeJSON(w, http.StatusInternalServerError, withLogs(map[string]any{
		"error":  "Unhandled error",
		"detail": err.Error(),
	}))
}
