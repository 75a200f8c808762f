package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vitrina-store/api/internal/domain/commit"
	"github.com/vitrina-store/api/internal/domain/editor"
	"github.com/vitrina-store/api/internal/domain/reader"
	"github.com/vitrina-store/api/internal/store"
)

// --- Mock implementations ---

type fakeStore struct {
	getCalls int
	putCalls int

	file   *store.FileInfo
	getErr error
	putErr error
	result store.PutResult

	lastPut store.PutFile
}

func (f *fakeStore) Get(context.Context, store.FileRef) (*store.FileInfo, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.file, nil
}

func (f *fakeStore) Put(_ context.Context, _ store.FileRef, file store.PutFile) (*store.PutResult, error) {
	f.putCalls++
	f.lastPut = file
	if f.putErr != nil {
		return nil, f.putErr
	}
	res := f.result
	return &res, nil
}

const testAdminToken = "secret-admin-token"

type handlerOpts struct {
	cfg       commit.Config
	adminOn   bool
	handlerCf Config
}

func completeCommitConfig() commit.Config {
	return commit.Config{
		Owner:         "vitrina",
		Repo:          "catalogo",
		Branch:        "main",
		Path:          "perfumes.json",
		HasCredential: true,
	}
}

func newTestHandler(t *testing.T, fs *fakeStore, opts handlerOpts) http.Handler {
	t.Helper()
	lg := zaptest.NewLogger(t)

	if opts.cfg == (commit.Config{}) {
		opts.cfg = completeCommitConfig()
	}

	commits := commit.NewService(opts.cfg, fs)
	fetch := reader.NewFetcher(reader.Config{}, nil, lg)

	cfg := opts.handlerCf
	var session *editor.Session
	if opts.adminOn {
		cfg.AdminToken = testAdminToken
		session = editor.NewSession(commits, fetch, nil, lg)
	}

	return New(cfg, commits, fetch, session, fs, lg).Routes()
}

func doJSON(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]any
	if len(w.Body.Bytes()) > 0 && json.Valid(w.Body.Bytes()) {
		_ = json.Unmarshal(w.Body.Bytes(), &body)
	}
	return w, body
}

func adminReq(method, target string, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	r.Header.Set("X-Admin-Token", testAdminToken)
	return r
}

func TestCommit_Success(t *testing.T) {
	fs := &fakeStore{
		getErr: store.ErrNotFound,
		result: store.PutResult{CommitID: "abc123"},
	}
	h := newTestHandler(t, fs, handlerOpts{})

	req := httptest.NewRequest(http.MethodPost, "/api/commit",
		strings.NewReader(`{"message":"Update perfumes.json","items":[{"nombre":"Rosa","precio":"50000"}]}`))
	w, body := doJSON(t, h, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "abc123", body["commit"])
	assert.Equal(t, "perfumes.json", body["path"])
	assert.Equal(t, "main", body["branch"])
	assert.Equal(t, "vitrina", body["owner"])
	assert.Equal(t, "catalogo", body["repo"])
	_, hasLogs := body["logs"]
	assert.False(t, hasLogs, "logs only appear when debug is requested")
}

func TestCommit_NullCommitID(t *testing.T) {
	fs := &fakeStore{getErr: store.ErrNotFound}
	h := newTestHandler(t, fs, handlerOpts{})

	req := httptest.NewRequest(http.MethodPost, "/api/commit", strings.NewReader(`{"items":[]}`))
	w, body := doJSON(t, h, req)

	require.Equal(t, http.StatusOK, w.Code)
	commitVal, present := body["commit"]
	assert.True(t, present)
	assert.Nil(t, commitVal)
}

func TestCommit_DebugQueryEchoesLogs(t *testing.T) {
	fs := &fakeStore{getErr: store.ErrNotFound, result: store.PutResult{CommitID: "c"}}
	h := newTestHandler(t, fs, handlerOpts{})

	req := httptest.NewRequest(http.MethodPost, "/api/commit?debug=1", strings.NewReader(`{"items":[]}`))
	w, body := doJSON(t, h, req)

	require.Equal(t, http.StatusOK, w.Code)
	logs, ok := body["logs"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, logs)
}

func TestCommit_DebugBodyFlag(t *testing.T) {
	fs := &fakeStore{getErr: store.ErrNotFound, result: store.PutResult{CommitID: "c"}}
	h := newTestHandler(t, fs, handlerOpts{})

	req := httptest.NewRequest(http.MethodPost, "/api/commit", strings.NewReader(`{"items":[],"debug":true}`))
	w, body := doJSON(t, h, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "logs")
}

func TestCommit_NonStringMessageFallsBackToDefault(t *testing.T) {
	fs := &fakeStore{getErr: store.ErrNotFound, result: store.PutResult{CommitID: "c"}}
	h := newTestHandler(t, fs, handlerOpts{})

	req := httptest.NewRequest(http.MethodPost, "/api/commit",
		strings.NewReader(`{"message":null,"items":[{"nombre":"Rosa"}]}`))
	w, body := doJSON(t, h, req)

	require.Equal(t, http.StatusOK, w.Code, "valid items must survive a bad message field")
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, commit.DefaultMessage, fs.lastPut.Message)
}

func TestCommit_NonArrayItems(t *testing.T) {
	fs := &fakeStore{}
	h := newTestHandler(t, fs, handlerOpts{})

	for _, payload := range []string{`{"items":{"a":1}}`, `{"items":"x"}`, `{"message":"m"}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/commit", strings.NewReader(payload))
		w, body := doJSON(t, h, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "payload %s", payload)
		assert.Equal(t, "items must be an array", body["error"])
	}
	assert.Zero(t, fs.getCalls)
	assert.Zero(t, fs.putCalls)
}

func TestCommit_MissingConfig(t *testing.T) {
	fs := &fakeStore{}
	cfg := completeCommitConfig()
	cfg.HasCredential = false
	h := newTestHandler(t, fs, handlerOpts{cfg: cfg})

	req := httptest.NewRequest(http.MethodPost, "/api/commit", strings.NewReader(`{"items":[]}`))
	w, body := doJSON(t, h, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "missing environment configuration", body["error"])

	env, ok := body["env"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "vitrina", env["owner"])
	assert.Equal(t, "catalogo", env["repo"])
	assert.Equal(t, "main", env["branch"])
	assert.Equal(t, "perfumes.json", env["path"])
	assert.Equal(t, false, env["hasToken"])
	assert.Zero(t, fs.getCalls, "no store call on missing config")
}

func TestCommit_UpstreamGetErrorPropagated(t *testing.T) {
	fs := &fakeStore{getErr: &store.UpstreamError{Op: "get", StatusCode: 502, Detail: `{"message":"bad gateway"}`}}
	h := newTestHandler(t, fs, handlerOpts{})

	req := httptest.NewRequest(http.MethodPost, "/api/commit", strings.NewReader(`{"items":[]}`))
	w, body := doJSON(t, h, req)

	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "GET file error", body["error"])
	detail, ok := body["detail"].(map[string]any)
	require.True(t, ok, "JSON detail embedded as-is")
	assert.Equal(t, "bad gateway", detail["message"])
}

func TestCommit_StaleSHAConflictPropagated(t *testing.T) {
	fs := &fakeStore{
		file:   &store.FileInfo{SHA: "stale"},
		putErr: &store.UpstreamError{Op: "put", StatusCode: 409, Detail: "sha mismatch"},
	}
	h := newTestHandler(t, fs, handlerOpts{})

	req := httptest.NewRequest(http.MethodPost, "/api/commit", strings.NewReader(`{"items":[]}`))
	w, body := doJSON(t, h, req)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PUT file error", body["error"])
	assert.Equal(t, "sha mismatch", body["detail"])
}

func TestCommit_Preflight(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, handlerOpts{})

	w, _ := doJSON(t, h, httptest.NewRequest(http.MethodOptions, "/api/commit", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCommit_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, handlerOpts{})

	w, body := doJSON(t, h, httptest.NewRequest(http.MethodGet, "/api/commit", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "POST, OPTIONS", w.Header().Get("Allow"))
	assert.Equal(t, "Method not allowed", body["error"])
}

func TestCatalog_ServesRawBytes(t *testing.T) {
	doc := `[{"nombre":"Rosa"}]`
	fs := &fakeStore{file: &store.FileInfo{Content: []byte(doc), SHA: "s"}}
	h := newTestHandler(t, fs, handlerOpts{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, doc, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestCatalog_NotFound(t *testing.T) {
	fs := &fakeStore{getErr: store.ErrNotFound}
	h := newTestHandler(t, fs, handlerOpts{})

	w, body := doJSON(t, h, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "GET file error", body["error"])
}

func TestCatalog_MissingConfig(t *testing.T) {
	cfg := completeCommitConfig()
	cfg.Owner = ""
	h := newTestHandler(t, &fakeStore{}, handlerOpts{cfg: cfg})

	w, body := doJSON(t, h, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "missing environment configuration", body["error"])
}

func TestProducts_ResolvedViews(t *testing.T) {
	lg := zaptest.NewLogger(t)
	fs := &fakeStore{}
	commits := commit.NewService(completeCommitConfig(), fs)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"nombre":"Rosa","precio":"50000","imagen":"rosa.webp"}]`))
	}))
	defer srv.Close()
	fetch := reader.NewFetcher(reader.Config{RawURL: srv.URL}, nil, lg)

	cfg := Config{ImageBaseDir: "perfumes.webp/", WhatsAppPhone: "573001234567"}
	h := New(cfg, commits, fetch, nil, fs, lg).Routes()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var views []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "Rosa", views[0]["nombre"])
	assert.Equal(t, "perfumes.webp/rosa.webp", views[0]["imagen"])
	assert.Equal(t,
		"https://wa.me/573001234567?text=Hola%20quiero%20comprar%20Rosa",
		views[0]["whatsapp"])
}

func TestProducts_EmptyOnTotalOutage(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, handlerOpts{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestAdmin_RoutesAbsentWithoutToken(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, handlerOpts{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/catalog", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, handlerOpts{adminOn: true})

	tests := []struct {
		name  string
		setup func(*http.Request)
	}{
		{"no token", func(*http.Request) {}},
		{"wrong token", func(r *http.Request) { r.Header.Set("X-Admin-Token", "wrong") }},
		{"wrong bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/catalog", nil)
			tt.setup(req)
			w, body := doJSON(t, h, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "unauthorized", body["error"])
		})
	}
}

func TestAdmin_BearerTokenAccepted(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, handlerOpts{adminOn: true})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/catalog", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	w, _ := doJSON(t, h, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdmin_EditFlow(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, handlerOpts{adminOn: true})

	// Open the (empty) working copy.
	w, _ := doJSON(t, h, adminReq(http.MethodGet, "/api/admin/catalog", ""))
	require.Equal(t, http.StatusOK, w.Code)

	// Append a blank row.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, adminReq(http.MethodPost, "/api/admin/items", ""))
	require.Equal(t, http.StatusOK, w.Code)

	// Edit its fields.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, adminReq(http.MethodPatch, "/api/admin/items/0", `{"field":"nombre","value":"Rosa"}`))
	require.Equal(t, http.StatusOK, w.Code)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Rosa", items[0]["nombre"])

	// Delete it again.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, adminReq(http.MethodDelete, "/api/admin/items/0", ""))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	assert.Empty(t, items)
}

func TestAdmin_EditErrors(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, handlerOpts{adminOn: true})

	w, _ := doJSON(t, h, adminReq(http.MethodPatch, "/api/admin/items/5", `{"field":"nombre","value":"x"}`))
	assert.Equal(t, http.StatusNotFound, w.Code, "index out of range")

	w, _ = doJSON(t, h, adminReq(http.MethodPatch, "/api/admin/items/abc", `{"field":"nombre","value":"x"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code, "non-numeric index")

	w, _ = doJSON(t, h, adminReq(http.MethodDelete, "/api/admin/items/3", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_ImportRejectsNonArray(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, handlerOpts{adminOn: true})

	w, body := doJSON(t, h, adminReq(http.MethodPut, "/api/admin/catalog", `{"nombre":"x"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "items must be an array", body["error"])
}

func TestAdmin_ImportReplacesWorkingCopy(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, handlerOpts{adminOn: true})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, adminReq(http.MethodPut, "/api/admin/catalog", `[{"nombre":"Rosa"}]`))
	require.Equal(t, http.StatusOK, w.Code)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Rosa", items[0]["nombre"])
}

func TestAdmin_Save(t *testing.T) {
	fs := &fakeStore{getErr: store.ErrNotFound, result: store.PutResult{CommitID: "c1"}}
	h := newTestHandler(t, fs, handlerOpts{adminOn: true})

	_, _ = doJSON(t, h, adminReq(http.MethodPut, "/api/admin/catalog", `[{"nombre":"Rosa"}]`))

	w, body := doJSON(t, h, adminReq(http.MethodPost, "/api/admin/save", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
	assert.Contains(t, body, "items")
	assert.Equal(t, 1, fs.putCalls)
	assert.Equal(t, editor.SaveMessage, fs.lastPut.Message)
}

func TestAdmin_SaveCommitFailureMapped(t *testing.T) {
	fs := &fakeStore{
		file:   &store.FileInfo{SHA: "s"},
		putErr: &store.UpstreamError{Op: "put", StatusCode: 409, Detail: "sha mismatch"},
	}
	h := newTestHandler(t, fs, handlerOpts{adminOn: true})

	w, body := doJSON(t, h, adminReq(http.MethodPost, "/api/admin/save", ""))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PUT file error", body["error"])
}

func TestAdmin_Export(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, handlerOpts{adminOn: true})

	_, _ = doJSON(t, h, adminReq(http.MethodPut, "/api/admin/catalog", `[{"nombre":"Rosa"}]`))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, adminReq(http.MethodGet, "/api/admin/export", ""))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "perfumes.json")
	assert.Contains(t, w.Body.String(), `"nombre": "Rosa"`)
}
