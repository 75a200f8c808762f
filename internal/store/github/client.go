// Package github implements the content store against the GitHub contents
// API: base64-encoded file bodies, conditional writes keyed by blob sha.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vitrina-store/api/internal/store"
)

const (
	defaultAPIBase = "https://api.github.com"
	defaultRawBase = "https://raw.githubusercontent.com"
	userAgent      = "vitrina-commit"
)

var _ store.ContentStore = (*Client)(nil)

// Client talks to the GitHub contents API. It holds the write credential;
// untrusted callers go through the commit service, never through this client
// directly.
type Client struct {
	apiBase string
	token   string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithAPIBase overrides the API base URL. Used by tests and GHE deployments.
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = base }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a contents API client authenticated with the given token.
// Outbound calls are instrumented with otelhttp and bounded by a default
// timeout; callers may impose tighter bounds via context.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		apiBase: defaultAPIBase,
		token:   token,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RawURL returns the store's public raw endpoint for the file on its branch.
// The reader hits this unauthenticated path; the contents API is only needed
// for writes and for the authenticated read proxy.
func RawURL(ref store.FileRef) string {
	return defaultRawBase + "/" + ref.Owner + "/" + ref.Repo + "/" + ref.Branch + "/" + ref.Path
}

func (c *Client) contentsURL(ref store.FileRef) string {
	return c.apiBase + "/repos/" + ref.Owner + "/" + ref.Repo +
		"/contents/" + url.PathEscape(ref.Path)
}

// getResponse is the subset of the contents API file object we need.
type getResponse struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

// Get fetches the current file metadata and content at (owner, repo, path)
// on the given branch. A 404 maps to store.ErrNotFound.
func (c *Client) Get(ctx context.Context, ref store.FileRef) (*store.FileInfo, error) {
	u := c.contentsURL(ref) + "?ref=" + url.QueryEscape(ref.Branch)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build get request")
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "get file")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read get response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, store.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &store.UpstreamError{Op: "get", StatusCode: resp.StatusCode, Detail: string(body)}
	}

	var file getResponse
	if err := json.Unmarshal(body, &file); err != nil {
		return nil, errors.Wrap(err, "decode get response")
	}

	// The API returns base64 with embedded newlines.
	content, err := base64.StdEncoding.DecodeString(stripNewlines(file.Content))
	if err != nil {
		return nil, errors.Wrap(err, "decode file content")
	}

	return &store.FileInfo{Content: content, SHA: file.SHA}, nil
}

// putRequest is the contents API create/update payload. SHA is attached only
// for updates; its presence is what makes the write conditional.
type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// Put submits a create/update. The store rejects the write with 409 when the
// supplied sha no longer matches the file's current hash, and with 422 when
// no sha is supplied but the file already exists.
func (c *Client) Put(ctx context.Context, ref store.FileRef, file store.PutFile) (*store.PutResult, error) {
	payload, err := json.Marshal(putRequest{
		Message: file.Message,
		Content: base64.StdEncoding.EncodeToString(file.Content),
		Branch:  ref.Branch,
		SHA:     file.SHA,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode put request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.contentsURL(ref), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build put request")
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "put file")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read put response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &store.UpstreamError{Op: "put", StatusCode: resp.StatusCode, Detail: string(body)}
	}

	var result putResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, "decode put response")
	}

	return &store.PutResult{CommitID: result.Commit.SHA, NewSHA: result.Content.SHA}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
}

func stripNewlines(s string) string {
	buf := make([]byte, 0, len(s))
	for i := range len(s) {
		if s[i] == '\n' || s[i] == '\r' {
			continue
		}
		buf = append(buf, s[i])
	}
	return string(buf)
}
