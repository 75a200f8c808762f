package gitfs

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrina-store/api/internal/store"
)

func testRef() store.FileRef {
	return store.FileRef{Owner: "vitrina", Repo: "catalogo", Branch: "main", Path: "perfumes.json"}
}

func TestGet_MissingRepo(t *testing.T) {
	s := New(t.TempDir() + "/repo")

	_, err := s.Get(context.Background(), testRef())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPut_CreateThenGet(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	content := []byte(`[{"nombre":"Rosa"}]`)

	res, err := s.Put(ctx, testRef(), store.PutFile{Message: "initial", Content: content})
	require.NoError(t, err)
	assert.NotEmpty(t, res.CommitID)
	assert.Equal(t, plumbing.ComputeHash(plumbing.BlobObject, content).String(), res.NewSHA)

	info, err := s.Get(ctx, testRef())
	require.NoError(t, err)
	assert.Equal(t, content, info.Content)
	assert.Equal(t, res.NewSHA, info.SHA, "reported hash matches the blob hash at head")
}

func TestPut_CreateRejectedWhenFileExists(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	_, err := s.Put(ctx, testRef(), store.PutFile{Message: "initial", Content: []byte("[]")})
	require.NoError(t, err)

	_, err = s.Put(ctx, testRef(), store.PutFile{Message: "again", Content: []byte("[]")})
	var ue *store.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 422, ue.StatusCode, "unconditional update of an existing file")
}

func TestPut_UpdateWithCurrentSHA(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	first, err := s.Put(ctx, testRef(), store.PutFile{Message: "initial", Content: []byte("[]")})
	require.NoError(t, err)

	next := []byte(`[{"nombre":"Rosa"}]`)
	second, err := s.Put(ctx, testRef(), store.PutFile{Message: "update", Content: next, SHA: first.NewSHA})
	require.NoError(t, err)
	assert.NotEqual(t, first.CommitID, second.CommitID)

	info, err := s.Get(ctx, testRef())
	require.NoError(t, err)
	assert.Equal(t, next, info.Content)
	assert.Equal(t, second.NewSHA, info.SHA)
}

func TestPut_IdenticalContentUpdate(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	content := []byte(`[{"nombre":"Rosa"}]`)

	first, err := s.Put(ctx, testRef(), store.PutFile{Message: "initial", Content: content})
	require.NoError(t, err)

	// Saving without edits: same bytes, current hash.
	second, err := s.Put(ctx, testRef(), store.PutFile{Message: "save", Content: content, SHA: first.NewSHA})
	require.NoError(t, err)
	assert.NotEqual(t, first.CommitID, second.CommitID)
	assert.Equal(t, first.NewSHA, second.NewSHA, "unchanged content keeps its blob hash")

	info, err := s.Get(ctx, testRef())
	require.NoError(t, err)
	assert.Equal(t, content, info.Content)
	assert.Equal(t, second.NewSHA, info.SHA)
}

func TestPut_StaleSHAConflict(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	first, err := s.Put(ctx, testRef(), store.PutFile{Message: "initial", Content: []byte("[]")})
	require.NoError(t, err)
	_, err = s.Put(ctx, testRef(), store.PutFile{Message: "update", Content: []byte(`["a"]`), SHA: first.NewSHA})
	require.NoError(t, err)

	// first.NewSHA is now stale.
	_, err = s.Put(ctx, testRef(), store.PutFile{Message: "lost race", Content: []byte(`["b"]`), SHA: first.NewSHA})
	require.Error(t, err)
	assert.True(t, store.IsConflict(err))

	info, err := s.Get(ctx, testRef())
	require.NoError(t, err)
	assert.Equal(t, []byte(`["a"]`), info.Content, "rejected write must not change content")
}

func TestPut_SHAAgainstMissingFile(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.Put(context.Background(), testRef(), store.PutFile{Message: "m", Content: []byte("[]"), SHA: "deadbeef"})
	var ue *store.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 409, ue.StatusCode)
}

func TestGet_MissingFileOnExistingBranch(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	_, err := s.Put(ctx, testRef(), store.PutFile{Message: "initial", Content: []byte("[]")})
	require.NoError(t, err)

	ref := testRef()
	ref.Path = "missing.json"
	_, err = s.Get(ctx, ref)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGet_MissingBranch(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	_, err := s.Put(ctx, testRef(), store.PutFile{Message: "initial", Content: []byte("[]")})
	require.NoError(t, err)

	ref := testRef()
	ref.Branch = "develop"
	_, err = s.Get(ctx, ref)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
