// Package gitfs implements the content store against a plain local git
// repository. The content hash is the git blob hash of the stored file, so
// conditional-write semantics match the hosted contents API exactly. It
// serves local and single-host deployments, and gives the commit protocol a
// hermetic real-git test target.
package gitfs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-faster/errors"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/vitrina-store/api/internal/store"
)

const (
	authorName  = "vitrina"
	authorEmail = "vitrina@localhost"
)

var _ store.ContentStore = (*Store)(nil)

// Store is a content store rooted at one local repository. FileRef owner and
// repo are ignored; branch and path address content inside the repository.
type Store struct {
	dir string

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// New creates a Store over the repository at dir. The repository is
// initialized on first write; Get against a missing repository reports the
// file as not found.
func New(dir string) *Store {
	return &Store{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}
}

// Get returns the file's bytes and blob hash at the branch head.
func (s *Store) Get(_ context.Context, ref store.FileRef) (*store.FileInfo, error) {
	lock := s.refLock(ref)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "open repo")
	}

	file, err := fileAtHead(repo, ref.Branch, ref.Path)
	if err != nil {
		return nil, err
	}

	contents, err := file.Contents()
	if err != nil {
		return nil, errors.Wrap(err, "read file contents")
	}

	return &store.FileInfo{Content: []byte(contents), SHA: file.Hash.String()}, nil
}

// Put applies one conditional write: it verifies the caller's hash against
// the branch head, writes the file, and commits on the branch. Hash
// mismatches are rejected with the same status codes the hosted API uses
// (409 for a stale hash, 422 for an unconditional update of an existing
// file), so the service layer cannot tell the backends apart.
func (s *Store) Put(_ context.Context, ref store.FileRef, file store.PutFile) (*store.PutResult, error) {
	lock := s.refLock(ref)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit()
	if err != nil {
		return nil, err
	}

	if err := s.checkCondition(repo, ref, file.SHA); err != nil {
		return nil, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, errors.Wrap(err, "open worktree")
	}

	if err := checkoutBranch(repo, ref.Branch); err != nil {
		return nil, err
	}

	target := filepath.Join(s.dir, filepath.FromSlash(ref.Path))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, errors.Wrap(err, "create file dir")
	}
	if err := os.WriteFile(target, file.Content, 0o644); err != nil {
		return nil, errors.Wrap(err, "write file")
	}
	if _, err := worktree.Add(ref.Path); err != nil {
		return nil, errors.Wrap(err, "stage file")
	}

	hash, err := worktree.Commit(file.Message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
		// A save that changes nothing is still an accepted write, as on
		// the hosted API.
		AllowEmptyCommits: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "commit file")
	}

	if err := ensureBranchAt(repo, ref.Branch, hash); err != nil {
		return nil, err
	}

	return &store.PutResult{
		CommitID: hash.String(),
		NewSHA:   plumbing.ComputeHash(plumbing.BlobObject, file.Content).String(),
	}, nil
}

// checkCondition enforces the optimistic-concurrency contract before any
// mutation happens.
func (s *Store) checkCondition(repo *git.Repository, ref store.FileRef, sha string) error {
	file, err := fileAtHead(repo, ref.Branch, ref.Path)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if sha != "" {
			return &store.UpstreamError{Op: "put", StatusCode: 409, Detail: ref.Path + " does not exist"}
		}
		return nil
	case err != nil:
		return err
	}

	current := file.Hash.String()
	if sha == "" {
		return &store.UpstreamError{Op: "put", StatusCode: 422, Detail: "sha is required to update " + ref.Path}
	}
	if sha != current {
		return &store.UpstreamError{Op: "put", StatusCode: 409, Detail: ref.Path + " does not match " + sha}
	}
	return nil
}

func (s *Store) openOrInit() (*git.Repository, error) {
	repo, err := git.PlainOpen(s.dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, errors.Wrap(err, "open repo")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create repo dir")
	}
	repo, err = git.PlainInit(s.dir, false)
	if err != nil {
		return nil, errors.Wrap(err, "init repo")
	}
	return repo, nil
}

func (s *Store) refLock(ref store.FileRef) *sync.Mutex {
	key := ref.Branch + "\x00" + ref.Path

	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// fileAtHead loads the file from the head commit of the branch. A missing
// branch or missing file both map to store.ErrNotFound.
func fileAtHead(repo *git.Repository, branch, path string) (*object.File, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrapf(err, "resolve branch %s", branch)
	}

	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, errors.Wrap(err, "load head commit")
	}

	file, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrapf(err, "load %s from commit", path)
	}
	return file, nil
}

// checkoutBranch switches the worktree to the branch, creating it when this
// is the first commit on it. On a fresh repository there is no commit to
// check out yet; the branch ref is pinned after the first commit instead.
func checkoutBranch(repo *git.Repository, branch string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "open worktree")
	}

	branchRef := plumbing.NewBranchReferenceName(branch)
	if _, err := repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Fresh repo or new branch: the commit below lands on HEAD and
			// ensureBranchAt pins the branch ref afterwards.
			return nil
		}
		return errors.Wrapf(err, "resolve branch %s", branch)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return errors.Wrapf(err, "checkout branch %s", branch)
	}
	return nil
}

// ensureBranchAt pins the branch ref to the commit and points HEAD at the
// branch, so later reads resolve it.
func ensureBranchAt(repo *git.Repository, branch string, hash plumbing.Hash) error {
	branchRef := plumbing.NewBranchReferenceName(branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, hash)); err != nil {
		return errors.Wrapf(err, "set branch ref %s", branch)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return errors.Wrap(err, "set HEAD")
	}
	return nil
}
