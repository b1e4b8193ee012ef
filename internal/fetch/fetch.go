// Package fetch retrieves the file tree and file contents for a repository
// at a specific commit, resolving the commit hash before enumerating the
// tree so a concurrent push cannot desynchronize the two.
package fetch

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/semaphore"

	"github.com/nocturnelabs/coderag/internal/apperr"
	"github.com/nocturnelabs/coderag/internal/ghclient"
)

// File is a single fetched source file.
type File struct {
	Path string
	SHA  string
	Size int64
	// Content is nil if the individual fetch for this file failed; failed
	// files are dropped from Repository.Files rather than aborting the run.
	Content []byte
}

// Repository is the resolved identity plus contents of a fetched repo.
type Repository struct {
	Owner         string
	Name          string
	DefaultBranch string
	CommitHash    string
	Files         []File
}

// RepoID returns the canonical "owner/name" identity string.
func (r *Repository) RepoID() string {
	return r.Owner + "/" + r.Name
}

// Options configures a single Fetch call.
type Options struct {
	// MaxConcurrentBlobFetches bounds in-flight per-file content downloads.
	// Defaults to 8 per the concurrency model.
	MaxConcurrentBlobFetches int64
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrentBlobFetches <= 0 {
		o.MaxConcurrentBlobFetches = 8
	}
	return o
}

// Fetcher retrieves repository trees and contents from a git hosting API.
type Fetcher struct {
	client *ghclient.Client
}

// New creates a Fetcher backed by the given GitHub REST client.
func New(client *ghclient.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch resolves owner/name to a default branch and commit hash, then
// enumerates and downloads every blob in the tree at that commit.
// Individual file download failures are logged and dropped; only failures
// resolving the repository identity itself (branch/commit/tree) abort the
// run.
func (f *Fetcher) Fetch(ctx context.Context, owner, name string, opts Options) (*Repository, error) {
	opts = opts.withDefaults()

	meta, err := f.client.GetRepo(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("resolve default branch for %s/%s: %w", owner, name, err)
	}

	commitSHA, err := f.client.GetCommitSHA(ctx, owner, name, meta.DefaultBranch)
	if err != nil {
		return nil, fmt.Errorf("resolve commit hash for %s/%s@%s: %w", owner, name, meta.DefaultBranch, err)
	}

	entries, err := f.client.GetTree(ctx, owner, name, commitSHA)
	if err != nil {
		return nil, fmt.Errorf("enumerate tree for %s/%s@%s: %w", owner, name, commitSHA, err)
	}

	repo := &Repository{
		Owner:         owner,
		Name:          name,
		DefaultBranch: meta.DefaultBranch,
		CommitHash:    commitSHA,
	}

	files, err := f.fetchBlobs(ctx, owner, name, entries, opts)
	if err != nil {
		return nil, err
	}
	repo.Files = files
	return repo, nil
}

func (f *Fetcher) fetchBlobs(ctx context.Context, owner, name string, entries []ghclient.TreeEntry, opts Options) ([]File, error) {
	sem := semaphore.NewWeighted(opts.MaxConcurrentBlobFetches)
	results := make([]File, len(entries))
	errCh := make(chan error, 1)
	done := make(chan struct{})

	remaining := len(entries)
	if remaining == 0 {
		return nil, nil
	}

	completions := make(chan int, remaining)
	for i, entry := range entries {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, apperr.Wrap(apperr.Cancelled, "fetch cancelled", err)
		}
		go func(idx int, e ghclient.TreeEntry) {
			defer sem.Release(1)
			content, err := f.client.GetBlob(ctx, owner, name, e.SHA)
			if err != nil {
				log.Printf("fetch: dropping %s: %v", e.Path, err)
				results[idx] = File{Path: e.Path, SHA: e.SHA, Size: e.Size}
			} else {
				results[idx] = File{Path: e.Path, SHA: e.SHA, Size: e.Size, Content: content}
			}
			completions <- idx
		}(i, entry)
	}

	go func() {
		for i := 0; i < remaining; i++ {
			<-completions
		}
		close(done)
	}()

	select {
	case <-done:
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.Cancelled, "fetch cancelled", ctx.Err())
	}

	out := make([]File, 0, len(results))
	for _, r := range results {
		if r.Content != nil {
			out = append(out, r)
		}
	}
	return out, nil
}
