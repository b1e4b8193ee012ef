// Package ghclient is a minimal GitHub REST API client used by the fetcher.
// No third-party GitHub SDK exists anywhere in the reference pack, so this
// talks to api.github.com directly over net/http; see DESIGN.md for the
// standard-library justification.
package ghclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nocturnelabs/coderag/internal/apperr"
)

const (
	apiBase        = "https://api.github.com"
	apiVersion     = "2022-11-28"
	acceptHeader   = "application/vnd.github+json"
	defaultTimeout = 30 * time.Second
)

// Client is a thin wrapper around net/http configured for the GitHub REST
// API's auth and versioning headers.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
}

// New creates a GitHub REST client. token may be empty for unauthenticated
// (public, low rate-limit) access.
func New(token string) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    apiBase,
	}
}

// RepoMeta is the subset of the repository resource this client needs.
type RepoMeta struct {
	DefaultBranch string `json:"default_branch"`
}

// TreeEntry is one entry of the git tree API response.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob" | "tree"
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

type treeResponse struct {
	SHA       string      `json:"sha"`
	Tree      []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

type commitResponse struct {
	SHA string `json:"sha"`
}

type blobResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GetRepo resolves the repository's default branch.
func (c *Client) GetRepo(ctx context.Context, owner, name string) (*RepoMeta, error) {
	var meta RepoMeta
	if err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", owner, name), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetCommitSHA resolves ref (a branch name) to its current commit hash.
func (c *Client) GetCommitSHA(ctx context.Context, owner, name, ref string) (string, error) {
	var resp commitResponse
	path := fmt.Sprintf("/repos/%s/%s/commits/%s", owner, name, ref)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return "", err
	}
	return resp.SHA, nil
}

// GetTree enumerates every file in the repository at commitSHA. Enumeration
// is always against the resolved commit hash, never a branch name, so a
// push landing mid-fetch cannot desynchronize the tree from the hash the
// caller recorded.
func (c *Client) GetTree(ctx context.Context, owner, name, commitSHA string) ([]TreeEntry, error) {
	var resp treeResponse
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", owner, name, commitSHA)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	entries := make([]TreeEntry, 0, len(resp.Tree))
	for _, e := range resp.Tree {
		if e.Type == "blob" {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// GetBlob fetches and decodes a single file's content by blob SHA.
func (c *Client) GetBlob(ctx context.Context, owner, name, sha string) ([]byte, error) {
	var resp blobResponse
	path := fmt.Sprintf("/repos/%s/%s/git/blobs/%s", owner, name, sha)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	if resp.Encoding != "base64" {
		return nil, apperr.New(apperr.Internal, fmt.Sprintf("unsupported blob encoding %q", resp.Encoding))
	}
	decoded, err := base64.StdEncoding.DecodeString(stripNewlines(resp.Content))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "decode blob content", err)
	}
	return decoded, nil
}

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build github request", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.UpstreamUnavailable, "github request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.Internal, "decode github response", err)
	}
	return nil
}

// RateLimitError carries the Retry-After duration for a 403/429 rate-limit
// response and exposes it through RetryAfter (retryutil.Retryable).
// ghclient itself does not retry.
type RateLimitError struct {
	Err   *apperr.Error
	After time.Duration
}

func (e *RateLimitError) Error() string { return e.Err.Error() }

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) RetryAfter() (time.Duration, bool) { return e.After, e.After > 0 }

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apperr.New(apperr.NotFound, "github resource not found")
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.New(apperr.Unauthorized, "github request unauthorized")
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != "" {
			after := parseRetryAfter(resp)
			return &RateLimitError{
				Err:   apperr.New(apperr.RateLimited, "github rate limit exceeded"),
				After: after,
			}
		}
		return apperr.New(apperr.Unauthorized, "github request forbidden")
	default:
		body, _ := io.ReadAll(resp.Body)
		return apperr.New(apperr.UpstreamUnavailable, fmt.Sprintf("github api error (status %d): %s", resp.StatusCode, string(body)))
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			d := time.Until(time.Unix(epoch, 0))
			if d > 0 {
				return d
			}
		}
	}
	return 0
}
