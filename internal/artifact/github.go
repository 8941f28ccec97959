package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GitHubFetcher fetches published artifacts from raw.githubusercontent.com.
// This is the hosted-data transport for deployments that publish the
// artifact tree to a GitHub repository and serve it statically.
type GitHubFetcher struct {
	base   string
	client *http.Client
}

// NewGitHubFetcher returns a fetcher rooted at the given repository identity.
func NewGitHubFetcher(user, repo, branch string) *GitHubFetcher {
	if branch == "" {
		branch = "main"
	}
	return &GitHubFetcher{
		base:   fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", user, repo, branch),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client (tests inject a fake
// transport the same way the S3 mock does).
func (f *GitHubFetcher) WithHTTPClient(client *http.Client) *GitHubFetcher {
	f.client = client
	return f
}

// Fetch downloads one artifact by its relative key. Any transport error or
// non-200 status resolves to ErrNotFound: the query layer treats unreadable
// and absent identically.
func (f *GitHubFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+"/"+key, nil)
	if err != nil {
		return nil, ErrNotFound
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ErrNotFound
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, ErrNotFound
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrNotFound
	}
	return data, nil
}
