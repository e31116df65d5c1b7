// Package repocheck verifies extracted github.com repository URLs against
// the GitHub API. Verification is best-effort; callers treat failures as
// warnings.
package repocheck

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// Checker probes repository existence.
type Checker struct {
	client *github.Client
}

// New creates a checker. An empty token uses unauthenticated requests, which
// GitHub rate-limits aggressively but which suffice for occasional probes.
func New(token string) *Checker {
	var hc *http.Client
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), src)
	}
	return &Checker{client: github.NewClient(hc)}
}

// NewWithClient wraps an existing GitHub client, letting tests point at a
// stub server.
func NewWithClient(client *github.Client) *Checker {
	return &Checker{client: client}
}

// Verify confirms the repository behind url exists and is reachable.
func (c *Checker) Verify(ctx context.Context, url string) error {
	owner, repo, err := SplitURL(url)
	if err != nil {
		return err
	}
	_, resp, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("repocheck: %s/%s does not exist", owner, repo)
		}
		return fmt.Errorf("repocheck: probe %s/%s: %w", owner, repo, err)
	}
	return nil
}

// SplitURL extracts owner and repository from a github.com URL.
func SplitURL(url string) (owner, repo string, err error) {
	rest, ok := strings.CutPrefix(url, "https://github.com/")
	if !ok {
		return "", "", fmt.Errorf("repocheck: not a github.com URL: %s", url)
	}
	rest = strings.TrimSuffix(rest, ".git")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repocheck: malformed repository URL: %s", url)
	}
	return parts[0], parts[1], nil
}
