package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v58/github"
	"golang.org/x/oauth2"
)

const pageSize = 100

// Client lists what a token can see on GitHub. Cloning and pushing go
// through git, this is only used to pick a repository and branches.
type Client struct {
	gh *github.Client
}

type Option func(*github.Client) error

// WithBaseURL points the client at another API root, such as a GitHub
// Enterprise host.
func WithBaseURL(raw string) Option {
	return func(c *github.Client) error {
		u, err := url.Parse(strings.TrimSuffix(raw, "/") + "/")
		if err != nil {
			return fmt.Errorf("invalid api url %q: %w", raw, err)
		}
		c.BaseURL = u
		return nil
	}
}

func New(ctx context.Context, token string, opts ...Option) (*Client, error) {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		hc = oauth2.NewClient(ctx, ts)
	}

	gh := github.NewClient(hc)
	for _, opt := range opts {
		if err := opt(gh); err != nil {
			return nil, err
		}
	}
	return &Client{gh: gh}, nil
}

type User struct {
	Login string `json:"login" yaml:"login"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
}

type Repository struct {
	FullName      string    `json:"fullName" yaml:"fullName"`
	Owner         string    `json:"owner" yaml:"owner"`
	Name          string    `json:"name" yaml:"name"`
	DefaultBranch string    `json:"defaultBranch" yaml:"defaultBranch"`
	CloneURL      string    `json:"cloneUrl" yaml:"cloneUrl"`
	Private       bool      `json:"private" yaml:"private"`
	UpdatedAt     time.Time `json:"updatedAt" yaml:"updatedAt"`
}

func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	u, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &User{Login: u.GetLogin(), Name: u.GetName()}, nil
}

// ListRepositories returns every repository the token can access, most
// recently updated first.
func (c *Client) ListRepositories(ctx context.Context) ([]Repository, error) {
	opts := &github.RepositoryListOptions{
		Sort:        "updated",
		Direction:   "desc",
		Affiliation: "owner,collaborator,organization_member",
		ListOptions: github.ListOptions{PerPage: pageSize},
	}

	var repos []Repository
	for {
		page, resp, err := c.gh.Repositories.List(ctx, "", opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories: %w", err)
		}
		for _, r := range page {
			repos = append(repos, Repository{
				FullName:      r.GetFullName(),
				Owner:         r.GetOwner().GetLogin(),
				Name:          r.GetName(),
				DefaultBranch: r.GetDefaultBranch(),
				CloneURL:      r.GetCloneURL(),
				Private:       r.GetPrivate(),
				UpdatedAt:     r.GetUpdatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			return repos, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) ListBranches(ctx context.Context, owner, repo string) ([]string, error) {
	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: pageSize}}

	var names []string
	for {
		page, resp, err := c.gh.Repositories.ListBranches(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list branches of %s/%s: %w", owner, repo, err)
		}
		for _, b := range page {
			names = append(names, b.GetName())
		}
		if resp.NextPage == 0 {
			return names, nil
		}
		opts.Page = resp.NextPage
	}
}

// IsUnauthorized reports whether GitHub rejected the token.
func IsUnauthorized(err error) bool {
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode == http.StatusUnauthorized
	}
	return false
}
