package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v66/github"

	"github.com/schaermu/ijsync/internal/fetch"
)

const pageSize = 100

// ErrTimeout marks a mutation whose outcome is unknown because the request
// timed out. The caller must re-read remote state before repeating it.
var ErrTimeout = errors.New("request timed out")

// Client provides the repository hosting operations used by the upgrade workflow
type Client interface {
	// ListBranches returns the names of all remote branches
	ListBranches(ctx context.Context) ([]string, error)
	// ListPullRequests returns the head branch names of all open pull requests
	ListPullRequests(ctx context.Context) ([]string, error)
	// CreatePullRequest opens a pull request and returns its URL
	CreatePullRequest(ctx context.Context, pr NewPullRequest) (string, error)
}

// NewPullRequest is the payload for opening a pull request
type NewPullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// APIClient implements Client against the GitHub REST API
type APIClient struct {
	http  *fetch.Client
	api   *gh.Client
	owner string
	repo  string
}

// NewAPIClient creates a client for owner/repo. The token is sent as a bearer
// credential and is never logged. Requests go through httpClient's timeout and
// retry policy.
func NewAPIClient(httpClient *fetch.Client, baseURL, owner, repo, token string) (*APIClient, error) {
	if httpClient == nil {
		httpClient = fetch.NewClient(nil, 0, nil)
	}

	api := gh.NewClient(httpClient.HTTPClient())
	if token != "" {
		api = api.WithAuthToken(token)
	}
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", baseURL, err)
		}
		api.BaseURL = u
	}

	return &APIClient{
		http:  httpClient,
		api:   api,
		owner: owner,
		repo:  repo,
	}, nil
}

// ListBranches lists every branch of the repository
func (c *APIClient) ListBranches(ctx context.Context) ([]string, error) {
	var names []string
	opts := &gh.BranchListOptions{ListOptions: gh.ListOptions{PerPage: pageSize}}
	err := c.paginate(ctx, "branches", &opts.ListOptions, func(ctx context.Context) (*gh.Response, error) {
		page, resp, err := c.api.Repositories.ListBranches(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, err
		}
		for _, b := range page {
			names = append(names, b.GetName())
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return names, nil
}

// ListPullRequests lists the head refs of open pull requests
func (c *APIClient) ListPullRequests(ctx context.Context) ([]string, error) {
	var heads []string
	opts := &gh.PullRequestListOptions{State: "open", ListOptions: gh.ListOptions{PerPage: pageSize}}
	err := c.paginate(ctx, "pulls", &opts.ListOptions, func(ctx context.Context) (*gh.Response, error) {
		page, resp, err := c.api.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, err
		}
		for _, pr := range page {
			heads = append(heads, pr.GetHead().GetRef())
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pull requests: %w", err)
	}
	return heads, nil
}

// CreatePullRequest opens a pull request. It is never retried; a timeout
// is reported as ErrTimeout because the pull request may have been created.
func (c *APIClient) CreatePullRequest(ctx context.Context, pr NewPullRequest) (string, error) {
	var created *gh.PullRequest
	err := c.http.Attempt(ctx, http.MethodPost, c.resource("pulls"), func(ctx context.Context) error {
		var err error
		created, _, err = c.api.PullRequests.Create(ctx, c.owner, c.repo, &gh.NewPullRequest{
			Title: gh.String(pr.Title),
			Body:  gh.String(pr.Body),
			Head:  gh.String(pr.Head),
			Base:  gh.String(pr.Base),
		})
		return err
	})
	if err != nil {
		if ctx.Err() == nil && fetch.IsTimeout(err) {
			return "", fmt.Errorf("failed to create pull request: %w: %w", ErrTimeout, err)
		}
		return "", fmt.Errorf("failed to create pull request: %w", err)
	}
	return created.GetHTMLURL(), nil
}

// paginate calls list for every page, following the Link header until the
// last page. Each page is one retryable attempt.
func (c *APIClient) paginate(ctx context.Context, resource string, opts *gh.ListOptions, list func(context.Context) (*gh.Response, error)) error {
	opts.Page = 1
	for {
		var resp *gh.Response
		err := c.http.Attempt(ctx, http.MethodGet, c.resource(resource), func(ctx context.Context) error {
			var err error
			resp, err = list(ctx)
			return err
		})
		if err != nil {
			return err
		}
		if resp == nil || resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *APIClient) resource(name string) string {
	return fmt.Sprintf("%srepos/%s/%s/%s", c.api.BaseURL, c.owner, c.repo, name)
}
