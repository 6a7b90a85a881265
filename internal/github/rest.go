package gh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	github "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

const defaultUserAgent = "rancher-api-commit-action"

// NewRESTFactory returns a GitHub client factory backed by the go-github REST client. When
// base and upload URLs are provided, the factory targets a GitHub Enterprise instance.
func NewRESTFactory(baseURL, uploadURL string) Factory {
	return &restFactory{
		userAgent: defaultUserAgent,
		baseURL:   strings.TrimSpace(baseURL),
		uploadURL: strings.TrimSpace(uploadURL),
	}
}

type restFactory struct {
	userAgent string
	baseURL   string
	uploadURL string
}

type restClient struct {
	client *github.Client
}

func (f *restFactory) New(ctx context.Context, token string) (Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	if f.baseURL == "" && f.uploadURL != "" {
		return nil, fmt.Errorf("github upload url cannot be set without base url")
	}

	var ghClient *github.Client
	if f.baseURL != "" {
		baseURLNormalized, err := normalizeGitHubURL(f.baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}

		uploadURL := f.uploadURL
		if uploadURL == "" {
			return nil, fmt.Errorf("github upload url must be provided when base url is set")
		}

		uploadURLNormalized, err := normalizeGitHubURL(uploadURL)
		if err != nil {
			return nil, fmt.Errorf("parse github upload url: %w", err)
		}

		ghClient, err = github.NewClient(tc).WithEnterpriseURLs(baseURLNormalized, uploadURLNormalized)
		if err != nil {
			return nil, fmt.Errorf("construct enterprise github client: %w", err)
		}
	} else {
		ghClient = github.NewClient(tc)
	}

	if f.userAgent != "" {
		ghClient.UserAgent = f.userAgent
	}

	return &restClient{client: ghClient}, nil
}

func normalizeGitHubURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		return "", fmt.Errorf("url must include scheme (e.g. https://)")
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("url must include host")
	}

	if parsed.Path == "" {
		parsed.Path = "/"
	} else if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""

	return parsed.String(), nil
}

func (c *restClient) CreateBlob(ctx context.Context, owner, repo, content, encoding string) (string, error) {
	blob, _, err := c.client.Git.CreateBlob(ctx, owner, repo, &github.Blob{
		Content:  github.Ptr(content),
		Encoding: github.Ptr(encoding),
	})
	if err != nil {
		err = classifyGitHubError(err)
		return "", fmt.Errorf("create blob: %w", err)
	}

	sha := blob.GetSHA()
	if sha == "" {
		return "", fmt.Errorf("create blob: response did not include a sha")
	}
	return sha, nil
}

func (c *restClient) CreateTree(ctx context.Context, owner, repo, baseTree string, entries []TreeEntry) (string, error) {
	ghEntries := make([]*github.TreeEntry, 0, len(entries))
	for _, entry := range entries {
		ghEntries = append(ghEntries, &github.TreeEntry{
			Path: github.Ptr(entry.Path),
			Mode: github.Ptr(entry.Mode),
			Type: github.Ptr(entry.Type),
			SHA:  github.Ptr(entry.SHA),
		})
	}

	tree, _, err := c.client.Git.CreateTree(ctx, owner, repo, baseTree, ghEntries)
	if err != nil {
		err = classifyGitHubError(err)
		return "", fmt.Errorf("create tree on %s: %w", baseTree, err)
	}

	sha := tree.GetSHA()
	if sha == "" {
		return "", fmt.Errorf("create tree on %s: response did not include a sha", baseTree)
	}
	return sha, nil
}

func (c *restClient) CreateCommit(ctx context.Context, owner, repo string, input CreateCommitOptions) (string, error) {
	parents := make([]*github.Commit, 0, len(input.Parents))
	for _, parent := range input.Parents {
		parents = append(parents, &github.Commit{SHA: github.Ptr(parent)})
	}

	commit, _, err := c.client.Git.CreateCommit(ctx, owner, repo, &github.Commit{
		Message: github.Ptr(input.Message),
		Tree:    &github.Tree{SHA: github.Ptr(input.Tree)},
		Parents: parents,
	}, nil)
	if err != nil {
		err = classifyGitHubError(err)
		return "", fmt.Errorf("create commit for tree %s: %w", input.Tree, err)
	}

	sha := commit.GetSHA()
	if sha == "" {
		return "", fmt.Errorf("create commit for tree %s: response did not include a sha", input.Tree)
	}
	return sha, nil
}

func (c *restClient) GetBranchSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	ref, resp, err := c.client.Git.GetRef(ctx, owner, repo, branchRef(branch))
	if err != nil {
		if isNotFound(resp, err) {
			return "", fmt.Errorf("get ref %s: %w", branch, ErrBranchNotFound)
		}
		err = classifyGitHubError(err)
		return "", fmt.Errorf("get ref %s: %w", branch, err)
	}

	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("get ref %s: response did not include an object sha", branch)
	}
	return sha, nil
}

func (c *restClient) GetCommitTree(ctx context.Context, owner, repo, commitSHA string) (string, error) {
	commit, _, err := c.client.Git.GetCommit(ctx, owner, repo, commitSHA)
	if err != nil {
		err = classifyGitHubError(err)
		return "", fmt.Errorf("get commit %s: %w", commitSHA, err)
	}

	sha := commit.GetTree().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("get commit %s: response did not include a tree sha", commitSHA)
	}
	return sha, nil
}

func (c *restClient) CreateBranch(ctx context.Context, owner, repo, branch, fromSHA string) error {
	ref := &github.Reference{
		Ref:    github.Ptr(branchRef(branch)),
		Object: &github.GitObject{SHA: github.Ptr(fromSHA)},
	}

	if _, _, err := c.client.Git.CreateRef(ctx, owner, repo, ref); err != nil {
		err = classifyGitHubError(err)
		return fmt.Errorf("create ref %s: %w", branch, err)
	}
	return nil
}

func (c *restClient) UpdateBranch(ctx context.Context, owner, repo, branch, toSHA string) error {
	ref := &github.Reference{
		Ref:    github.Ptr(branchRef(branch)),
		Object: &github.GitObject{SHA: github.Ptr(toSHA)},
	}

	if _, _, err := c.client.Git.UpdateRef(ctx, owner, repo, ref, false); err != nil {
		err = classifyGitHubError(err)
		return fmt.Errorf("update ref %s: %w", branch, err)
	}
	return nil
}

func (c *restClient) CreatePullRequest(ctx context.Context, owner, repo string, input CreatePROptions) (PullRequest, error) {
	pr, _, err := c.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title:               github.Ptr(input.Title),
		Head:                github.Ptr(input.Head),
		Base:                github.Ptr(input.Base),
		Body:                github.Ptr(input.Body),
		MaintainerCanModify: github.Ptr(input.MaintainerCanModify),
	})
	if err != nil {
		err = classifyGitHubError(err)
		return PullRequest{}, fmt.Errorf("create pull request: %w", err)
	}

	result := PullRequest{
		URL:     pr.GetURL(),
		HTMLURL: pr.GetHTMLURL(),
		Number:  pr.GetNumber(),
		Head:    input.Head,
		Base:    input.Base,
	}
	if head := pr.GetHead(); head != nil && head.GetRef() != "" {
		result.Head = head.GetRef()
	}
	if base := pr.GetBase(); base != nil && base.GetRef() != "" {
		result.Base = base.GetRef()
	}

	return result, nil
}

func branchRef(branch string) string {
	return "refs/heads/" + strings.TrimPrefix(branch, "refs/heads/")
}

func isNotFound(resp *github.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var githubErr *github.ErrorResponse
	if errors.As(err, &githubErr) {
		if githubErr.Response != nil && githubErr.Response.StatusCode == http.StatusNotFound {
			return true
		}
	}
	return false
}

func classifyGitHubError(err error) error {
	if err == nil {
		return nil
	}
	if isRetryableGitHubError(err) {
		return &retryableError{err: err}
	}
	return err
}

func isRetryableGitHubError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		if respErr.Response != nil {
			code := respErr.Response.StatusCode
			if code == http.StatusTooManyRequests || (code >= 500 && code <= 599) {
				return true
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	return false
}
