package gh

import (
	"context"
	"errors"
)

// Git file modes accepted by the tree API.
const (
	ModeFile       = "100644"
	ModeExecutable = "100755"
	ModeSymlink    = "120000"
)

// TypeBlob is the tree entry object type for file content.
const TypeBlob = "blob"

// BlobEncodingBase64 is the only encoding the action uploads blobs with.
const BlobEncodingBase64 = "base64"

// TreeEntry describes one path overlaid onto a base tree.
type TreeEntry struct {
	Path string
	Mode string
	Type string
	SHA  string
}

// CreateCommitOptions defines the commit object to create.
type CreateCommitOptions struct {
	Message string
	Tree    string
	Parents []string
}

// CreatePROptions defines the metadata required to open a pull request.
type CreatePROptions struct {
	Title               string
	Body                string
	Head                string
	Base                string
	MaintainerCanModify bool
}

// PullRequest represents a newly created pull request.
type PullRequest struct {
	URL     string
	HTMLURL string
	Number  int
	Head    string
	Base    string
}

// Client exposes the Git data and pull request operations used to publish a commit.
type Client interface {
	CreateBlob(ctx context.Context, owner, repo, content, encoding string) (string, error)
	CreateTree(ctx context.Context, owner, repo, baseTree string, entries []TreeEntry) (string, error)
	CreateCommit(ctx context.Context, owner, repo string, input CreateCommitOptions) (string, error)
	GetBranchSHA(ctx context.Context, owner, repo, branch string) (string, error)
	GetCommitTree(ctx context.Context, owner, repo, commitSHA string) (string, error)
	CreateBranch(ctx context.Context, owner, repo, branch, fromSHA string) error
	UpdateBranch(ctx context.Context, owner, repo, branch, toSHA string) error
	CreatePullRequest(ctx context.Context, owner, repo string, input CreatePROptions) (PullRequest, error)
}

// Factory builds concrete GitHub clients (e.g., REST-backed) for the orchestrator.
type Factory interface {
	New(ctx context.Context, token string) (Client, error)
}

// ErrBranchNotFound indicates the requested branch does not exist.
var ErrBranchNotFound = errors.New("github: branch not found")

// retryableError marks an error that may succeed if the operation is retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsRetryable reports whether the supplied error resulted from a transient GitHub
// API failure (for example, a network timeout or rate-limited request). The action
// never retries on its own; callers use this to tell users a re-run may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var target *retryableError
	return errors.As(err, &target)
}
