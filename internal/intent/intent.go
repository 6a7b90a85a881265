package intent

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultPullRequestBody is used when no pull request body is configured.
const DefaultPullRequestBody = "Automated pull request."

// Mode names the publishing strategy selected for a run.
type Mode string

const (
	ModeNewPullRequest Mode = "new_pull_request"
	ModeExistingBranch Mode = "existing_branch"
)

// Intent is the publishing strategy resolved from configuration. It is implemented
// only by NewPullRequest and ExistingBranch.
type Intent interface {
	Mode() Mode
	// Repository receives the blobs, tree, commit and ref update.
	Repository() Repository
	isIntent()
}

// NewPullRequest publishes the commit on a fresh branch and opens a pull request
// against BaseBranch.
type NewPullRequest struct {
	Title        string
	Body         string
	BaseBranch   string
	SourceBranch string
	Repo         Repository
}

func (NewPullRequest) Mode() Mode { return ModeNewPullRequest }
func (i NewPullRequest) Repository() Repository { return i.Repo }
func (NewPullRequest) isIntent() {}

// ExistingBranch appends the commit to TargetBranch in TargetRepo.
type ExistingBranch struct {
	TargetBranch string
	TargetRepo   Repository
}

func (ExistingBranch) Mode() Mode { return ModeExistingBranch }
func (i ExistingBranch) Repository() Repository { return i.TargetRepo }
func (ExistingBranch) isIntent() {}

// Inputs is the configuration snapshot the resolver works from. Empty strings mean
// the value was not supplied. Repository is the owner/name the run is checked out
// from; BranchName is a prefix in new pull request mode and a literal branch otherwise.
type Inputs struct {
	Repository    string
	BranchName    string
	PRTitle       string
	PRBody        string
	DefaultBranch string
	TargetRepo    string
}

// ErrAmbiguousMode is returned when the configuration satisfies both modes.
var ErrAmbiguousMode = errors.New("ambiguous configuration: inputs select both a new pull request and a push to an existing branch")

// ResolutionError reports why neither mode could be constructed.
type ResolutionError struct {
	NewPullRequest string
	ExistingBranch string
}

func (e *ResolutionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("failed to parse inputs. For creating a new pull request: %s. For pushing to an existing branch: %s", e.NewPullRequest, e.ExistingBranch)
}

// Resolve selects exactly one Intent from in. now seeds the source branch suffix in
// new pull request mode.
func Resolve(in Inputs, now time.Time) (Intent, error) {
	newPR, newPRReason := newPullRequest(in, now)
	existing, existingReason := existingBranch(in, newPR != nil)

	switch {
	case newPR == nil && existing == nil:
		return nil, &ResolutionError{NewPullRequest: newPRReason, ExistingBranch: existingReason}
	case newPR != nil && existing != nil:
		return nil, ErrAmbiguousMode
	case newPR != nil:
		if err := newPR.validate(); err != nil {
			return nil, err
		}
		return *newPR, nil
	default:
		if err := existing.validate(); err != nil {
			return nil, err
		}
		return *existing, nil
	}
}

func newPullRequest(in Inputs, now time.Time) (*NewPullRequest, string) {
	title := strings.TrimSpace(in.PRTitle)
	if title == "" {
		return nil, "supply PR_TITLE"
	}

	base := NormalizeBranch(in.DefaultBranch)
	if base == "" {
		return nil, "supply DEFAULT_BRANCH"
	}

	prefix := strings.TrimSpace(in.BranchName)
	if prefix == "" {
		return nil, "supply BRANCH_NAME to use as the new branch prefix"
	}

	repo, err := ParseRepository(in.Repository)
	if err != nil {
		return nil, fmt.Sprintf("GITHUB_REPOSITORY: %v", err)
	}

	body := in.PRBody
	if strings.TrimSpace(body) == "" {
		body = DefaultPullRequestBody
	}

	return &NewPullRequest{
		Title:        title,
		Body:         body,
		BaseBranch:   base,
		SourceBranch: SourceBranchName(prefix, now),
		Repo:         repo,
	}, ""
}

// existingBranch builds the push-to-branch candidate. TARGET_REPO falls back to the
// run's own repository unless a complete pull request configuration is present.
func existingBranch(in Inputs, newPullRequestBuilt bool) (*ExistingBranch, string) {
	target := strings.TrimSpace(in.TargetRepo)
	if target == "" {
		if newPullRequestBuilt {
			return nil, "pull request inputs (PR_TITLE/DEFAULT_BRANCH) are set; set TARGET_REPO to push to an existing branch instead"
		}
		target = strings.TrimSpace(in.Repository)
	}
	if target == "" {
		return nil, "set TARGET_REPO, the repository where BRANCH_NAME is to be found"
	}

	repo, err := ParseRepository(target)
	if err != nil {
		return nil, fmt.Sprintf("TARGET_REPO: %v", err)
	}

	branch := NormalizeBranch(in.BranchName)
	if branch == "" {
		return nil, "supply BRANCH_NAME, the existing branch to push to"
	}

	return &ExistingBranch{TargetBranch: branch, TargetRepo: repo}, ""
}

func (i NewPullRequest) validate() error {
	if err := ValidateBranchName(i.SourceBranch); err != nil {
		return fmt.Errorf("invalid source branch %q: %w", i.SourceBranch, err)
	}
	if err := ValidateBranchName(i.BaseBranch); err != nil {
		return fmt.Errorf("invalid DEFAULT_BRANCH %q: %w", i.BaseBranch, err)
	}
	return nil
}

func (i ExistingBranch) validate() error {
	if err := ValidateBranchName(i.TargetBranch); err != nil {
		return fmt.Errorf("invalid BRANCH_NAME %q: %w", i.TargetBranch, err)
	}
	return nil
}
