package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rancher/api-commit-action/internal/git"
	gh "github.com/rancher/api-commit-action/internal/github"
	"github.com/rancher/api-commit-action/internal/intent"
)

// Orchestrator turns local working tree changes into a remote commit and publishes
// it according to the resolved intent.
type Orchestrator struct {
	cfg Config
	gh  gh.Client
	git git.Reader
	log *slog.Logger
}

// CommitPlan records the remote objects created for a run. Fields are filled in as
// each step completes, so a partially populated plan describes how far a failed
// run got.
type CommitPlan struct {
	Repository  intent.Repository
	BaseTreeSHA string
	ParentSHA   string
	Entries     []gh.TreeEntry
	TreeSHA     string
	CommitSHA   string
}

// Result captures the outcome of a single orchestrator run.
type Result struct {
	Mode        intent.Mode
	Plan        CommitPlan
	Branch      string
	PullRequest *gh.PullRequest
	Files       []git.ChangedFile
	NoChanges   bool
	DryRun      bool
}

// Published reports whether the run moved a remote ref.
func (r Result) Published() bool {
	return !r.NoChanges && !r.DryRun && r.Plan.CommitSHA != ""
}

// New returns a configured Orchestrator instance.
func New(cfg Config, ghClient gh.Client, reader git.Reader, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, gh: ghClient, git: reader, log: logger}
}

// Publish detects local changes and, when there are any, creates the blobs, tree and
// commit remotely before opening a pull request or advancing the existing branch.
// Remote objects created before a failure are not cleaned up.
func (o *Orchestrator) Publish(ctx context.Context, target intent.Intent) (Result, error) {
	if target == nil {
		return Result{}, fmt.Errorf("intent is required")
	}
	if o.git == nil {
		return Result{}, fmt.Errorf("git reader is required")
	}

	repo := target.Repository()
	result := Result{
		Mode:   target.Mode(),
		Plan:   CommitPlan{Repository: repo},
		Branch: publishBranch(target),
	}

	changes, err := git.DetectChanges(ctx, o.git)
	if err != nil {
		return result, fmt.Errorf("detect changes: %w", err)
	}
	result.Files = changes.Files

	if changes.Empty() {
		if o.log != nil {
			o.log.Info("no changes to commit", "mode", result.Mode, "repository", repo.String())
		}
		result.NoChanges = true
		return result, nil
	}

	if o.cfg.DryRun {
		if o.log != nil {
			o.log.Info("dry run: skipping remote writes", "mode", result.Mode, "repository", repo.String(), "branch", result.Branch, "files", len(changes.Files))
		}
		result.DryRun = true
		return result, nil
	}

	if o.gh == nil {
		return result, fmt.Errorf("github client is required")
	}

	entries, err := o.uploadBlobs(ctx, repo, changes)
	if err != nil {
		return result, err
	}
	result.Plan.Entries = entries

	parent, baseTree, err := o.resolveBase(ctx, target)
	if err != nil {
		return result, err
	}
	result.Plan.ParentSHA = parent
	result.Plan.BaseTreeSHA = baseTree

	treeSHA, err := o.gh.CreateTree(ctx, repo.Owner, repo.Name, baseTree, entries)
	if err != nil {
		return result, fmt.Errorf("create tree: %w", err)
	}
	result.Plan.TreeSHA = treeSHA

	commitSHA, err := o.gh.CreateCommit(ctx, repo.Owner, repo.Name, gh.CreateCommitOptions{
		Message: o.cfg.commitMessage(),
		Tree:    treeSHA,
		Parents: []string{parent},
	})
	if err != nil {
		return result, fmt.Errorf("create commit: %w", err)
	}
	result.Plan.CommitSHA = commitSHA

	if o.log != nil {
		o.log.Info("created commit", "repository", repo.String(), "commit", commitSHA, "parent", parent, "tree", treeSHA, "files", len(entries))
	}

	switch in := target.(type) {
	case intent.NewPullRequest:
		pr, err := o.openPullRequest(ctx, in, commitSHA)
		if err != nil {
			return result, err
		}
		result.PullRequest = &pr
	case intent.ExistingBranch:
		if err := o.advanceBranch(ctx, in, commitSHA); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (o *Orchestrator) openPullRequest(ctx context.Context, in intent.NewPullRequest, commitSHA string) (gh.PullRequest, error) {
	repo := in.Repo
	if err := o.gh.CreateBranch(ctx, repo.Owner, repo.Name, in.SourceBranch, commitSHA); err != nil {
		return gh.PullRequest{}, fmt.Errorf("create branch %s: %w", in.SourceBranch, err)
	}

	pr, err := o.gh.CreatePullRequest(ctx, repo.Owner, repo.Name, gh.CreatePROptions{
		Title:               in.Title,
		Body:                in.Body,
		Head:                in.SourceBranch,
		Base:                in.BaseBranch,
		MaintainerCanModify: true,
	})
	if err != nil {
		return gh.PullRequest{}, fmt.Errorf("create pull request %s -> %s: %w", in.SourceBranch, in.BaseBranch, err)
	}

	if o.log != nil {
		o.log.Info("opened pull request", "repository", repo.String(), "number", pr.Number, "url", pr.HTMLURL, "head", in.SourceBranch, "base", in.BaseBranch)
	}
	return pr, nil
}

func (o *Orchestrator) advanceBranch(ctx context.Context, in intent.ExistingBranch, commitSHA string) error {
	repo := in.TargetRepo
	if err := o.gh.UpdateBranch(ctx, repo.Owner, repo.Name, in.TargetBranch, commitSHA); err != nil {
		return fmt.Errorf("update branch %s in %s: %w", in.TargetBranch, repo, err)
	}

	if o.log != nil {
		o.log.Info("updated branch", "repository", repo.String(), "branch", in.TargetBranch, "commit", commitSHA)
	}
	return nil
}

func publishBranch(target intent.Intent) string {
	switch in := target.(type) {
	case intent.NewPullRequest:
		return in.SourceBranch
	case intent.ExistingBranch:
		return in.TargetBranch
	default:
		return ""
	}
}
