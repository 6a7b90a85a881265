package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rancher/api-commit-action/internal/git"
	gh "github.com/rancher/api-commit-action/internal/github"
	"github.com/rancher/api-commit-action/internal/intent"
	"github.com/rancher/api-commit-action/internal/orchestrator"
)

// Runner glues together mode resolution, the orchestrator and result reporting.
type Runner struct {
	cfg       Config
	log       *slog.Logger
	ghFactory gh.Factory
	gitReader git.Reader
	now       func() time.Time
}

// NewRunner constructs a Runner with the supplied configuration.
func NewRunner(cfg Config) (*Runner, error) {
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	return &Runner{
		cfg:       cfg,
		log:       logger,
		ghFactory: gh.NewRESTFactory(cfg.GitHubBaseURL, cfg.GitHubUploadURL),
		gitReader: git.NewShellReader(cfg.WorkingDirectory),
		now:       time.Now,
	}, nil
}

// NewRunnerWithDeps constructs a Runner with injected dependencies for testing.
func NewRunnerWithDeps(cfg Config, log *slog.Logger, ghFactory gh.Factory, gitReader git.Reader, now func() time.Time) *Runner {
	return &Runner{cfg: cfg, log: log, ghFactory: ghFactory, gitReader: gitReader, now: now}
}

// Run resolves the publishing mode, publishes local changes and reports the outcome.
func (r *Runner) Run(ctx context.Context) error {
	now := time.Now
	if r.now != nil {
		now = r.now
	}

	resolved, err := intent.Resolve(r.cfg.Inputs(), now())
	if err != nil {
		return fmt.Errorf("resolve mode: %w", err)
	}

	if r.log != nil {
		r.log.Info("starting api commit action run", "mode", resolved.Mode(), "repository", resolved.Repository().String(), "dry_run", r.cfg.DryRun)
	}

	reader := r.gitReader
	if reader == nil {
		reader = git.NewShellReader(r.cfg.WorkingDirectory)
	}

	var client gh.Client
	if !r.cfg.DryRun {
		if r.ghFactory == nil {
			return fmt.Errorf("github client factory is required")
		}
		client, err = r.ghFactory.New(ctx, r.cfg.GitHubToken)
		if err != nil {
			return fmt.Errorf("initialize github client: %w", err)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		CommitMessage: r.cfg.CommitMessage,
		DryRun:        r.cfg.DryRun,
	}, client, reader, r.log)

	result, err := orch.Publish(ctx, resolved)
	if err != nil {
		if r.log != nil {
			r.log.Error("publish failed", "mode", resolved.Mode(), "error", err, "retryable", gh.IsRetryable(err), "commit", result.Plan.CommitSHA)
		}
		return fmt.Errorf("publish: %w", err)
	}

	if result.Published() {
		if err := writeGitHubOutputs(r.cfg.OutputPath, result); err != nil {
			return fmt.Errorf("write action outputs: %w", err)
		}
	}

	if err := writeStepSummary(r.cfg.StepSummaryPath, result); err != nil && r.log != nil {
		r.log.Warn("failed to write step summary", "error", err)
	}

	if r.log != nil {
		r.log.Info("api commit action run finished", "mode", result.Mode, "commit", result.Plan.CommitSHA, "no_changes", result.NoChanges, "dry_run", result.DryRun)
	}

	return nil
}
