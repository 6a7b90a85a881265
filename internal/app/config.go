package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rancher/api-commit-action/internal/intent"
	"github.com/rancher/api-commit-action/internal/orchestrator"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

var supportedLogFormats = map[string]struct{}{
	"text": {},
	"json": {},
}

// Config captures runtime options sourced from flags, environment variables and an
// optional YAML config file.
type Config struct {
	Repository       string
	GitHubToken      string
	GitHubBaseURL    string
	GitHubUploadURL  string
	OutputPath       string
	StepSummaryPath  string
	CommitMessage    string
	BranchName       string
	PRTitle          string
	PRBody           string
	DefaultBranch    string
	TargetRepo       string
	WorkingDirectory string
	DryRun           bool
	LogLevel         string
	LogFormat        string
}

// Overrides carries values supplied on the command line. They win over both the
// environment and the config file. A nil DryRun means the flag was not given.
type Overrides struct {
	ConfigFile       string
	LogLevel         string
	LogFormat        string
	WorkingDirectory string
	DryRun           *bool
}

// fileConfig mirrors the optional YAML config file.
type fileConfig struct {
	Repository       string            `yaml:"repository"`
	CommitMessage    string            `yaml:"commit_message"`
	BranchName       string            `yaml:"branch_name"`
	PullRequest      pullRequestConfig `yaml:"pull_request"`
	TargetRepository string            `yaml:"target_repository"`
	LogLevel         string            `yaml:"log_level"`
	LogFormat        string            `yaml:"log_format"`
	DryRun           *bool             `yaml:"dry_run"`
	WorkingDirectory string            `yaml:"working_directory"`
	GitHub           githubConfig      `yaml:"github"`
}

type pullRequestConfig struct {
	Title      string `yaml:"title"`
	Body       string `yaml:"body"`
	BaseBranch string `yaml:"base_branch"`
}

type githubConfig struct {
	BaseURL   string `yaml:"base_url"`
	UploadURL string `yaml:"upload_url"`
}

// LoadConfig reads inputs from the environment and the optional config file, applies
// command-line overrides and defaults, and performs validation.
func LoadConfig(overrides Overrides) (Config, error) {
	configPath := strings.TrimSpace(overrides.ConfigFile)
	if configPath == "" {
		configPath = strings.TrimSpace(os.Getenv("INPUT_CONFIG_FILE"))
	}

	file, err := loadConfigFile(configPath)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Repository:       envOr("GITHUB_REPOSITORY", file.Repository),
		GitHubBaseURL:    envOr("INPUT_GITHUB_BASE_URL", file.GitHub.BaseURL),
		GitHubUploadURL:  envOr("INPUT_GITHUB_UPLOAD_URL", file.GitHub.UploadURL),
		OutputPath:       strings.TrimSpace(os.Getenv("GITHUB_OUTPUT")),
		StepSummaryPath:  strings.TrimSpace(os.Getenv("GITHUB_STEP_SUMMARY")),
		CommitMessage:    envOr("COMMIT_MESSAGE", file.CommitMessage),
		BranchName:       envOr("BRANCH_NAME", file.BranchName),
		PRTitle:          envOr("PR_TITLE", file.PullRequest.Title),
		PRBody:           envOr("PULL_REQUEST_BODY", file.PullRequest.Body),
		DefaultBranch:    envOr("DEFAULT_BRANCH", file.PullRequest.BaseBranch),
		TargetRepo:       envOr("TARGET_REPO", file.TargetRepository),
		WorkingDirectory: envOr("INPUT_WORKING_DIRECTORY", file.WorkingDirectory),
		LogLevel:         strings.ToLower(envOr("INPUT_LOG_LEVEL", file.LogLevel)),
		LogFormat:        strings.ToLower(envOr("INPUT_LOG_FORMAT", file.LogFormat)),
	}

	cfg.GitHubToken = strings.TrimSpace(os.Getenv("BEARER_TOKEN"))
	if cfg.GitHubToken == "" {
		cfg.GitHubToken = strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	}

	if file.DryRun != nil {
		cfg.DryRun = *file.DryRun
	}
	if rawDryRun := strings.TrimSpace(os.Getenv("INPUT_DRY_RUN")); rawDryRun != "" {
		dryRun, err := strconv.ParseBool(rawDryRun)
		if err != nil {
			return Config{}, fmt.Errorf("parse INPUT_DRY_RUN: %w", err)
		}
		cfg.DryRun = dryRun
	}

	applyOverrides(&cfg, overrides)

	if cfg.CommitMessage == "" {
		cfg.CommitMessage = orchestrator.DefaultCommitMessage
	}

	if cfg.PRBody == "" {
		cfg.PRBody = intent.DefaultPullRequestBody
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = defaultLogFormat
	}

	if cfg.Repository == "" {
		return Config{}, fmt.Errorf("repository is required (set GITHUB_REPOSITORY)")
	}

	if cfg.GitHubToken == "" {
		return Config{}, fmt.Errorf("github token is required (set BEARER_TOKEN or GITHUB_TOKEN)")
	}

	if cfg.BranchName == "" {
		return Config{}, fmt.Errorf("BRANCH_NAME is required (branch prefix for a new pull request, or the existing branch to push to)")
	}

	if cfg.OutputPath == "" {
		return Config{}, fmt.Errorf("GITHUB_OUTPUT is required")
	}

	if (cfg.GitHubBaseURL == "") != (cfg.GitHubUploadURL == "") {
		return Config{}, fmt.Errorf("INPUT_GITHUB_BASE_URL and INPUT_GITHUB_UPLOAD_URL must both be set for GitHub Enterprise")
	}

	if _, ok := supportedLogFormats[cfg.LogFormat]; !ok {
		return Config{}, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Inputs returns the snapshot the mode resolver works from.
func (c Config) Inputs() intent.Inputs {
	return intent.Inputs{
		Repository:    c.Repository,
		BranchName:    c.BranchName,
		PRTitle:       c.PRTitle,
		PRBody:        c.PRBody,
		DefaultBranch: c.DefaultBranch,
		TargetRepo:    c.TargetRepo,
	}
}

func loadConfigFile(path string) (fileConfig, error) {
	if path == "" {
		return fileConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return file, nil
}

func applyOverrides(cfg *Config, overrides Overrides) {
	if v := strings.TrimSpace(overrides.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(overrides.LogFormat); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := strings.TrimSpace(overrides.WorkingDirectory); v != "" {
		cfg.WorkingDirectory = v
	}
	if overrides.DryRun != nil {
		cfg.DryRun = *overrides.DryRun
	}
}

// envOr returns the trimmed environment value for key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}
