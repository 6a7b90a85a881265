package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rancher/api-commit-action/internal/intent"
	"github.com/rancher/api-commit-action/internal/orchestrator"
)

const (
	outputCommitSHA         = "commit-sha"
	outputPullRequestNumber = "pull-request-number"
)

// writeGitHubOutputs appends one key=value line per output to the GITHUB_OUTPUT file.
func writeGitHubOutputs(path string, result orchestrator.Result) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("output path is empty")
	}

	lines := []string{outputLine(outputCommitSHA, result.Plan.CommitSHA)}
	if result.PullRequest != nil {
		lines = append(lines, outputLine(outputPullRequestNumber, strconv.Itoa(result.PullRequest.Number)))
	}

	return appendToFile(path, strings.Join(lines, ""))
}

func outputLine(key, value string) string {
	return key + "=" + value + "\n"
}

func writeStepSummary(path string, result orchestrator.Result) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	var builder strings.Builder
	builder.WriteString("## API commit action summary\n\n")
	builder.WriteString(renderResultDetails(result))

	content := builder.String()
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	return appendToFile(path, content)
}

func renderResultDetails(result orchestrator.Result) string {
	var builder strings.Builder

	switch {
	case result.NoChanges:
		builder.WriteString("No changes detected; nothing was committed.\n")
		return builder.String()
	case result.DryRun:
		builder.WriteString(fmt.Sprintf("Dry run: %d changed file(s) would be committed to `%s`.\n\n",
			len(result.Files), sanitizeMarkdownCell(result.Branch)))
	}

	builder.WriteString("| Field | Value |\n")
	builder.WriteString("| --- | --- |\n")
	writeRow := func(field, value string) {
		builder.WriteString(fmt.Sprintf("| %s | %s |\n", field, sanitizeMarkdownCell(value)))
	}

	writeRow("Mode", modeLabel(result.Mode))
	writeRow("Repository", result.Plan.Repository.String())
	writeRow("Branch", result.Branch)
	writeRow("Commit", result.Plan.CommitSHA)

	prCell := "-"
	if result.PullRequest != nil {
		if result.PullRequest.HTMLURL != "" {
			prCell = fmt.Sprintf("[PR #%d](%s)", result.PullRequest.Number, result.PullRequest.HTMLURL)
		} else {
			prCell = fmt.Sprintf("PR #%d", result.PullRequest.Number)
		}
	}
	writeRow("Pull request", prCell)

	paths := make([]string, 0, len(result.Files))
	for _, file := range result.Files {
		paths = append(paths, "`"+file.Path+"`")
	}
	writeRow("Files", strings.Join(paths, "<br>"))

	return builder.String()
}

func modeLabel(mode intent.Mode) string {
	switch mode {
	case intent.ModeNewPullRequest:
		return "new pull request"
	case intent.ModeExistingBranch:
		return "existing branch"
	default:
		return string(mode)
	}
}

func appendToFile(path, content string) error {
	// GitHub Actions creates these files; create the directory only when running elsewhere.
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not create directory %s: %v\n", dir, mkErr)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close %s: %v\n", path, closeErr)
		}
	}()

	if _, err := file.WriteString(content); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

func sanitizeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	value = strings.ReplaceAll(value, "\n", "<br>")
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}
