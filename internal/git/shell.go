package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ShellReader shells out to the system git binary to inspect the working tree.
type ShellReader struct {
	// Git is the git binary to execute. Defaults to "git" when empty.
	Git string

	// Dir is the directory git runs in. When empty, the process working directory is used.
	Dir string
}

// NewShellReader returns a Reader backed by system git commands run in dir.
func NewShellReader(dir string) *ShellReader {
	return &ShellReader{Dir: dir}
}

func (r *ShellReader) gitBinary() string {
	if r.Git == "" {
		return "git"
	}
	return r.Git
}

func (r *ShellReader) TopLevel(ctx context.Context) (string, error) {
	out, err := r.captureGitOutput(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("resolve repository root: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ChangedPaths runs a NUL-delimited diff against HEAD so paths with spaces or
// non-ASCII characters come back unquoted.
func (r *ShellReader) ChangedPaths(ctx context.Context) ([]string, error) {
	out, err := r.captureGitOutput(ctx, "diff", "--name-only", "-z", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("list changed files: %w", err)
	}
	return splitNUL(out), nil
}

func (r *ShellReader) HeadCommit(ctx context.Context) (string, error) {
	out, err := r.captureGitOutput(ctx, "rev-parse", "--verify", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD commit: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (r *ShellReader) HeadTree(ctx context.Context) (string, error) {
	out, err := r.captureGitOutput(ctx, "rev-parse", "--verify", "HEAD^{tree}")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD tree: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (r *ShellReader) captureGitOutput(ctx context.Context, args ...string) (string, error) {
	cmd := exec.Command(r.gitBinary(), args...)
	cmd.Dir = r.Dir
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", &GitError{Args: args, Output: stderr.String(), Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		terminateProcessGroup(cmd)
		<-done
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", &GitError{Args: args, Output: stderr.String(), Err: err}
		}
	}

	return stdout.String(), nil
}

func splitNUL(out string) []string {
	parts := strings.Split(out, "\x00")
	paths := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		paths = append(paths, part)
	}
	return paths
}

// GitError wraps failures when invoking the git binary.
type GitError struct {
	Args   []string
	Output string
	Err    error
}

func (e *GitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("git %s: %v\n%s", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *GitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
