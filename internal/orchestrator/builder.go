package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rancher/api-commit-action/internal/git"
	gh "github.com/rancher/api-commit-action/internal/github"
	"github.com/rancher/api-commit-action/internal/intent"
)

// uploadBlobs creates one blob per changed file in repo and returns the matching
// tree entries in change-set order.
func (o *Orchestrator) uploadBlobs(ctx context.Context, repo intent.Repository, changes git.ChangeSet) ([]gh.TreeEntry, error) {
	entries := make([]gh.TreeEntry, 0, len(changes.Files))
	for _, file := range changes.Files {
		content, err := readContent(changes, file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file.Path, err)
		}

		sha, err := o.gh.CreateBlob(ctx, repo.Owner, repo.Name, base64.StdEncoding.EncodeToString(content), gh.BlobEncodingBase64)
		if err != nil {
			return nil, fmt.Errorf("create blob for %s: %w", file.Path, err)
		}

		if o.log != nil {
			o.log.Debug("created blob", "path", file.Path, "sha", sha, "executable", file.Executable)
		}

		entries = append(entries, gh.TreeEntry{
			Path: file.Path,
			Mode: entryMode(file),
			Type: gh.TypeBlob,
			SHA:  sha,
		})
	}
	return entries, nil
}

// readContent returns the blob bytes for file. A symlink's blob is its target path.
func readContent(changes git.ChangeSet, file git.ChangedFile) ([]byte, error) {
	if file.Symlink {
		target, err := os.Readlink(changes.Abs(file))
		if err != nil {
			return nil, err
		}
		return []byte(filepath.ToSlash(target)), nil
	}
	return os.ReadFile(changes.Abs(file))
}

func entryMode(file git.ChangedFile) string {
	switch {
	case file.Symlink:
		return gh.ModeSymlink
	case file.Executable:
		return gh.ModeExecutable
	default:
		return gh.ModeFile
	}
}

// resolveBase returns the parent commit and base tree the new commit builds on.
func (o *Orchestrator) resolveBase(ctx context.Context, target intent.Intent) (parent, tree string, err error) {
	switch in := target.(type) {
	case intent.NewPullRequest:
		parent, err = o.git.HeadCommit(ctx)
		if err != nil {
			return "", "", fmt.Errorf("resolve local HEAD: %w", err)
		}
		tree, err = o.git.HeadTree(ctx)
		if err != nil {
			return "", "", fmt.Errorf("resolve local HEAD tree: %w", err)
		}
		return parent, tree, nil
	case intent.ExistingBranch:
		repo := in.TargetRepo
		parent, err = o.gh.GetBranchSHA(ctx, repo.Owner, repo.Name, in.TargetBranch)
		if err != nil {
			return "", "", fmt.Errorf("resolve %s in %s: %w", in.TargetBranch, repo, err)
		}
		tree, err = o.gh.GetCommitTree(ctx, repo.Owner, repo.Name, parent)
		if err != nil {
			return "", "", fmt.Errorf("resolve tree of %s in %s: %w", parent, repo, err)
		}
		return parent, tree, nil
	default:
		return "", "", fmt.Errorf("unsupported intent %T", target)
	}
}
