package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ChangedFile is a path that differs from HEAD, relative to the repository root.
// Symlink is set for symbolic links, whose content is the link target.
type ChangedFile struct {
	Path       string
	Executable bool
	Symlink    bool
}

// ChangeSet is the ordered list of changed files detected for one run.
type ChangeSet struct {
	Root  string
	Files []ChangedFile
}

// Empty reports whether the working tree has no changes to publish.
func (c ChangeSet) Empty() bool {
	return len(c.Files) == 0
}

// Abs returns the on-disk location of a changed file.
func (c ChangeSet) Abs(f ChangedFile) string {
	return filepath.Join(c.Root, filepath.FromSlash(f.Path))
}

// DetectChanges lists the paths that differ from HEAD and records whether each is
// executable or a symlink. Links are not followed. Paths keep the order reported by
// git and are not deduplicated; anything other than a regular file or a symlink,
// such as a submodule checkout, is rejected.
func DetectChanges(ctx context.Context, r Reader) (ChangeSet, error) {
	root, err := r.TopLevel(ctx)
	if err != nil {
		return ChangeSet{}, err
	}

	paths, err := r.ChangedPaths(ctx)
	if err != nil {
		return ChangeSet{}, err
	}

	changes := ChangeSet{Root: root, Files: make([]ChangedFile, 0, len(paths))}
	for _, path := range paths {
		info, err := os.Lstat(filepath.Join(root, filepath.FromSlash(path)))
		if err != nil {
			return ChangeSet{}, fmt.Errorf("stat changed file %s: %w", path, err)
		}

		mode := info.Mode()
		if !mode.IsRegular() && mode&os.ModeSymlink == 0 {
			return ChangeSet{}, fmt.Errorf("changed path %s is not a regular file or symlink (mode %s)", path, mode.Type())
		}

		changes.Files = append(changes.Files, ChangedFile{
			Path:       path,
			Executable: isExecutable(info),
			Symlink:    mode&os.ModeSymlink != 0,
		})
	}

	return changes, nil
}

func isExecutable(info os.FileInfo) bool {
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
