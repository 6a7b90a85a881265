package git

import "context"

// Reader exposes the read-only view of the local working tree needed to build a
// commit remotely. Implementations may shell out to git or use a pure Go library.
type Reader interface {
	// TopLevel returns the absolute path of the repository root.
	TopLevel(ctx context.Context) (string, error)
	// ChangedPaths lists paths, relative to the root, that differ from HEAD.
	ChangedPaths(ctx context.Context) ([]string, error)
	HeadCommit(ctx context.Context) (string, error)
	HeadTree(ctx context.Context) (string, error)
}
