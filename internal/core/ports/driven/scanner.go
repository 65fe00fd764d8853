package driven

import "context"

// RepoScanner discovers and reads files from a source repository.
// Backed by git for revision-aware change detection.
type RepoScanner interface {
	// Name returns the repository name (defaults to the directory name).
	Name() string

	// RemoteURL returns the repository remote, or empty.
	RemoteURL(ctx context.Context) string

	// CurrentRevision returns the revision marker for the working tree
	// (HEAD commit for git).
	CurrentRevision(ctx context.Context) (string, error)

	// ScanFiles lists relative paths matching the include/exclude
	// patterns the scanner was configured with.
	ScanFiles(ctx context.Context) ([]string, error)

	// ChangedSince returns relative paths changed and deleted since
	// the given revision, filtered by the configured patterns.
	ChangedSince(ctx context.Context, revision string) (changed, deleted []string, err error)

	// ReadFile returns the content of a file by relative path.
	ReadFile(ctx context.Context, relativePath string) (string, error)

	// Watch streams batches of changed relative paths until ctx is
	// cancelled. Used by sync --watch.
	Watch(ctx context.Context) (<-chan []string, error)
}
