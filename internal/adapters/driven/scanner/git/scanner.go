// Package git scans a local git repository for indexable documents.
// File enumeration and change detection shell out to the git CLI, so
// results respect .gitignore exactly as git sees the tree. Watch mode
// follows filesystem events instead, debounced into batches.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
	"github.com/kbforge-labs/kbforge-cli/internal/logger"
)

// DefaultDebounce is how long Watch waits after the last event before
// emitting a batch.
const DefaultDebounce = 500 * time.Millisecond

// Ensure Scanner implements the interface.
var _ driven.RepoScanner = (*Scanner)(nil)

// Scanner reads documents from a git working tree.
type Scanner struct {
	root     string
	name     string
	includes []string
	excludes []string
	debounce time.Duration
}

// Option configures the scanner.
type Option func(*Scanner)

// WithName overrides the repository name (defaults to the directory name).
func WithName(name string) Option {
	return func(s *Scanner) {
		if name != "" {
			s.name = name
		}
	}
}

// WithIncludes sets doublestar patterns a file must match to be scanned.
// Empty means every file matches.
func WithIncludes(patterns []string) Option {
	return func(s *Scanner) { s.includes = patterns }
}

// WithExcludes sets doublestar patterns that remove files from the scan.
func WithExcludes(patterns []string) Option {
	return func(s *Scanner) { s.excludes = patterns }
}

// WithDebounce sets the watch debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// New creates a scanner rooted at the given repository path.
func New(root string, opts ...Option) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving repository path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, root)
	}

	s := &Scanner{
		root:     abs,
		name:     filepath.Base(abs),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the repository name.
func (s *Scanner) Name() string {
	return s.name
}

// Root returns the absolute repository path.
func (s *Scanner) Root() string {
	return s.root
}

// RemoteURL returns the origin remote in https form, or empty when
// the repository has no remote.
func (s *Scanner) RemoteURL(ctx context.Context) string {
	out, err := s.git(ctx, "remote", "get-url", "origin")
	if err != nil {
		return ""
	}
	return NormalizeRemote(out)
}

// CurrentRevision returns the HEAD commit hash.
func (s *Scanner) CurrentRevision(ctx context.Context) (string, error) {
	out, err := s.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return out, nil
}

// ScanFiles lists tracked files matching the include/exclude patterns.
func (s *Scanner) ScanFiles(ctx context.Context) ([]string, error) {
	out, err := s.git(ctx, "ls-files")
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line != "" && s.matches(line) {
			files = append(files, line)
		}
	}
	return files, nil
}

// ChangedSince diffs the given revision against HEAD and splits the
// result into changed and deleted path sets. Renames count as a
// deletion of the old path and a change of the new one.
func (s *Scanner) ChangedSince(ctx context.Context, revision string) (changed, deleted []string, err error) {
	out, err := s.git(ctx, "diff", "--name-status", revision, "HEAD")
	if err != nil {
		return nil, nil, fmt.Errorf("diffing against %s: %w", revision, err)
	}
	changed, deleted = s.parseNameStatus(out)
	return changed, deleted, nil
}

// ReadFile reads a file relative to the repository root.
func (s *Scanner) ReadFile(_ context.Context, relativePath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, relativePath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", domain.ErrNotFound, relativePath)
		}
		return "", fmt.Errorf("reading %s: %w", relativePath, err)
	}
	return string(data), nil
}

// Watch follows filesystem events under the repository root and emits
// debounced batches of matching relative paths. The channel closes
// when the context is cancelled.
func (s *Scanner) Watch(ctx context.Context) (<-chan []string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	// Watch every directory except .git; fsnotify is not recursive.
	err = filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", s.root, err)
	}

	batches := make(chan []string)
	go s.watchLoop(ctx, watcher, batches)
	return batches, nil
}

func (s *Scanner) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, batches chan<- []string) {
	defer watcher.Close()
	defer close(batches)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := make([]string, 0, len(pending))
		for path := range pending {
			batch = append(batch, path)
		}
		pending = make(map[string]struct{})
		select {
		case batches <- batch:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// New directories need their own watch.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
					continue
				}
			}
			rel, err := filepath.Rel(s.root, event.Name)
			if err != nil || !s.matches(rel) {
				continue
			}
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			flush()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error: %v", err)
		}
	}
}

func (s *Scanner) parseNameStatus(out string) (changed, deleted []string) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		status := fields[0]
		switch {
		case strings.HasPrefix(status, "D"):
			if s.matches(fields[1]) {
				deleted = append(deleted, fields[1])
			}
		case strings.HasPrefix(status, "R"), strings.HasPrefix(status, "C"):
			// R<score>\told\tnew
			if len(fields) < 3 {
				continue
			}
			if strings.HasPrefix(status, "R") && s.matches(fields[1]) {
				deleted = append(deleted, fields[1])
			}
			if s.matches(fields[2]) {
				changed = append(changed, fields[2])
			}
		default:
			if s.matches(fields[1]) {
				changed = append(changed, fields[1])
			}
		}
	}
	return changed, deleted
}

// matches applies include patterns first, then excludes.
func (s *Scanner) matches(relativePath string) bool {
	path := filepath.ToSlash(relativePath)
	if len(s.includes) > 0 {
		included := false
		for _, pattern := range s.includes {
			if ok, _ := doublestar.Match(pattern, path); ok {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, pattern := range s.excludes {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return false
		}
	}
	return true
}

func (s *Scanner) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", s.root}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}

// NormalizeRemote converts ssh and scp-style git remotes to https and
// strips the .git suffix, so remote URLs can serve as link bases.
func NormalizeRemote(remote string) string {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(remote, "ssh://git@"):
		remote = "https://" + strings.TrimPrefix(remote, "ssh://git@")
	case strings.HasPrefix(remote, "git@"):
		// git@host:owner/repo.git -> https://host/owner/repo
		rest := strings.TrimPrefix(remote, "git@")
		if host, path, ok := strings.Cut(rest, ":"); ok {
			remote = "https://" + host + "/" + path
		}
	}
	remote = strings.TrimSuffix(remote, ".git")
	return strings.TrimSuffix(remote, "/")
}
