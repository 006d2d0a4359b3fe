// Package rolesource fetches externally maintained role bundles: a git
// repository of YAML role definitions cloned into a local cache and parsed
// into command roles.
package rolesource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"gopkg.in/yaml.v3"

	"github.com/flotilla-dev/flotilla/internal/logger"
	"github.com/flotilla-dev/flotilla/internal/role"
	fleeterrors "github.com/flotilla-dev/flotilla/pkg/errors"
)

// Source is one remote bundle of role definitions.
type Source struct {
	url      string
	branch   string
	depth    int
	cacheDir string
	logger   *logger.Logger
}

// Option customizes a Source.
type Option func(*Source)

// WithBranch pins the bundle to a branch instead of the remote default.
func WithBranch(branch string) Option {
	return func(s *Source) { s.branch = branch }
}

// WithDepth limits clone history.
func WithDepth(depth int) Option {
	return func(s *Source) { s.depth = depth }
}

// WithCacheDir overrides where bundles are checked out.
func WithCacheDir(dir string) Option {
	return func(s *Source) { s.cacheDir = dir }
}

// WithLogger attaches a logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Source) { s.logger = log }
}

// New creates a source for the given repository URL.
func New(url string, opts ...Option) *Source {
	s := &Source{url: url, depth: 1}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		s.cacheDir = filepath.Join(base, "flotilla", "roles")
	}
	return s
}

// Dir returns the local checkout path for this source.
func (s *Source) Dir() string {
	return filepath.Join(s.cacheDir, repoDirName(s.url))
}

// Sync clones the bundle on first use and pulls on subsequent runs. It
// returns the checkout directory.
func (s *Source) Sync(ctx context.Context) (string, error) {
	dir := s.Dir()

	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return dir, s.clone(ctx, dir)
	}
	if err != nil {
		return "", fmt.Errorf("open role bundle %s: %w", dir, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("role bundle worktree: %w", err)
	}
	err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", fmt.Errorf("update role bundle %s: %w", s.url, err)
	}
	s.log("role bundle up to date")
	return dir, nil
}

func (s *Source) clone(ctx context.Context, dir string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	opts := &git.CloneOptions{URL: s.url}
	if s.depth > 0 {
		opts.Depth = s.depth
	}
	if s.branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.branch)
		opts.SingleBranch = true
	}

	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("clone role bundle %s: %w", s.url, err)
	}
	s.log("role bundle cloned")
	return nil
}

// Load syncs the bundle, parses every YAML role definition in its root and
// registers the resulting roles. It returns the number of roles registered.
func (s *Source) Load(ctx context.Context, reg *role.Registry) (int, error) {
	dir, err := s.Sync(ctx)
	if err != nil {
		return 0, err
	}
	return LoadDir(dir, reg)
}

// LoadDir parses role definitions from a directory without touching the
// network. Files are processed in name order so registration conflicts are
// deterministic.
func LoadDir(dir string, reg *role.Registry) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read role bundle %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	count := 0
	for _, name := range names {
		r, err := ParseRoleFile(filepath.Join(dir, name))
		if err != nil {
			return count, err
		}
		if err := reg.Register(r); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

type roleFile struct {
	Name  string      `yaml:"name"`
	Units []role.Unit `yaml:"units"`
}

// ParseRoleFile reads one YAML role definition into a command role.
func ParseRoleFile(path string) (role.Role, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fleeterrors.NewParseError(path, 0, err)
	}

	var rf roleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fleeterrors.NewParseError(path, 0, err)
	}

	if strings.TrimSpace(rf.Name) == "" {
		return nil, fleeterrors.NewValidationError("role.name", fmt.Sprintf("%s: role name is required", path), nil)
	}
	if len(rf.Units) == 0 {
		return nil, fleeterrors.NewValidationError("role.units", fmt.Sprintf("role %q declares no units", rf.Name), nil)
	}
	for i, unit := range rf.Units {
		if strings.TrimSpace(unit.Name) == "" {
			return nil, fleeterrors.NewValidationError("role.units", fmt.Sprintf("role %q: unit %d has no name", rf.Name, i+1), nil)
		}
		if strings.TrimSpace(unit.Apply) == "" {
			return nil, fleeterrors.NewValidationError("role.units", fmt.Sprintf("role %q: unit %q has no apply command", rf.Name, unit.Name), nil)
		}
	}

	return role.NewCommandRole(rf.Name, rf.Units...), nil
}

func (s *Source) log(msg string) {
	if s.logger != nil {
		s.logger.WithFields(map[string]any{"url": s.url}).Debug(msg)
	}
}

// repoDirName derives a filesystem-safe directory name from a repo URL.
func repoDirName(url string) string {
	name := strings.TrimSuffix(url, ".git")
	if idx := strings.LastIndexAny(name, "/:"); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" {
		name = "bundle"
	}
	return name
}
