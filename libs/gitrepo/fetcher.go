package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

// Request identifies what to fetch
type Request struct {
	ID     string
	Source string // normalized URL or absolute path
	Branch string
	Remote bool // Source is a URL to clone
}

// Snapshot is the fetched content of a repository on local disk
type Snapshot struct {
	RepositoryID string
	Source       string
	Root         string
	CommitSHA    string
	Branch       string
	Files        []string
	Cloned       bool
}

// Fetcher materializes repositories: remote URLs are shallow-cloned under
// cloneDir, local directories are read in place.
type Fetcher struct {
	l           *zap.Logger
	cloneDir    string
	maxFileSize int64
	providers   *Registry
}

func NewFetcher(l *zap.Logger, cloneDir string, maxFileSize int64, providers *Registry) *Fetcher {
	if providers == nil {
		providers = NewRegistry()
	}
	return &Fetcher{
		l:           l.Named("gitrepo"),
		cloneDir:    cloneDir,
		maxFileSize: maxFileSize,
		providers:   providers,
	}
}

// Fetch returns a snapshot of req's current content
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Snapshot, error) {
	var (
		snap *Snapshot
		err  error
	)
	if req.Remote {
		snap, err = f.clone(ctx, req)
	} else {
		snap, err = f.open(req)
	}
	if err != nil {
		return nil, err
	}

	snap.Files, err = ListFiles(snap.Root, f.maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	f.l.Info("repository fetched",
		zap.String("repo_id", req.ID),
		zap.String("commit", snap.CommitSHA),
		zap.Int("files", len(snap.Files)),
	)
	return snap, nil
}

func (f *Fetcher) clone(ctx context.Context, req Request) (*Snapshot, error) {
	provider := f.providers.Detect(req.Source)
	dest := f.RepoPath(req.ID)

	// re-syncs start from a fresh shallow clone
	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("failed to clear clone dir: %w", err)
	}

	opts := &git.CloneOptions{
		URL:          provider.CloneURL(req.Source),
		Depth:        1,
		SingleBranch: true,
		Auth:         provider.Auth(),
	}
	if req.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(req.Branch)
	}

	f.l.Info("cloning repository",
		zap.String("repo_id", req.ID),
		zap.String("provider", provider.Name()),
		zap.String("url", req.Source),
		zap.String("branch", req.Branch),
	)

	repo, err := git.PlainCloneContext(ctx, dest, false, opts)
	if err != nil {
		_ = os.RemoveAll(dest)
		return nil, fmt.Errorf("failed to clone %s: %w", req.Source, err)
	}

	snap := &Snapshot{RepositoryID: req.ID, Source: req.Source, Root: dest, Cloned: true}
	if err := readHead(repo, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (f *Fetcher) open(req Request) (*Snapshot, error) {
	info, err := os.Stat(req.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", req.Source, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", req.Source)
	}

	snap := &Snapshot{RepositoryID: req.ID, Source: req.Source, Root: req.Source, Branch: req.Branch}

	repo, err := git.PlainOpenWithOptions(req.Source, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		// plain directory, no commit to report
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository %s: %w", req.Source, err)
	}
	if err := readHead(repo, snap); err != nil {
		f.l.Debug("local repository has no HEAD", zap.String("path", req.Source), zap.Error(err))
	}
	return snap, nil
}

func readHead(repo *git.Repository, snap *Snapshot) error {
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("failed to get HEAD: %w", err)
	}
	snap.CommitSHA = head.Hash().String()
	if head.Name().IsBranch() {
		snap.Branch = head.Name().Short()
	}
	return nil
}

// RepoPath returns where the clone of repository id lives
func (f *Fetcher) RepoPath(id string) string {
	return filepath.Join(f.cloneDir, id)
}

// Cleanup removes the clone of repository id, if any
func (f *Fetcher) Cleanup(_ context.Context, id string) error {
	return os.RemoveAll(f.RepoPath(id))
}
