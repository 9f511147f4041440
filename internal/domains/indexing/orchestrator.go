package indexing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/internal/errs"
	"github.com/gomantics/repochat/libs/gitrepo"
	"github.com/gomantics/repochat/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	ErrFetch       = fmt.Errorf("%w: fetch failed", errs.ErrTransient)
	ErrBuild       = fmt.Errorf("%w: graph build failed", errs.ErrTransient)
	ErrNotInactive = fmt.Errorf("%w: repository is not inactive", errs.ErrConflict)
)

// Fetcher materializes a repository's content
type Fetcher interface {
	Fetch(ctx context.Context, repo repos.Repository) (*gitrepo.Snapshot, error)
}

// Builder ingests snapshots into the knowledge graph. Discard removes
// whatever a build wrote for a repository, including partial builds.
type Builder interface {
	Build(ctx context.Context, repoID string, snap *gitrepo.Snapshot) error
	Discard(ctx context.Context, repoID string) error
}

// Policy bounds retries and concurrency of sync jobs
type Policy struct {
	MaxRetries        int64
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	MaxConcurrentJobs int64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		BackoffBase:       500 * time.Millisecond,
		BackoffCap:        10 * time.Second,
		MaxConcurrentJobs: 2,
	}
}

// Orchestrator drives repositories through fetch and graph build
type Orchestrator struct {
	l       *zap.Logger
	reg     *repos.Registry
	fetcher Fetcher
	builder Builder
	policy  Policy
	sem     *semaphore.Weighted
	sleep   func(ctx context.Context, d time.Duration) error

	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. Jobs run until they finish or
// Stop is called.
func NewOrchestrator(l *zap.Logger, reg *repos.Registry, fetcher Fetcher, builder Builder, policy Policy) *Orchestrator {
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	base, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		l:        l.Named("indexing"),
		reg:      reg,
		fetcher:  fetcher,
		builder:  builder,
		policy:   policy,
		sem:      semaphore.NewWeighted(max(policy.MaxConcurrentJobs, 1)),
		sleep:    sleepCtx,
		base:     base,
		shutdown: cancel,
	}
}

// Sync starts a sync job for repository id and returns without waiting for
// it. The returned job's Done channel closes when the job ends.
func (o *Orchestrator) Sync(ctx context.Context, id string) (*repos.Job, error) {
	job, err := o.reg.AcquireJob(o.base, id)
	if err != nil {
		return nil, err
	}

	if _, err := o.reg.Transition(ctx, job, repos.StateSyncing, ""); err != nil {
		o.reg.ReleaseJob(job)
		return nil, err
	}

	o.start(job)
	return job, nil
}

// Activate resumes an inactive repository
func (o *Orchestrator) Activate(ctx context.Context, id string) (*repos.Job, error) {
	repo, err := o.reg.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if repo.State != repos.StateInactive {
		return nil, ErrNotInactive
	}
	return o.Sync(ctx, id)
}

// Deactivate pauses a repository. A running job is cancelled and waited for;
// partial graph content it wrote is discarded.
func (o *Orchestrator) Deactivate(ctx context.Context, id string) (*repos.Repository, error) {
	if job, ok := o.reg.RunningJob(id); ok {
		job.Cancel()
		select {
		case <-job.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	job, err := o.reg.AcquireJob(o.base, id)
	if err != nil {
		return nil, err
	}
	defer o.reg.ReleaseJob(job)

	repo, err := o.reg.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if repo.State == repos.StateInactive {
		return repo, nil
	}
	return o.reg.Transition(ctx, job, repos.StateInactive, "")
}

// Recover restarts repositories left in StateSyncing by an earlier process.
// Their partial graph content is discarded first.
func (o *Orchestrator) Recover(ctx context.Context) error {
	stuck, err := o.reg.ListByState(ctx, repos.StateSyncing)
	if err != nil {
		return err
	}

	for _, repo := range stuck {
		job, err := o.reg.AcquireJob(o.base, repo.ID)
		if errors.Is(err, repos.ErrSyncInProgress) {
			continue
		}
		if err != nil {
			return err
		}

		if err := o.builder.Discard(ctx, repo.ID); err != nil {
			o.l.Warn("failed to discard partial graph content", zap.String("repo_id", repo.ID), zap.Error(err))
		}

		o.l.Info("resuming interrupted sync", zap.String("repo_id", repo.ID))
		o.start(job)
	}
	return nil
}

// Stop interrupts running jobs without cancelling them: their repositories
// stay in StateSyncing for Recover to pick up.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.shutdown()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) start(job *repos.Job) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(job)
	}()
}

func (o *Orchestrator) run(job *repos.Job) {
	defer o.reg.ReleaseJob(job)

	ctx := job.Context()
	l := o.l.With(zap.String("repo_id", job.RepositoryID))
	started := time.Now()
	defer func() {
		metrics.SyncDuration.Observe(time.Since(started).Seconds())
	}()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.interrupted(job, l)
		return
	}
	defer o.sem.Release(1)

	for {
		if ctx.Err() != nil {
			o.interrupted(job, l)
			return
		}

		err := o.attempt(ctx, job)
		if err == nil {
			_, err = o.reg.Transition(ctx, job, repos.StateActive, "")
			if err == nil {
				metrics.SyncOutcomes.WithLabelValues(string(repos.StateActive)).Inc()
				l.Info("sync completed", zap.Int64("failed_attempts", job.Attempts()))
				return
			}
			if errors.Is(err, repos.ErrJobCancelled) {
				o.interrupted(job, l)
				return
			}
			l.Error("failed to record sync success", zap.Error(err))
			return
		}

		if ctx.Err() != nil {
			o.interrupted(job, l)
			return
		}

		n := job.Attempt()
		l.Warn("sync attempt failed", zap.Int64("attempt", n), zap.Error(err))

		if n >= o.policy.MaxRetries {
			if _, terr := o.reg.Transition(ctx, job, repos.StateError, err.Error()); terr != nil {
				if errors.Is(terr, repos.ErrJobCancelled) {
					o.interrupted(job, l)
					return
				}
				l.Error("failed to record sync failure", zap.Error(terr))
				return
			}
			metrics.SyncOutcomes.WithLabelValues(string(repos.StateError)).Inc()
			l.Error("sync gave up", zap.Int64("attempts", n), zap.Error(err))
			return
		}

		if err := o.sleep(ctx, Backoff(o.policy.BackoffBase, o.policy.BackoffCap, n)); err != nil {
			o.interrupted(job, l)
			return
		}
	}
}

func (o *Orchestrator) attempt(ctx context.Context, job *repos.Job) error {
	repo, err := o.reg.Get(ctx, job.RepositoryID)
	if err != nil {
		return err
	}

	snap, err := o.fetcher.Fetch(ctx, *repo)
	if err != nil {
		metrics.SyncAttempts.WithLabelValues("fetch_error").Inc()
		if errors.Is(err, ErrFetch) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := o.builder.Build(ctx, repo.ID, snap); err != nil {
		metrics.SyncAttempts.WithLabelValues("build_error").Inc()
		if errors.Is(err, ErrBuild) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrBuild, err)
	}

	metrics.SyncAttempts.WithLabelValues("ok").Inc()
	return nil
}

// interrupted ends a job whose context is done. A requested cancellation
// discards partial graph content and deactivates the repository; a shutdown
// leaves the repository syncing.
func (o *Orchestrator) interrupted(job *repos.Job, l *zap.Logger) {
	if !job.CancelRequested() {
		metrics.SyncOutcomes.WithLabelValues("interrupted").Inc()
		l.Info("sync interrupted by shutdown")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := o.builder.Discard(ctx, job.RepositoryID); err != nil {
		l.Warn("failed to discard partial graph content", zap.Error(err))
	}

	if _, err := o.reg.Transition(ctx, job, repos.StateInactive, ""); err != nil {
		l.Error("failed to deactivate cancelled repository", zap.Error(err))
		return
	}
	metrics.SyncOutcomes.WithLabelValues(string(repos.StateInactive)).Inc()
	l.Info("sync cancelled")
}

// GitFetcher adapts a gitrepo.Fetcher to the orchestrator
func GitFetcher(f *gitrepo.Fetcher) Fetcher {
	return gitFetcher{f}
}

type gitFetcher struct {
	f *gitrepo.Fetcher
}

func (g gitFetcher) Fetch(ctx context.Context, repo repos.Repository) (*gitrepo.Snapshot, error) {
	return g.f.Fetch(ctx, gitrepo.Request{
		ID:     repo.ID,
		Source: repo.Source,
		Branch: repo.Branch,
		Remote: repos.IsRemote(repo.Source),
	})
}
