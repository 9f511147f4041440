package repos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gomantics/repochat/internal/errs"
	"go.uber.org/zap"
)

var (
	ErrNotFound       = errors.New("repository not found")
	ErrAlreadyExists  = fmt.Errorf("%w: repository already exists", errs.ErrValidation)
	ErrInvalidSource  = fmt.Errorf("%w: invalid repository source", errs.ErrValidation)
	ErrSyncInProgress = fmt.Errorf("%w: sync already in progress", errs.ErrConflict)
	ErrRemoving       = fmt.Errorf("%w: repository is being removed", errs.ErrConflict)
	ErrNotSlotHolder  = errors.New("caller does not hold the repository job slot")
	ErrJobCancelled   = errors.New("sync job was cancelled")
)

// Registry owns repository records and their job slots. State changes go
// through Transition, which only the current slot holder may call.
type Registry struct {
	l     *zap.Logger
	store Store
	now   func() time.Time

	mu        sync.Mutex
	jobs      map[string]*Job
	removing  map[string]bool
	observers []Observer
	hooks     []RemovalHook
}

// NewRegistry creates a registry over store
func NewRegistry(l *zap.Logger, store Store) *Registry {
	return &Registry{
		l:        l.Named("repos"),
		store:    store,
		now:      time.Now,
		jobs:     make(map[string]*Job),
		removing: make(map[string]bool),
	}
}

// Observe registers o for change notifications.
func (r *Registry) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// OnRemove registers a hook run before a record is deleted, e.g. to purge
// graph content or clone directories. Hook failures are logged.
func (r *Registry) OnRemove(h RemovalHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

// Add registers a repository in StatePending
func (r *Registry) Add(ctx context.Context, params AddParams) (*Repository, error) {
	source, err := NormalizeSource(params.Source)
	if err != nil {
		return nil, err
	}
	id := IDFor(source)

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.GetRepository(ctx, id)
	if err == nil {
		return existing, ErrAlreadyExists
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errs.Storage(err)
	}

	now := r.now().Unix()
	repo := Repository{
		ID:      id,
		Source:  source,
		Branch:  params.Branch,
		State:   StatePending,
		Version: 1,
		Created: now,
		Updated: now,
	}
	if err := r.store.PutRepository(ctx, repo); err != nil {
		return nil, errs.Storage(err)
	}

	r.l.Info("repository added", zap.String("repo_id", id), zap.String("source", source))
	r.notifyChanged(repo)
	return &repo, nil
}

// AddOutcome is the result of registering one item of a batch
type AddOutcome struct {
	Params     AddParams
	Repository *Repository
	Err        error
}

// AddBatch registers every item in order. A failing item does not stop the
// others; each outcome carries its own error. Items left when ctx ends fail
// with the context error.
func (r *Registry) AddBatch(ctx context.Context, items []AddParams) []AddOutcome {
	out := make([]AddOutcome, len(items))
	failed := 0
	for i, params := range items {
		out[i].Params = params
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			failed++
			continue
		}
		repo, err := r.Add(ctx, params)
		if err != nil {
			out[i].Err = err
			failed++
			continue
		}
		out[i].Repository = repo
	}
	r.l.Info("repository batch added", zap.Int("items", len(items)), zap.Int("failed", failed))
	return out
}

// Get retrieves a repository by id
func (r *Registry) Get(ctx context.Context, id string) (*Repository, error) {
	repo, err := r.store.GetRepository(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errs.Storage(err)
	}
	return repo, nil
}

// List returns all repositories in insertion order
func (r *Registry) List(ctx context.Context) ([]Repository, error) {
	list, err := r.store.ListRepositories(ctx)
	if err != nil {
		return nil, errs.Storage(err)
	}
	return list, nil
}

// ListByState returns repositories currently in state, in insertion order.
func (r *Registry) ListByState(ctx context.Context, state State) ([]Repository, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Repository
	for _, repo := range all {
		if repo.State == state {
			out = append(out, repo)
		}
	}
	return out, nil
}

// Remove deregisters a repository. When a sync job holds the slot the job is
// cancelled and the record is deleted after the job releases it, in which
// case RemovePending is returned.
func (r *Registry) Remove(ctx context.Context, id string) (RemoveStatus, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.removing[id] {
		r.mu.Unlock()
		return RemovePending, nil
	}
	r.removing[id] = true
	job := r.jobs[id]
	r.mu.Unlock()

	if job != nil {
		r.l.Info("cancelling sync before removal", zap.String("repo_id", id))
		job.Cancel()
		go func() {
			<-job.Done()
			if err := r.finishRemoval(context.Background(), id); err != nil {
				r.l.Error("failed to remove repository", zap.String("repo_id", id), zap.Error(err))
			}
		}()
		return RemovePending, nil
	}

	if err := r.finishRemoval(ctx, id); err != nil {
		return "", err
	}
	return RemoveCompleted, nil
}

func (r *Registry) finishRemoval(ctx context.Context, id string) error {
	r.mu.Lock()
	hooks := append([]RemovalHook(nil), r.hooks...)
	r.mu.Unlock()

	for _, h := range hooks {
		if err := h(ctx, id); err != nil {
			r.l.Warn("removal hook failed", zap.String("repo_id", id), zap.Error(err))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.removing, id)

	if err := r.store.DeleteRepository(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return errs.Storage(err)
	}

	r.l.Info("repository removed", zap.String("repo_id", id))
	for _, o := range r.observers {
		o.RepositoryRemoved(id)
	}
	return nil
}

// IsRemoving reports whether a removal is waiting for the job slot.
func (r *Registry) IsRemoving(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removing[id]
}

// AcquireJob takes the exclusive sync slot for id. The job's context derives
// from parent.
func (r *Registry) AcquireJob(parent context.Context, id string) (*Job, error) {
	if _, err := r.Get(parent, id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removing[id] {
		return nil, ErrRemoving
	}
	if _, held := r.jobs[id]; held {
		return nil, ErrSyncInProgress
	}

	job := newJob(parent, id, r.now())
	r.jobs[id] = job
	return job, nil
}

// ReleaseJob frees the slot held by job. Releasing twice is a no-op.
func (r *Registry) ReleaseJob(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.jobs[job.RepositoryID] != job {
		return
	}
	delete(r.jobs, job.RepositoryID)
	job.cancel()
	close(job.done)
}

// RunningJob returns the job holding the slot for id, if any.
func (r *Registry) RunningJob(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// CancelJob requests cancellation of the job holding the slot for id and
// reports whether there was one. The job itself writes the final state.
func (r *Registry) CancelJob(id string) bool {
	job, ok := r.RunningJob(id)
	if ok {
		job.Cancel()
	}
	return ok
}

// Transition moves the repository held by job to state to. cause is the
// error detail recorded when entering StateError.
func (r *Registry) Transition(ctx context.Context, job *Job, to State, cause string) (*Repository, error) {
	if job == nil {
		return nil, ErrNotSlotHolder
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.jobs[job.RepositoryID] != job {
		return nil, ErrNotSlotHolder
	}
	// a cancelled job may only stop
	if job.CancelRequested() && to != StateInactive {
		return nil, ErrJobCancelled
	}

	current, err := r.store.GetRepository(ctx, job.RepositoryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errs.Storage(err)
	}

	now := r.now()
	next, err := Apply(*current, to, cause, now)
	if err != nil {
		return current, err
	}
	next.Version++
	next.Updated = now.Unix()

	if err := r.store.PutRepository(ctx, next); err != nil {
		return current, errs.Storage(err)
	}

	r.l.Info("repository state changed",
		zap.String("repo_id", next.ID),
		zap.String("from", current.State.String()),
		zap.String("to", next.State.String()),
	)
	r.notifyChanged(next)
	return &next, nil
}

// notifyChanged must be called with r.mu held.
func (r *Registry) notifyChanged(repo Repository) {
	for _, o := range r.observers {
		o.RepositoryChanged(repo)
	}
}
