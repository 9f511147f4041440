package repos_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/internal/errs"
	"github.com/gomantics/repochat/internal/storage/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu      sync.Mutex
	changes []repos.Repository
	removed []string
}

func (r *recorder) RepositoryChanged(repo repos.Repository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, repo)
}

func (r *recorder) RepositoryRemoved(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func (r *recorder) removedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

func newRegistry(t *testing.T) (*repos.Registry, *recorder) {
	t.Helper()
	reg := repos.NewRegistry(zap.NewNop(), memstore.New())
	rec := &recorder{}
	reg.Observe(rec)
	return reg, rec
}

func TestAdd(t *testing.T) {
	ctx := context.Background()
	reg, rec := newRegistry(t)

	repo, err := reg.Add(ctx, repos.AddParams{Source: "https://github.com/a/b.git", Branch: "dev"})
	require.NoError(t, err)
	assert.Equal(t, repos.StatePending, repo.State)
	assert.Equal(t, "https://github.com/a/b", repo.Source)
	assert.Equal(t, "dev", repo.Branch)
	assert.Empty(t, repo.LastError)
	assert.Nil(t, repo.LastSyncedAt)
	assert.Equal(t, repos.IDFor(repo.Source), repo.ID)

	got, err := reg.Get(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, repo, got)

	require.Len(t, rec.changes, 1)
	assert.Equal(t, repos.StatePending, rec.changes[0].State)
}

func TestAddDuplicate(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	first, err := reg.Add(ctx, repos.AddParams{Source: "https://github.com/a/b"})
	require.NoError(t, err)

	existing, err := reg.Add(ctx, repos.AddParams{Source: "https://github.com/a/b.git/"})
	require.ErrorIs(t, err, repos.ErrAlreadyExists)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, first.ID, existing.ID)
}

func TestAddInvalidSource(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Add(context.Background(), repos.AddParams{Source: "ftp://x/y"})
	assert.ErrorIs(t, err, repos.ErrInvalidSource)
}

func TestAddBatch(t *testing.T) {
	ctx := context.Background()
	reg, rec := newRegistry(t)

	_, err := reg.Add(ctx, repos.AddParams{Source: "https://h/a/dup"})
	require.NoError(t, err)

	out := reg.AddBatch(ctx, []repos.AddParams{
		{Source: "https://h/a/one", Branch: "main"},
		{Source: "https://h/a/dup.git"},
		{Source: "ftp://h/a/bad"},
		{Source: "https://h/a/two"},
	})
	require.Len(t, out, 4)

	require.NoError(t, out[0].Err)
	assert.Equal(t, "main", out[0].Repository.Branch)
	assert.ErrorIs(t, out[1].Err, repos.ErrAlreadyExists)
	assert.Nil(t, out[1].Repository)
	assert.ErrorIs(t, out[2].Err, repos.ErrInvalidSource)
	require.NoError(t, out[3].Err)
	assert.Equal(t, "https://h/a/two", out[3].Repository.Source)
	assert.Equal(t, "ftp://h/a/bad", out[2].Params.Source)

	list, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Len(t, rec.changes, 3)
}

func TestAddBatchStorageAndCancel(t *testing.T) {
	store := memstore.New()
	reg := repos.NewRegistry(zap.NewNop(), store)
	require.NoError(t, store.Close())

	out := reg.AddBatch(context.Background(), []repos.AddParams{{Source: "https://h/a/b"}})
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, errs.ErrStorageUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reg, _ = newRegistry(t)
	out = reg.AddBatch(ctx, []repos.AddParams{{Source: "https://h/a/b"}, {Source: "https://h/a/c"}})
	for _, o := range out {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestGetNotFound(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repos.ErrNotFound)
}

func TestListInsertionOrder(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	sources := []string{"https://h/z/z", "https://h/a/a", "https://h/m/m"}
	for _, s := range sources {
		_, err := reg.Add(ctx, repos.AddParams{Source: s})
		require.NoError(t, err)
	}

	// updates must not reorder
	first := repos.IDFor(sources[0])
	job, err := reg.AcquireJob(ctx, first)
	require.NoError(t, err)
	_, err = reg.Transition(ctx, job, repos.StateSyncing, "")
	require.NoError(t, err)
	reg.ReleaseJob(job)

	list, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, s := range sources {
		assert.Equal(t, s, list[i].Source)
	}
}

func TestJobSlotIsExclusive(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	repo, err := reg.Add(ctx, repos.AddParams{Source: "https://h/a/b"})
	require.NoError(t, err)

	job, err := reg.AcquireJob(ctx, repo.ID)
	require.NoError(t, err)

	_, err = reg.AcquireJob(ctx, repo.ID)
	assert.ErrorIs(t, err, repos.ErrSyncInProgress)

	reg.ReleaseJob(job)
	select {
	case <-job.Done():
	default:
		t.Fatal("job done channel not closed on release")
	}

	again, err := reg.AcquireJob(ctx, repo.ID)
	require.NoError(t, err)
	reg.ReleaseJob(again)
	reg.ReleaseJob(again)
}

func TestCancelJob(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	repo, err := reg.Add(ctx, repos.AddParams{Source: "https://h/a/b"})
	require.NoError(t, err)

	assert.False(t, reg.CancelJob(repo.ID))

	job, err := reg.AcquireJob(ctx, repo.ID)
	require.NoError(t, err)
	defer reg.ReleaseJob(job)

	assert.True(t, reg.CancelJob(repo.ID))
	assert.True(t, job.CancelRequested())
	assert.Error(t, job.Context().Err())

	_, err = reg.Transition(ctx, job, repos.StateSyncing, "")
	assert.ErrorIs(t, err, repos.ErrJobCancelled)
}

func TestTransitionRequiresSlot(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	repo, err := reg.Add(ctx, repos.AddParams{Source: "https://h/a/b"})
	require.NoError(t, err)

	_, err = reg.Transition(ctx, nil, repos.StateSyncing, "")
	assert.ErrorIs(t, err, repos.ErrNotSlotHolder)

	job, err := reg.AcquireJob(ctx, repo.ID)
	require.NoError(t, err)
	reg.ReleaseJob(job)

	_, err = reg.Transition(ctx, job, repos.StateSyncing, "")
	assert.ErrorIs(t, err, repos.ErrNotSlotHolder)
}

func TestTransitionPersistsAndVersions(t *testing.T) {
	ctx := context.Background()
	reg, rec := newRegistry(t)
	repo, err := reg.Add(ctx, repos.AddParams{Source: "https://h/a/b"})
	require.NoError(t, err)

	job, err := reg.AcquireJob(ctx, repo.ID)
	require.NoError(t, err)
	defer reg.ReleaseJob(job)

	_, err = reg.Transition(ctx, job, repos.StateSyncing, "")
	require.NoError(t, err)
	_, err = reg.Transition(ctx, job, repos.StateError, "fetch failed")
	require.NoError(t, err)

	_, err = reg.Transition(ctx, job, repos.StateActive, "")
	require.ErrorIs(t, err, repos.ErrInvalidTransition)

	got, err := reg.Get(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, repos.StateError, got.State)
	assert.Equal(t, "fetch failed", got.LastError)
	assert.Equal(t, int64(3), got.Version)

	require.Len(t, rec.changes, 3)
	for i, c := range rec.changes {
		assert.Equal(t, int64(i+1), c.Version)
	}
}

func TestRemoveWithoutJob(t *testing.T) {
	ctx := context.Background()
	reg, rec := newRegistry(t)
	repo, err := reg.Add(ctx, repos.AddParams{Source: "https://h/a/b"})
	require.NoError(t, err)

	var hooked []string
	reg.OnRemove(func(_ context.Context, id string) error {
		hooked = append(hooked, id)
		return errors.New("purge failed")
	})

	status, err := reg.Remove(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, repos.RemoveCompleted, status)
	assert.Equal(t, []string{repo.ID}, hooked)
	assert.Equal(t, []string{repo.ID}, rec.removedIDs())

	_, err = reg.Get(ctx, repo.ID)
	assert.ErrorIs(t, err, repos.ErrNotFound)

	_, err = reg.Remove(ctx, repo.ID)
	assert.ErrorIs(t, err, repos.ErrNotFound)
}

func TestRemoveWaitsForJob(t *testing.T) {
	ctx := context.Background()
	reg, rec := newRegistry(t)
	repo, err := reg.Add(ctx, repos.AddParams{Source: "https://h/a/b"})
	require.NoError(t, err)

	job, err := reg.AcquireJob(ctx, repo.ID)
	require.NoError(t, err)

	status, err := reg.Remove(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, repos.RemovePending, status)
	assert.True(t, job.CancelRequested())
	assert.True(t, reg.IsRemoving(repo.ID))

	status, err = reg.Remove(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, repos.RemovePending, status)

	_, err = reg.AcquireJob(ctx, repo.ID)
	assert.ErrorIs(t, err, repos.ErrRemoving)

	// the record survives until the job lets go
	_, err = reg.Get(ctx, repo.ID)
	require.NoError(t, err)

	reg.ReleaseJob(job)

	require.Eventually(t, func() bool {
		_, err := reg.Get(ctx, repo.ID)
		return errors.Is(err, repos.ErrNotFound)
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(rec.removedIDs()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, reg.IsRemoving(repo.ID))
}

func TestStorageFailureIsWrapped(t *testing.T) {
	store := memstore.New()
	reg := repos.NewRegistry(zap.NewNop(), store)
	require.NoError(t, store.Close())

	_, err := reg.Add(context.Background(), repos.AddParams{Source: "https://h/a/b"})
	assert.ErrorIs(t, err, errs.ErrStorageUnavailable)

	_, err = reg.List(context.Background())
	assert.ErrorIs(t, err, errs.ErrStorageUnavailable)
}
