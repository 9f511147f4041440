package indexing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/internal/errs"
	"github.com/gomantics/repochat/internal/storage/memstore"
	"github.com/gomantics/repochat/libs/gitrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	calls atomic.Int64
	fail  func(call int64) error
}

func (f *fakeFetcher) Fetch(_ context.Context, repo repos.Repository) (*gitrepo.Snapshot, error) {
	n := f.calls.Add(1)
	if f.fail != nil {
		if err := f.fail(n); err != nil {
			return nil, err
		}
	}
	return &gitrepo.Snapshot{RepositoryID: repo.ID, Root: repo.Source}, nil
}

type fakeBuilder struct {
	mu       sync.Mutex
	calls    int
	content  map[string]bool
	discards []string
	build    func(ctx context.Context, call int) error

	inflight    atomic.Int64
	maxInflight atomic.Int64
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{content: make(map[string]bool)}
}

func (b *fakeBuilder) Build(ctx context.Context, repoID string, _ *gitrepo.Snapshot) error {
	n := b.inflight.Add(1)
	defer b.inflight.Add(-1)
	for {
		m := b.maxInflight.Load()
		if n <= m || b.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	b.mu.Lock()
	b.calls++
	call := b.calls
	b.content[repoID] = true // partial writes become visible immediately
	b.mu.Unlock()

	if b.build != nil {
		return b.build(ctx, call)
	}
	return nil
}

func (b *fakeBuilder) Discard(_ context.Context, repoID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.content, repoID)
	b.discards = append(b.discards, repoID)
	return nil
}

func (b *fakeBuilder) hasContent(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content[id]
}

func (b *fakeBuilder) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *fakeBuilder) discarded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.discards...)
}

type stateLog struct {
	mu     sync.Mutex
	states map[string][]repos.State
}

func (s *stateLog) RepositoryChanged(repo repos.Repository) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[repo.ID] = append(s.states[repo.ID], repo.State)
}

func (s *stateLog) RepositoryRemoved(string) {}

func (s *stateLog) of(id string) []repos.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repos.State(nil), s.states[id]...)
}

type harness struct {
	reg     *repos.Registry
	fetcher *fakeFetcher
	builder *fakeBuilder
	orch    *Orchestrator
	log     *stateLog

	mu     sync.Mutex
	delays []time.Duration
}

const d0 = 100 * time.Millisecond

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		reg:     repos.NewRegistry(zap.NewNop(), memstore.New()),
		fetcher: &fakeFetcher{},
		builder: newFakeBuilder(),
		log:     &stateLog{states: make(map[string][]repos.State)},
	}
	h.reg.Observe(h.log)
	h.orch = NewOrchestrator(zap.NewNop(), h.reg, h.fetcher, h.builder, Policy{
		MaxRetries:        3,
		BackoffBase:       d0,
		BackoffCap:        time.Second,
		MaxConcurrentJobs: 4,
	})
	h.orch.sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.delays = append(h.delays, d)
		h.mu.Unlock()
		return ctx.Err()
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.orch.Stop(ctx)
	})
	return h
}

func (h *harness) add(t *testing.T, source string) *repos.Repository {
	t.Helper()
	repo, err := h.reg.Add(context.Background(), repos.AddParams{Source: source})
	require.NoError(t, err)
	return repo
}

func (h *harness) get(t *testing.T, id string) *repos.Repository {
	t.Helper()
	repo, err := h.reg.Get(context.Background(), id)
	require.NoError(t, err)
	return repo
}

func (h *harness) sleeps() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.delays...)
}

func wait(t *testing.T, job *repos.Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sync job did not finish")
	}
}

func TestSyncSucceedsFirstAttempt(t *testing.T) {
	h := newHarness(t)
	r1 := h.add(t, "repo-a")
	assert.Equal(t, repos.StatePending, r1.State)

	job, err := h.orch.Sync(context.Background(), r1.ID)
	require.NoError(t, err)
	wait(t, job)

	got := h.get(t, r1.ID)
	assert.Equal(t, repos.StateActive, got.State)
	assert.NotNil(t, got.LastSyncedAt)
	assert.Empty(t, got.LastError)
	assert.Equal(t, []repos.State{repos.StatePending, repos.StateSyncing, repos.StateActive}, h.log.of(r1.ID))
	assert.Empty(t, h.sleeps())
	assert.Equal(t, int64(0), job.Attempts())
}

func TestSyncRetriesThenGivesUp(t *testing.T) {
	h := newHarness(t)
	h.builder.build = func(context.Context, int) error { return errors.New("graph backend unavailable") }
	r := h.add(t, "https://h/a/b")

	job, err := h.orch.Sync(context.Background(), r.ID)
	require.NoError(t, err)
	wait(t, job)

	got := h.get(t, r.ID)
	assert.Equal(t, repos.StateError, got.State)
	assert.Contains(t, got.LastError, "graph backend unavailable")
	assert.Contains(t, got.LastError, "graph build failed")
	assert.Nil(t, got.LastSyncedAt)

	assert.Equal(t, 3, h.builder.callCount())
	assert.Equal(t, int64(3), job.Attempts())
	assert.Equal(t, []time.Duration{d0, 2 * d0}, h.sleeps())
}

func TestSyncRecoversAfterTransientFailures(t *testing.T) {
	h := newHarness(t)
	h.fetcher.fail = func(call int64) error {
		if call < 3 {
			return errors.New("connection reset")
		}
		return nil
	}
	r := h.add(t, "https://h/a/b")

	job, err := h.orch.Sync(context.Background(), r.ID)
	require.NoError(t, err)
	wait(t, job)

	assert.Equal(t, repos.StateActive, h.get(t, r.ID).State)
	assert.Equal(t, []time.Duration{d0, 2 * d0}, h.sleeps())
	assert.Equal(t, 1, h.builder.callCount())
}

func TestRetryFromErrorState(t *testing.T) {
	h := newHarness(t)
	failing := true
	var mu sync.Mutex
	h.builder.build = func(context.Context, int) error {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			return errors.New("boom")
		}
		return nil
	}
	r := h.add(t, "https://h/a/b")

	job, err := h.orch.Sync(context.Background(), r.ID)
	require.NoError(t, err)
	wait(t, job)
	require.Equal(t, repos.StateError, h.get(t, r.ID).State)

	mu.Lock()
	failing = false
	mu.Unlock()

	job, err = h.orch.Sync(context.Background(), r.ID)
	require.NoError(t, err)
	wait(t, job)

	got := h.get(t, r.ID)
	assert.Equal(t, repos.StateActive, got.State)
	assert.Empty(t, got.LastError)
}

func TestSyncIsMutuallyExclusive(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.builder.build = func(ctx context.Context, _ int) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r := h.add(t, "https://h/a/b")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		started  []*repos.Job
		rejected int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := h.orch.Sync(context.Background(), r.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, repos.ErrSyncInProgress)
				assert.ErrorIs(t, err, errs.ErrConflict)
				rejected++
				return
			}
			started = append(started, job)
		}()
	}
	wg.Wait()

	require.Len(t, started, 1)
	assert.Equal(t, 7, rejected)

	close(release)
	wait(t, started[0])
	assert.Equal(t, int64(1), h.builder.maxInflight.Load())
	assert.Equal(t, repos.StateActive, h.get(t, r.ID).State)
}

func TestSyncIllegalFromSyncingWithoutJob(t *testing.T) {
	h := newHarness(t)
	r := h.add(t, "https://h/a/b")

	job, err := h.reg.AcquireJob(context.Background(), r.ID)
	require.NoError(t, err)
	_, err = h.reg.Transition(context.Background(), job, repos.StateSyncing, "")
	require.NoError(t, err)
	h.reg.ReleaseJob(job)

	_, err = h.orch.Sync(context.Background(), r.ID)
	assert.ErrorIs(t, err, repos.ErrInvalidTransition)
	_, held := h.reg.RunningJob(r.ID)
	assert.False(t, held)
}

func blockingBuild(started chan<- struct{}) func(ctx context.Context, _ int) error {
	var once sync.Once
	return func(ctx context.Context, _ int) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}
}

func TestDeactivateCancelsCleanly(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.builder.build = blockingBuild(started)
	r := h.add(t, "https://h/a/b")

	job, err := h.orch.Sync(context.Background(), r.ID)
	require.NoError(t, err)
	<-started
	require.True(t, h.builder.hasContent(r.ID))

	repo, err := h.orch.Deactivate(context.Background(), r.ID)
	require.NoError(t, err)
	wait(t, job)

	assert.Equal(t, repos.StateInactive, repo.State)
	assert.Equal(t, repos.StateInactive, h.get(t, r.ID).State)
	assert.False(t, h.builder.hasContent(r.ID), "partial graph content must be discarded")
	assert.Contains(t, h.builder.discarded(), r.ID)
	assert.NotContains(t, h.log.of(r.ID), repos.StateActive)
	assert.Empty(t, h.sleeps(), "cancellation must not retry")
	assert.Equal(t, 1, h.builder.callCount())
}

func TestRemoveCancelsRunningSync(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.builder.build = blockingBuild(started)
	r := h.add(t, "https://h/a/b")

	job, err := h.orch.Sync(context.Background(), r.ID)
	require.NoError(t, err)
	<-started

	status, err := h.reg.Remove(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, repos.RemovePending, status)

	wait(t, job)
	require.Eventually(t, func() bool {
		_, err := h.reg.Get(context.Background(), r.ID)
		return errors.Is(err, repos.ErrNotFound)
	}, time.Second, 5*time.Millisecond)

	assert.False(t, h.builder.hasContent(r.ID))
	states := h.log.of(r.ID)
	assert.Equal(t, repos.StateInactive, states[len(states)-1])
	assert.NotContains(t, states, repos.StateActive)
}

func TestCancelDuringBackoff(t *testing.T) {
	h := newHarness(t)
	h.builder.build = func(context.Context, int) error { return errors.New("boom") }
	inBackoff := make(chan struct{})
	var once sync.Once
	h.orch.sleep = func(ctx context.Context, _ time.Duration) error {
		once.Do(func() { close(inBackoff) })
		<-ctx.Done()
		return ctx.Err()
	}
	r := h.add(t, "https://h/a/b")

	job, err := h.orch.Sync(context.Background(), r.ID)
	require.NoError(t, err)
	<-inBackoff

	_, err = h.orch.Deactivate(context.Background(), r.ID)
	require.NoError(t, err)
	wait(t, job)

	got := h.get(t, r.ID)
	assert.Equal(t, repos.StateInactive, got.State)
	assert.Empty(t, got.LastError)
	assert.Equal(t, 1, h.builder.callCount())
}

func TestDeactivateIdleAndActivate(t *testing.T) {
	h := newHarness(t)
	r := h.add(t, "https://h/a/b")

	_, err := h.orch.Activate(context.Background(), r.ID)
	assert.ErrorIs(t, err, ErrNotInactive)

	repo, err := h.orch.Deactivate(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, repos.StateInactive, repo.State)

	// deactivating twice is harmless
	repo, err = h.orch.Deactivate(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, repos.StateInactive, repo.State)

	job, err := h.orch.Activate(context.Background(), r.ID)
	require.NoError(t, err)
	wait(t, job)
	assert.Equal(t, repos.StateActive, h.get(t, r.ID).State)
}

func TestShutdownLeavesSyncingAndRecoverResumes(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.builder.build = blockingBuild(started)
	r := h.add(t, "https://h/a/b")

	job, err := h.orch.Sync(context.Background(), r.ID)
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.orch.Stop(ctx))
	wait(t, job)

	assert.Equal(t, repos.StateSyncing, h.get(t, r.ID).State)

	h.builder.build = nil
	next := NewOrchestrator(zap.NewNop(), h.reg, h.fetcher, h.builder, DefaultPolicy())
	t.Cleanup(func() { _ = next.Stop(context.Background()) })
	require.NoError(t, next.Recover(context.Background()))

	require.Eventually(t, func() bool {
		return h.get(t, r.ID).State == repos.StateActive
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, h.builder.discarded(), r.ID)
}

func TestConcurrencyLimit(t *testing.T) {
	h := newHarness(t)
	h.orch = NewOrchestrator(zap.NewNop(), h.reg, h.fetcher, h.builder, Policy{
		MaxRetries: 1, BackoffBase: d0, BackoffCap: d0, MaxConcurrentJobs: 1,
	})
	release := make(chan struct{})
	h.builder.build = func(ctx context.Context, _ int) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var jobs []*repos.Job
	for _, s := range []string{"https://h/a/1", "https://h/a/2", "https://h/a/3"} {
		r := h.add(t, s)
		job, err := h.orch.Sync(context.Background(), r.ID)
		require.NoError(t, err)
		jobs = append(jobs, job)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	for _, j := range jobs {
		wait(t, j)
	}
	assert.Equal(t, int64(1), h.builder.maxInflight.Load())
	assert.Equal(t, 3, h.builder.callCount())
}

func TestBackoff(t *testing.T) {
	base := 500 * time.Millisecond
	limit := 10 * time.Second

	tests := []struct {
		attempt int64
		want    time.Duration
	}{
		{0, base},
		{1, base},
		{2, time.Second},
		{3, 2 * time.Second},
		{5, 8 * time.Second},
		{6, limit},
		{64, limit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(base, limit, tt.attempt), "attempt %d", tt.attempt)
	}
}
