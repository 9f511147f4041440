package status_test

import (
	"context"
	"testing"
	"time"

	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/internal/domains/status"
	"github.com/gomantics/repochat/internal/storage/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*repos.Registry, *status.Hub, *status.Aggregator) {
	t.Helper()
	reg := repos.NewRegistry(zap.NewNop(), memstore.New())
	hub := status.NewHub()
	reg.Observe(hub)
	return reg, hub, status.NewAggregator(zap.NewNop(), reg, hub)
}

func recv(t *testing.T, ch <-chan status.Event) status.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "watch channel closed early")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for status event")
		return status.Event{}
	}
}

func TestStatusOfIsState(t *testing.T) {
	ctx := context.Background()
	reg, _, agg := setup(t)

	repo, err := reg.Add(ctx, repos.AddParams{Source: "https://h/a/b"})
	require.NoError(t, err)

	st, err := agg.StatusOf(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, repos.StatePending, st)

	_, err = agg.StatusOf(ctx, "missing")
	assert.ErrorIs(t, err, repos.ErrNotFound)
}

func TestWatchSnapshotThenTransitionsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg, hub, agg := setup(t)

	repo, err := reg.Add(ctx, repos.AddParams{Source: "https://h/a/b"})
	require.NoError(t, err)

	ch, err := agg.Watch(ctx, repo.ID)
	require.NoError(t, err)

	snap := recv(t, ch)
	assert.Equal(t, repos.StatePending, snap.State)
	assert.Equal(t, int64(1), snap.Version)

	job, err := reg.AcquireJob(ctx, repo.ID)
	require.NoError(t, err)
	for _, s := range []repos.State{repos.StateSyncing, repos.StateError, repos.StateSyncing, repos.StateActive} {
		cause := ""
		if s == repos.StateError {
			cause = "boom"
		}
		_, err := reg.Transition(ctx, job, s, cause)
		require.NoError(t, err)
	}
	reg.ReleaseJob(job)

	want := []repos.State{repos.StateSyncing, repos.StateError, repos.StateSyncing, repos.StateActive}
	for i, s := range want {
		ev := recv(t, ch)
		assert.Equal(t, s, ev.State)
		assert.Equal(t, int64(i+2), ev.Version)
		assert.Equal(t, s == repos.StateError, ev.LastError != "")
	}
	assert.Equal(t, 1, hub.Subscribers(repo.ID))
}

func TestWatchClosesOnRemoval(t *testing.T) {
	ctx := context.Background()
	reg, hub, agg := setup(t)

	repo, err := reg.Add(ctx, repos.AddParams{Source: "https://h/a/b"})
	require.NoError(t, err)

	ch, err := agg.Watch(ctx, repo.ID)
	require.NoError(t, err)
	recv(t, ch)

	_, err = reg.Remove(ctx, repo.ID)
	require.NoError(t, err)

	ev := recv(t, ch)
	assert.True(t, ev.Removed)

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after removal")
	}
	require.Eventually(t, func() bool { return hub.Subscribers(repo.ID) == 0 }, time.Second, 5*time.Millisecond)
}

func TestWatchIsRestartable(t *testing.T) {
	ctx := context.Background()
	reg, hub, agg := setup(t)

	repo, err := reg.Add(ctx, repos.AddParams{Source: "https://h/a/b"})
	require.NoError(t, err)

	first, cancelFirst := context.WithCancel(ctx)
	ch1, err := agg.Watch(first, repo.ID)
	require.NoError(t, err)
	recv(t, ch1)
	cancelFirst()
	require.Eventually(t, func() bool { return hub.Subscribers(repo.ID) == 0 }, time.Second, 5*time.Millisecond)

	job, err := reg.AcquireJob(ctx, repo.ID)
	require.NoError(t, err)
	_, err = reg.Transition(ctx, job, repos.StateSyncing, "")
	require.NoError(t, err)
	reg.ReleaseJob(job)

	second, cancelSecond := context.WithCancel(ctx)
	defer cancelSecond()
	ch2, err := agg.Watch(second, repo.ID)
	require.NoError(t, err)
	snap := recv(t, ch2)
	assert.Equal(t, repos.StateSyncing, snap.State)
}

func TestWatchUnknown(t *testing.T) {
	_, hub, agg := setup(t)
	_, err := agg.Watch(context.Background(), "missing")
	assert.ErrorIs(t, err, repos.ErrNotFound)
	assert.Equal(t, 0, hub.Subscribers("missing"))
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	reg, _, agg := setup(t)

	for _, s := range []string{"https://h/b/b", "https://h/a/a"} {
		_, err := reg.Add(ctx, repos.AddParams{Source: s})
		require.NoError(t, err)
	}

	rows, err := agg.Overview(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "https://h/b/b", rows[0].Source)
	assert.Equal(t, repos.StatePending, rows[1].State)
}
