package badgerstore

import (
	"context"
	"testing"

	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/internal/storage/storagetest"
	"github.com/gomantics/repochat/libs/badgerdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Store {
		db, err := badgerdb.Open(badgerdb.InMemoryConfig(), zap.NewNop())
		require.NoError(t, err)
		s, err := New(db)
		require.NoError(t, err)
		t.Cleanup(func() {
			assert.NoError(t, s.Close())
			assert.NoError(t, db.Close())
		})
		return s
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := badgerdb.DefaultConfig(t.TempDir())
	cfg.GCInterval = 0

	db, err := badgerdb.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	s, err := New(db)
	require.NoError(t, err)
	require.NoError(t, s.PutRepository(ctx, repos.Repository{ID: "a", Source: "/a", State: repos.StateActive}))
	require.NoError(t, s.Close())
	require.NoError(t, db.Close())

	db, err = badgerdb.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()
	s, err = New(db)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PutRepository(ctx, repos.Repository{ID: "b", Source: "/b", State: repos.StateInactive}))

	list, err := s.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}
