// Package storagetest holds the behaviour every storage driver must share.
package storagetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/gomantics/repochat/internal/domains/conversations"
	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Store interface {
	repos.Store
	conversations.Store
}

// Run exercises a fresh store returned by open.
func Run(t *testing.T, open func(t *testing.T) Store) {
	t.Run("RepositoryLifecycle", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		repo := repos.Repository{
			ID:      "r1",
			Source:  "https://github.com/gomantics/repochat",
			Branch:  "main",
			State:   repos.StatePending,
			Version: 1,
			Created: 10,
			Updated: 10,
		}
		require.NoError(t, s.PutRepository(ctx, repo))

		got, err := s.GetRepository(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, repo, *got)

		synced := int64(20)
		repo.State = repos.StateError
		repo.LastError = "clone failed"
		repo.LastSyncedAt = &synced
		repo.Version = 2
		repo.Updated = 20
		require.NoError(t, s.PutRepository(ctx, repo))

		got, err = s.GetRepository(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, repo, *got)

		require.NoError(t, s.DeleteRepository(ctx, "r1"))
		_, err = s.GetRepository(ctx, "r1")
		assert.ErrorIs(t, err, repos.ErrNotFound)
		assert.ErrorIs(t, s.DeleteRepository(ctx, "r1"), repos.ErrNotFound)
	})

	t.Run("ListKeepsInsertionOrder", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		ids := []string{"zeta", "alpha", "mid"}
		for i, id := range ids {
			require.NoError(t, s.PutRepository(ctx, repos.Repository{
				ID:      id,
				Source:  fmt.Sprintf("/src/%d", i),
				State:   repos.StateInactive,
				Version: 1,
			}))
		}
		// updating a record must not move it
		require.NoError(t, s.PutRepository(ctx, repos.Repository{
			ID:      "zeta",
			Source:  "/src/0",
			State:   repos.StateActive,
			Version: 2,
		}))

		list, err := s.ListRepositories(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		for i, id := range ids {
			assert.Equal(t, id, list[i].ID)
		}
		assert.Equal(t, repos.StateActive, list[0].State)
	})

	t.Run("ConversationsMostRecentFirst", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		empty, err := s.ListConversations(ctx, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, empty)

		for i := range 5 {
			require.NoError(t, s.AppendConversation(ctx, conversations.Entry{
				ID:            fmt.Sprintf("c%d", i),
				Query:         fmt.Sprintf("question %d", i),
				RepositoryIDs: []string{"r1"},
				Result: conversations.Result{
					Answer: fmt.Sprintf("answer %d", i),
					Plan:   []string{"summary"},
					Agents: []conversations.Outcome{{Agent: "summary", Payload: "p"}},
				},
				Timestamp: int64(i),
			}))
		}

		page, err := s.ListConversations(ctx, 2, 0)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "c4", page[0].ID)
		assert.Equal(t, "c3", page[1].ID)
		assert.Equal(t, "answer 4", page[0].Result.Answer)
		assert.Equal(t, []string{"r1"}, page[0].RepositoryIDs)

		all, err := s.ListConversations(ctx, 0, 0)
		require.NoError(t, err)
		assert.Len(t, all, 5)
		assert.Equal(t, "c0", all[4].ID)
	})

	t.Run("ConversationsPaged", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		n, err := s.CountConversations(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		for i := range 5 {
			require.NoError(t, s.AppendConversation(ctx, conversations.Entry{
				ID:        fmt.Sprintf("c%d", i),
				Query:     fmt.Sprintf("question %d", i),
				Result:    conversations.Result{Answer: "a"},
				Timestamp: int64(i),
			}))
		}

		n, err = s.CountConversations(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		second, err := s.ListConversations(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, second, 2)
		assert.Equal(t, "c2", second[0].ID)
		assert.Equal(t, "c1", second[1].ID)

		last, err := s.ListConversations(ctx, 2, 4)
		require.NoError(t, err)
		require.Len(t, last, 1)
		assert.Equal(t, "c0", last[0].ID)

		past, err := s.ListConversations(ctx, 2, 10)
		require.NoError(t, err)
		assert.Empty(t, past)

		rest, err := s.ListConversations(ctx, 0, 3)
		require.NoError(t, err)
		require.Len(t, rest, 2)
		assert.Equal(t, "c1", rest[0].ID)
	})
}
