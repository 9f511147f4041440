// Package pgstore persists repositories and conversations in postgres
// through the sqlc queries in package db.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gomantics/repochat/db"
	"github.com/gomantics/repochat/internal/domains/conversations"
	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/pkg/pgconv"
	"github.com/jackc/pgx/v5"
)

// Store is stateless; the pool lives in package db.
type Store struct{}

func New() *Store {
	return &Store{}
}

func (s *Store) PutRepository(ctx context.Context, repo repos.Repository) error {
	return db.Query(ctx, func(q *db.Queries) error {
		return q.UpsertRepository(ctx, db.UpsertRepositoryParams{
			ID:           repo.ID,
			Source:       repo.Source,
			Branch:       repo.Branch,
			State:        string(repo.State),
			LastError:    pgconv.TextOrNull(repo.LastError),
			LastSyncedAt: pgconv.ToInt8(repo.LastSyncedAt),
			Version:      repo.Version,
			Created:      repo.Created,
			Updated:      repo.Updated,
		})
	})
}

func (s *Store) GetRepository(ctx context.Context, id string) (*repos.Repository, error) {
	row, err := db.Query1(ctx, func(q *db.Queries) (db.GetRepositoryRow, error) {
		return q.GetRepository(ctx, id)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repos.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	repo := toRepository(db.Repository{
		ID:           row.ID,
		Source:       row.Source,
		Branch:       row.Branch,
		State:        row.State,
		LastError:    row.LastError,
		LastSyncedAt: row.LastSyncedAt,
		Version:      row.Version,
		Created:      row.Created,
		Updated:      row.Updated,
	})
	return &repo, nil
}

func (s *Store) ListRepositories(ctx context.Context) ([]repos.Repository, error) {
	rows, err := db.Query1(ctx, func(q *db.Queries) ([]db.ListRepositoriesRow, error) {
		return q.ListRepositories(ctx)
	})
	if err != nil {
		return nil, err
	}

	out := make([]repos.Repository, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRepository(db.Repository{
			ID:           row.ID,
			Source:       row.Source,
			Branch:       row.Branch,
			State:        row.State,
			LastError:    row.LastError,
			LastSyncedAt: row.LastSyncedAt,
			Version:      row.Version,
			Created:      row.Created,
			Updated:      row.Updated,
		}))
	}
	return out, nil
}

func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	n, err := db.Query1(ctx, func(q *db.Queries) (int64, error) {
		return q.DeleteRepository(ctx, id)
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return repos.ErrNotFound
	}
	return nil
}

func (s *Store) AppendConversation(ctx context.Context, entry conversations.Entry) error {
	params, err := toInsertParams(entry)
	if err != nil {
		return err
	}
	return db.Query(ctx, func(q *db.Queries) error {
		return q.InsertConversation(ctx, params)
	})
}

func (s *Store) ListConversations(ctx context.Context, limit, offset int) ([]conversations.Entry, error) {
	if limit <= 0 {
		limit = maxListLimit
	}
	params := db.ListConversationsParams{
		Limit:  int32(min(limit, maxListLimit)),
		Offset: int32(min(max(offset, 0), maxListLimit)),
	}
	rows, err := db.Query1(ctx, func(q *db.Queries) ([]db.ListConversationsRow, error) {
		return q.ListConversations(ctx, params)
	})
	if err != nil {
		return nil, err
	}

	out := make([]conversations.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := fromConversationRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) CountConversations(ctx context.Context) (int, error) {
	n, err := db.Query1(ctx, func(q *db.Queries) (int64, error) {
		return q.CountConversations(ctx)
	})
	return int(n), err
}

const maxListLimit = 1 << 20

func toRepository(r db.Repository) repos.Repository {
	return repos.Repository{
		ID:           r.ID,
		Source:       r.Source,
		Branch:       r.Branch,
		State:        repos.State(r.State),
		LastError:    pgconv.Val(pgconv.FromText(r.LastError)),
		LastSyncedAt: pgconv.FromInt8(r.LastSyncedAt),
		Version:      r.Version,
		Created:      r.Created,
		Updated:      r.Updated,
	}
}

func toInsertParams(entry conversations.Entry) (db.InsertConversationParams, error) {
	ids := entry.RepositoryIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return db.InsertConversationParams{}, fmt.Errorf("encode repository ids: %w", err)
	}
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return db.InsertConversationParams{}, fmt.Errorf("encode result: %w", err)
	}
	return db.InsertConversationParams{
		ID:            entry.ID,
		ParentID:      pgconv.TextOrNull(entry.ParentID),
		Query:         entry.Query,
		RepositoryIds: idsJSON,
		Result:        resultJSON,
		Created:       entry.Timestamp,
	}, nil
}

func fromConversationRow(row db.ListConversationsRow) (conversations.Entry, error) {
	entry := conversations.Entry{
		ID:        row.ID,
		ParentID:  pgconv.Val(pgconv.FromText(row.ParentID)),
		Query:     row.Query,
		Timestamp: row.Created,
	}
	if err := json.Unmarshal(row.RepositoryIds, &entry.RepositoryIDs); err != nil {
		return entry, fmt.Errorf("decode repository ids of %s: %w", row.ID, err)
	}
	if err := json.Unmarshal(row.Result, &entry.Result); err != nil {
		return entry, fmt.Errorf("decode result of %s: %w", row.ID, err)
	}
	return entry, nil
}
