// Package sqlitestore persists repositories and conversations in a local
// SQLite file through the pure-Go modernc driver.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomantics/repochat/internal/domains/conversations"
	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/pkg/pgconv"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS repositories (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL UNIQUE,
	source         TEXT NOT NULL UNIQUE,
	branch         TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	last_error     TEXT,
	last_synced_at INTEGER,
	version        INTEGER NOT NULL,
	created        INTEGER NOT NULL,
	updated        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_repositories_state ON repositories(state);

CREATE TABLE IF NOT EXISTS conversations (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL UNIQUE,
	parent_id      TEXT,
	query          TEXT NOT NULL,
	repository_ids TEXT NOT NULL DEFAULT '[]',
	result         TEXT NOT NULL,
	created        INTEGER NOT NULL
);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

type Store struct {
	conn *sql.DB
}

// Open opens or creates the database file at path. The directory is created
// when missing.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between pooled connections
	conn.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) PutRepository(ctx context.Context, repo repos.Repository) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO repositories (id, source, branch, state, last_error, last_synced_at, version, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source = excluded.source,
			branch = excluded.branch,
			state = excluded.state,
			last_error = excluded.last_error,
			last_synced_at = excluded.last_synced_at,
			version = excluded.version,
			updated = excluded.updated`,
		repo.ID,
		repo.Source,
		repo.Branch,
		string(repo.State),
		pgconv.NullStringOrNull(repo.LastError),
		pgconv.ToNullInt64(repo.LastSyncedAt),
		repo.Version,
		repo.Created,
		repo.Updated,
	)
	return err
}

const repoColumns = `id, source, branch, state, last_error, last_synced_at, version, created, updated`

func (s *Store) GetRepository(ctx context.Context, id string) (*repos.Repository, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+repoColumns+` FROM repositories WHERE id = ?`, id)
	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repos.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

func (s *Store) ListRepositories(ctx context.Context) ([]repos.Repository, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+repoColumns+` FROM repositories ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repos.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, repo)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repos.ErrNotFound
	}
	return nil
}

func (s *Store) AppendConversation(ctx context.Context, entry conversations.Entry) error {
	ids := entry.RepositoryIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode repository ids: %w", err)
	}
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO conversations (id, parent_id, query, repository_ids, result, created)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		pgconv.NullStringOrNull(entry.ParentID),
		entry.Query,
		string(idsJSON),
		string(resultJSON),
		entry.Timestamp,
	)
	return err
}

func (s *Store) ListConversations(ctx context.Context, limit, offset int) ([]conversations.Entry, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, parent_id, query, repository_ids, result, created
		FROM conversations
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`, limit, max(offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []conversations.Entry
	for rows.Next() {
		var (
			entry      conversations.Entry
			parentID   sql.NullString
			idsJSON    string
			resultJSON string
		)
		if err := rows.Scan(&entry.ID, &parentID, &entry.Query, &idsJSON, &resultJSON, &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.ParentID = parentID.String
		if err := json.Unmarshal([]byte(idsJSON), &entry.RepositoryIDs); err != nil {
			return nil, fmt.Errorf("decode repository ids of %s: %w", entry.ID, err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &entry.Result); err != nil {
			return nil, fmt.Errorf("decode result of %s: %w", entry.ID, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) CountConversations(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRepository(row scanner) (repos.Repository, error) {
	var (
		repo      repos.Repository
		state     string
		lastError sql.NullString
		syncedAt  sql.NullInt64
	)
	err := row.Scan(
		&repo.ID,
		&repo.Source,
		&repo.Branch,
		&state,
		&lastError,
		&syncedAt,
		&repo.Version,
		&repo.Created,
		&repo.Updated,
	)
	if err != nil {
		return repo, err
	}
	repo.State = repos.State(state)
	repo.LastError = lastError.String
	repo.LastSyncedAt = pgconv.FromNullInt64(syncedAt)
	return repo, nil
}
