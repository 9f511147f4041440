// Package memstore keeps repositories and conversations in process memory.
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/gomantics/repochat/internal/domains/conversations"
	"github.com/gomantics/repochat/internal/domains/repos"
)

var errClosed = errors.New("memstore: closed")

type Store struct {
	mu            sync.RWMutex
	repos         map[string]repos.Repository
	order         []string
	conversations []conversations.Entry
	closed        bool
}

func New() *Store {
	return &Store{repos: make(map[string]repos.Repository)}
}

func (s *Store) PutRepository(_ context.Context, repo repos.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if _, ok := s.repos[repo.ID]; !ok {
		s.order = append(s.order, repo.ID)
	}
	s.repos[repo.ID] = cloneRepo(repo)
	return nil
}

func (s *Store) GetRepository(_ context.Context, id string) (*repos.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	repo, ok := s.repos[id]
	if !ok {
		return nil, repos.ErrNotFound
	}
	out := cloneRepo(repo)
	return &out, nil
}

func (s *Store) ListRepositories(_ context.Context) ([]repos.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	out := make([]repos.Repository, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneRepo(s.repos[id]))
	}
	return out, nil
}

func (s *Store) DeleteRepository(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if _, ok := s.repos[id]; !ok {
		return repos.ErrNotFound
	}
	delete(s.repos, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) AppendConversation(_ context.Context, entry conversations.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.conversations = append(s.conversations, entry)
	return nil
}

func (s *Store) ListConversations(_ context.Context, limit, offset int) ([]conversations.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	n := max(len(s.conversations)-max(offset, 0), 0)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]conversations.Entry, 0, n)
	for i := len(s.conversations) - 1 - max(offset, 0); i >= 0 && len(out) < n; i-- {
		out = append(out, s.conversations[i])
	}
	return out, nil
}

func (s *Store) CountConversations(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed
	}
	return len(s.conversations), nil
}

// Close makes every later call fail, which tests use to simulate an
// unavailable backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneRepo(r repos.Repository) repos.Repository {
	if r.LastSyncedAt != nil {
		ts := *r.LastSyncedAt
		r.LastSyncedAt = &ts
	}
	return r
}
