package status

import (
	"context"
	"sync"
	"time"

	"github.com/gomantics/repochat/internal/domains/repos"
)

// Event is one observable repository change
type Event struct {
	RepositoryID string      `json:"repository_id"`
	State        repos.State `json:"state,omitempty"`
	LastError    string      `json:"last_error,omitempty"`
	LastSyncedAt *int64      `json:"last_synced_at,omitempty"`
	Version      int64       `json:"version"`
	At           int64       `json:"at"`
	Removed      bool        `json:"removed,omitempty"`
}

func eventFor(repo repos.Repository, now time.Time) Event {
	return Event{
		RepositoryID: repo.ID,
		State:        repo.State,
		LastError:    repo.LastError,
		LastSyncedAt: repo.LastSyncedAt,
		Version:      repo.Version,
		At:           now.Unix(),
	}
}

// Hub fans registry changes out to per-repository subscribers. Publishing
// never blocks; each subscriber buffers in an unbounded queue.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
	now  func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*subscriber]struct{}),
		now:  time.Now,
	}
}

func (h *Hub) RepositoryChanged(repo repos.Repository) {
	h.publish(repo.ID, eventFor(repo, h.now()))
}

func (h *Hub) RepositoryRemoved(id string) {
	h.publish(id, Event{RepositoryID: id, Removed: true, At: h.now().Unix()})
}

func (h *Hub) publish(id string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[id] {
		s.push(ev)
	}
}

func (h *Hub) subscribe(id string) *subscriber {
	s := &subscriber{notify: make(chan struct{}, 1)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[*subscriber]struct{})
	}
	h.subs[id][s] = struct{}{}
	return s
}

func (h *Hub) unsubscribe(id string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[id], s)
	if len(h.subs[id]) == 0 {
		delete(h.subs, id)
	}
}

// Subscribers returns the number of live subscriptions for id.
func (h *Hub) Subscribers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}

type subscriber struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// next blocks until an event is queued or ctx ends.
func (s *subscriber) next(ctx context.Context) (Event, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, true
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, false
		case <-s.notify:
		}
	}
}
