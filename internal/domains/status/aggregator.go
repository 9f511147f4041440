package status

import (
	"context"

	"github.com/gomantics/repochat/internal/domains/repos"
	"go.uber.org/zap"
)

// Reader is the registry surface the aggregator projects from
type Reader interface {
	Get(ctx context.Context, id string) (*repos.Repository, error)
	List(ctx context.Context) ([]repos.Repository, error)
}

// Summary is one row of the status overview
type Summary struct {
	RepositoryID string      `json:"repository_id"`
	Source       string      `json:"source"`
	State        repos.State `json:"state"`
	LastError    string      `json:"last_error,omitempty"`
	LastSyncedAt *int64      `json:"last_synced_at,omitempty"`
}

// Aggregator exposes the user-facing status of repositories
type Aggregator struct {
	l      *zap.Logger
	reader Reader
	hub    *Hub
}

func NewAggregator(l *zap.Logger, reader Reader, hub *Hub) *Aggregator {
	return &Aggregator{
		l:      l.Named("status"),
		reader: reader,
		hub:    hub,
	}
}

// StatusOf is exactly the repository's state.
func (a *Aggregator) StatusOf(ctx context.Context, id string) (repos.State, error) {
	repo, err := a.reader.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return repo.State, nil
}

// Overview lists every repository's status in insertion order.
func (a *Aggregator) Overview(ctx context.Context) ([]Summary, error) {
	list, err := a.reader.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, len(list))
	for i, r := range list {
		out[i] = Summary{
			RepositoryID: r.ID,
			Source:       r.Source,
			State:        r.State,
			LastError:    r.LastError,
			LastSyncedAt: r.LastSyncedAt,
		}
	}
	return out, nil
}

// Watch streams the state of repository id: the current snapshot first,
// then every later change in order. The channel closes after the removal
// event or when ctx ends. Each call is an independent subscription.
func (a *Aggregator) Watch(ctx context.Context, id string) (<-chan Event, error) {
	// subscribe before the snapshot so no change slips between the two
	sub := a.hub.subscribe(id)

	repo, err := a.reader.Get(ctx, id)
	if err != nil {
		a.hub.unsubscribe(id, sub)
		return nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer a.hub.unsubscribe(id, sub)

		last := repo.Version
		if !send(ctx, out, eventFor(*repo, a.hub.now())) {
			return
		}

		for {
			ev, ok := sub.next(ctx)
			if !ok {
				return
			}
			if ev.Removed {
				send(ctx, out, ev)
				return
			}
			if ev.Version <= last {
				continue
			}
			last = ev.Version
			if !send(ctx, out, ev) {
				return
			}
		}
	}()

	return out, nil
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
