package repositories

import (
	"context"

	"github.com/gomantics/repochat/internal/api/web"
	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/internal/domains/status"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type Registry interface {
	Add(ctx context.Context, params repos.AddParams) (*repos.Repository, error)
	AddBatch(ctx context.Context, items []repos.AddParams) []repos.AddOutcome
	Get(ctx context.Context, id string) (*repos.Repository, error)
	List(ctx context.Context) ([]repos.Repository, error)
	Remove(ctx context.Context, id string) (repos.RemoveStatus, error)
}

type Orchestrator interface {
	Sync(ctx context.Context, id string) (*repos.Job, error)
	Activate(ctx context.Context, id string) (*repos.Job, error)
	Deactivate(ctx context.Context, id string) (*repos.Repository, error)
}

type Status interface {
	StatusOf(ctx context.Context, id string) (repos.State, error)
	Overview(ctx context.Context) ([]status.Summary, error)
	Watch(ctx context.Context, id string) (<-chan status.Event, error)
}

type Handler struct {
	Registry     Registry
	Orchestrator Orchestrator
	Status       Status
}

func Configure(e *echo.Echo, l *zap.Logger, h *Handler) {
	e.POST("/v1/repositories", web.Wrap(h.Create, l))
	e.POST("/v1/repositories/batch", web.Wrap(h.CreateBatch, l))
	e.GET("/v1/repositories", web.Wrap(h.List, l))
	e.GET("/v1/repositories/:id", web.Wrap(h.Get, l))
	e.DELETE("/v1/repositories/:id", web.Wrap(h.Delete, l))
	e.POST("/v1/repositories/:id/sync", web.Wrap(h.Sync, l))
	e.POST("/v1/repositories/:id/activate", web.Wrap(h.Activate, l))
	e.POST("/v1/repositories/:id/deactivate", web.Wrap(h.Deactivate, l))
	e.GET("/v1/repositories/:id/status", web.Wrap(h.StatusOf, l))
	e.GET("/v1/repositories/:id/watch", web.Wrap(h.Watch, l))
	e.GET("/v1/status", web.Wrap(h.Overview, l))
}

// Repository is the JSON form of a registered repository
type Repository struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Branch       string `json:"branch,omitempty"`
	State        string `json:"state"`
	LastError    string `json:"last_error,omitempty"`
	LastSyncedAt *int64 `json:"last_synced_at,omitempty"`
	Version      int64  `json:"version"`
	Created      int64  `json:"created"`
	Updated      int64  `json:"updated"`
}

func toResponse(r *repos.Repository) Repository {
	return Repository{
		ID:           r.ID,
		Source:       r.Source,
		Branch:       r.Branch,
		State:        r.State.String(),
		LastError:    r.LastError,
		LastSyncedAt: r.LastSyncedAt,
		Version:      r.Version,
		Created:      r.Created,
		Updated:      r.Updated,
	}
}
