package repositories

import (
	"github.com/gomantics/repochat/internal/api/web"
	"github.com/gomantics/repochat/internal/domains/repos"
	"go.uber.org/zap"
)

// JobResponse acknowledges a sync that was started in the background
type JobResponse struct {
	RepositoryID string `json:"repository_id"`
	State        string `json:"state"`
	StartedAt    int64  `json:"started_at"`
}

// Sync handles POST /v1/repositories/:id/sync
func (h *Handler) Sync(c web.Context) error {
	job, err := h.Orchestrator.Sync(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.Fail(err, "start sync")
	}
	c.L.Info("sync started", zap.String("repo_id", job.RepositoryID))
	return c.Accepted(jobResponse(job))
}

// Activate handles POST /v1/repositories/:id/activate
func (h *Handler) Activate(c web.Context) error {
	job, err := h.Orchestrator.Activate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.Fail(err, "activate repository")
	}
	c.L.Info("repository activated", zap.String("repo_id", job.RepositoryID))
	return c.Accepted(jobResponse(job))
}

// Deactivate handles POST /v1/repositories/:id/deactivate. It returns once
// the repository is inactive.
func (h *Handler) Deactivate(c web.Context) error {
	repo, err := h.Orchestrator.Deactivate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.Fail(err, "deactivate repository")
	}
	c.L.Info("repository deactivated", zap.String("repo_id", repo.ID))
	return c.OK(toResponse(repo))
}

func jobResponse(job *repos.Job) JobResponse {
	return JobResponse{
		RepositoryID: job.RepositoryID,
		State:        repos.StateSyncing.String(),
		StartedAt:    job.StartedAt.Unix(),
	}
}
