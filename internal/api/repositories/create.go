package repositories

import (
	"github.com/gomantics/repochat/internal/api/web"
	"github.com/gomantics/repochat/internal/domains/repos"
	"go.uber.org/zap"
)

// CreateRequest is the request body for registering a repository
type CreateRequest struct {
	Source string `json:"source" validate:"required"`
	Branch string `json:"branch,omitempty"`
}

// Create handles POST /v1/repositories
func (h *Handler) Create(c web.Context) error {
	var req CreateRequest
	if err := c.BindValid(&req); err != nil {
		return err
	}

	repo, err := h.Registry.Add(c.Request().Context(), repos.AddParams{
		Source: req.Source,
		Branch: req.Branch,
	})
	if err != nil {
		return c.Fail(err, "register repository")
	}

	c.L.Info("repository registered",
		zap.String("repo_id", repo.ID),
		zap.String("source", repo.Source),
	)
	return c.Created(toResponse(repo))
}
