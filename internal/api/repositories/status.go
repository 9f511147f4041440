package repositories

import (
	"github.com/gomantics/repochat/internal/api/web"
	"github.com/gomantics/repochat/internal/domains/status"
)

type StatusResponse struct {
	RepositoryID string `json:"repository_id"`
	State        string `json:"state"`
}

// StatusOf handles GET /v1/repositories/:id/status
func (h *Handler) StatusOf(c web.Context) error {
	id := c.Param("id")
	state, err := h.Status.StatusOf(c.Request().Context(), id)
	if err != nil {
		return c.Fail(err, "get status")
	}
	return c.OK(StatusResponse{RepositoryID: id, State: state.String()})
}

type OverviewResponse struct {
	Repositories []status.Summary `json:"repositories"`
}

// Overview handles GET /v1/status
func (h *Handler) Overview(c web.Context) error {
	list, err := h.Status.Overview(c.Request().Context())
	if err != nil {
		return c.Fail(err, "get status overview")
	}
	if list == nil {
		list = []status.Summary{}
	}
	return c.OK(OverviewResponse{Repositories: list})
}
