package repositories

import (
	"github.com/gomantics/repochat/internal/api/web"
	"github.com/gomantics/repochat/internal/domains/repos"
	"go.uber.org/zap"
)

// DeleteResponse reports whether removal finished or waits on a running sync
type DeleteResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Delete handles DELETE /v1/repositories/:id. A repository with a running
// sync answers 202; the record goes away once the sync has stopped.
func (h *Handler) Delete(c web.Context) error {
	id := c.Param("id")

	result, err := h.Registry.Remove(c.Request().Context(), id)
	if err != nil {
		return c.Fail(err, "remove repository")
	}

	c.L.Info("repository removal requested", zap.String("repo_id", id), zap.String("status", string(result)))

	resp := DeleteResponse{ID: id, Status: string(result)}
	if result == repos.RemovePending {
		return c.Accepted(resp)
	}
	return c.OK(resp)
}
