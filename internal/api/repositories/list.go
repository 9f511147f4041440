package repositories

import (
	"github.com/gomantics/repochat/internal/api/web"
)

// ListResponse is the response for listing repositories
type ListResponse struct {
	Repositories []Repository `json:"repositories"`
	Total        int          `json:"total"`
}

// List handles GET /v1/repositories
func (h *Handler) List(c web.Context) error {
	list, err := h.Registry.List(c.Request().Context())
	if err != nil {
		return c.Fail(err, "list repositories")
	}

	out := make([]Repository, len(list))
	for i := range list {
		out[i] = toResponse(&list[i])
	}
	return c.OK(ListResponse{Repositories: out, Total: len(out)})
}

// Get handles GET /v1/repositories/:id
func (h *Handler) Get(c web.Context) error {
	repo, err := h.Registry.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.Fail(err, "get repository")
	}
	return c.OK(toResponse(repo))
}
