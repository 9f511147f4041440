package repositories

import (
	"net/http"

	"github.com/gomantics/repochat/internal/api/web"
	"github.com/gomantics/repochat/internal/domains/repos"
	"go.uber.org/zap"
)

// BatchCreateRequest registers several repositories in one call
type BatchCreateRequest struct {
	Repositories []CreateRequest `json:"repositories" validate:"required,min=1,max=100"`
}

// BatchItem is the outcome of one requested repository. Exactly one of
// Repository and Error is set; Status is the code a single create would
// have answered.
type BatchItem struct {
	Source     string      `json:"source"`
	Status     int         `json:"status"`
	Repository *Repository `json:"repository,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type BatchResponse struct {
	Results []BatchItem `json:"results"`
	Created int         `json:"created"`
	Failed  int         `json:"failed"`
}

// CreateBatch handles POST /v1/repositories/batch. Items are registered in
// order and fail independently, so the call answers 200 even when some
// items failed.
func (h *Handler) CreateBatch(c web.Context) error {
	var req BatchCreateRequest
	if err := c.BindValid(&req); err != nil {
		return err
	}

	items := make([]repos.AddParams, len(req.Repositories))
	for i, r := range req.Repositories {
		items[i] = repos.AddParams{Source: r.Source, Branch: r.Branch}
	}

	outcomes := h.Registry.AddBatch(c.Request().Context(), items)

	resp := BatchResponse{Results: make([]BatchItem, len(outcomes))}
	for i, o := range outcomes {
		item := BatchItem{Source: o.Params.Source}
		if o.Err != nil {
			item.Status = web.StatusFor(o.Err)
			item.Error = o.Err.Error()
			resp.Failed++
		} else {
			repo := toResponse(o.Repository)
			item.Status = http.StatusCreated
			item.Repository = &repo
			resp.Created++
		}
		resp.Results[i] = item
	}

	c.L.Info("repository batch registered",
		zap.Int("created", resp.Created),
		zap.Int("failed", resp.Failed),
	)
	return c.OK(resp)
}
