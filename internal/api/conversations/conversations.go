package conversations

import (
	"context"
	"strconv"

	"github.com/gomantics/repochat/internal/api/web"
	"github.com/gomantics/repochat/internal/domains/conversations"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type History interface {
	Page(ctx context.Context, page, size int) (*conversations.Page, error)
}

type Handler struct {
	Log History
}

func Configure(e *echo.Echo, l *zap.Logger, h *Handler) {
	e.GET("/v1/conversations", web.Wrap(h.List, l))
}

type ListResponse struct {
	Conversations []conversations.Entry `json:"conversations"`
	Page          int                   `json:"page"`
	PageSize      int                   `json:"page_size"`
	Total         int                   `json:"total"`
	TotalPages    int                   `json:"total_pages"`
}

// List handles GET /v1/conversations?page=P&limit=N. limit is the page size;
// without it the configured page size applies. Pages start at 1.
func (h *Handler) List(c web.Context) error {
	limit, ok := positiveParam(c, "limit")
	if !ok {
		return c.BadRequest("limit must be a positive integer")
	}
	page, ok := positiveParam(c, "page")
	if !ok {
		return c.BadRequest("page must be a positive integer")
	}

	p, err := h.Log.Page(c.Request().Context(), page, limit)
	if err != nil {
		return c.Fail(err, "list conversations")
	}
	return c.OK(ListResponse{
		Conversations: p.Entries,
		Page:          p.Page,
		PageSize:      p.PageSize,
		Total:         p.Total,
		TotalPages:    p.TotalPages,
	})
}

// positiveParam reads an optional positive integer query parameter; absent
// yields 0.
func positiveParam(c web.Context, name string) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
