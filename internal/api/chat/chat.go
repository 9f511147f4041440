package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/gomantics/repochat/internal/api/web"
	"github.com/gomantics/repochat/internal/domains/agents"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type Answerer interface {
	Answer(ctx context.Context, req agents.Request) (*agents.QueryResult, error)
}

type Handler struct {
	Router Answerer
}

func Configure(e *echo.Echo, l *zap.Logger, h *Handler) {
	e.POST("/v1/chat", web.Wrap(h.Ask, l))
}

// AskRequest is the body of POST /v1/chat
type AskRequest struct {
	Query         string   `json:"query" validate:"required"`
	RepositoryIDs []string `json:"repository_ids"`
	ParentID      string   `json:"parent_id,omitempty"`
}

// FailedResponse is returned when every planned agent failed
type FailedResponse struct {
	Error  string            `json:"error"`
	Agents map[string]string `json:"agents"`
}

// Ask handles POST /v1/chat
func (h *Handler) Ask(c web.Context) error {
	var req AskRequest
	if err := c.BindValid(&req); err != nil {
		return err
	}

	result, err := h.Router.Answer(c.Request().Context(), agents.Request{
		Text:          req.Query,
		RepositoryIDs: req.RepositoryIDs,
		ParentID:      req.ParentID,
	})

	var failed *agents.AllAgentsFailedError
	if errors.As(err, &failed) {
		resp := FailedResponse{Error: agents.ErrAllAgentsFailed.Error(), Agents: map[string]string{}}
		for kind, e := range failed.Errors() {
			resp.Agents[kind.String()] = e.Error()
		}
		return c.JSON(http.StatusBadGateway, resp)
	}
	if err != nil {
		return c.Fail(err, "answer query")
	}

	c.L.Info("query answered",
		zap.String("entry_id", result.ID),
		zap.Bool("degraded", result.Degraded),
		zap.Int("warnings", len(result.Warnings)),
	)
	return c.OK(result)
}
