package health

import (
	"context"

	"github.com/gomantics/repochat/internal/api/web"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Check probes one dependency
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Handler struct {
	Checks []Check
}

// Configure sets up the health routes
func Configure(e *echo.Echo, l *zap.Logger, h *Handler) {
	e.GET("/v1/health", web.Wrap(h.Get, l))
}
