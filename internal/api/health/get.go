package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gomantics/repochat/internal/api/web"
	"go.uber.org/zap"
)

const probeTimeout = 3 * time.Second

// GetResponse is the health check response
type GetResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

// Get handles GET /v1/health. Any failing dependency turns the answer
// into a 503.
func (h *Handler) Get(c web.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), probeTimeout)
	defer cancel()

	resp := GetResponse{Status: "ok", Dependencies: make(map[string]string, len(h.Checks))}
	for _, check := range h.Checks {
		if err := check.Probe(ctx); err != nil {
			c.L.Warn("health probe failed", zap.String("dependency", check.Name), zap.Error(err))
			resp.Dependencies[check.Name] = "error: " + err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Dependencies[check.Name] = "ok"
	}

	if resp.Status != "ok" {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.OK(resp)
}
