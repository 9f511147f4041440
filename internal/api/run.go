package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gomantics/repochat/config"
	"github.com/gomantics/repochat/internal/api/chat"
	"github.com/gomantics/repochat/internal/api/conversations"
	"github.com/gomantics/repochat/internal/api/health"
	"github.com/gomantics/repochat/internal/api/repositories"
	"github.com/gomantics/repochat/internal/api/web"
	"github.com/gomantics/repochat/pkg/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handlers groups the route handlers provided by the application
type Handlers struct {
	fx.In

	Repositories  *repositories.Handler
	Chat          *chat.Handler
	Conversations *conversations.Handler
	Health        *health.Handler
}

func Run(lc fx.Lifecycle, l *zap.Logger, h Handlers) error {
	e := New(l, h)

	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", config.Server.Port()),
		Handler:           e,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// chat answers wait on agents; watch streams are hijacked and not
		// subject to this
		WriteTimeout:   2*config.Agents.Timeout() + 10*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				l.Info("starting API server", zap.String("addr", server.Addr))
				if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
					l.Error("error starting echo server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			l.Info("shutdown signal received")
			return e.Shutdown(ctx)
		},
	})

	return nil
}

// New builds the echo instance with middleware and every route.
func New(l *zap.Logger, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	if !config.IsDev() {
		e.HidePort = true
	}
	e.Validator = web.NewValidator()

	configureMiddleware(e, l)
	configureRoutes(e, l, h)
	return e
}

func configureMiddleware(e *echo.Echo, l *zap.Logger) {
	// Request ID must come first
	e.Use(middleware.RequestID())

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1 << 12, // 4 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			l.Error("recovered from panic",
				zap.Error(err),
				zap.ByteString("stack", stack),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		},
	}))

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			metrics.HTTPRequests.WithLabelValues(v.Method, c.Path(), strconv.Itoa(v.Status)).Inc()
			l.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			)
			return nil
		},
		LogLatency:   true,
		LogRemoteIP:  true,
		LogMethod:    true,
		LogURI:       true,
		LogRequestID: true,
		LogStatus:    true,
	}))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: config.Server.CorsAllowedOrigins(),
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:  []string{"Content-Type", "Authorization", "Origin", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        int((24 * time.Hour).Seconds()),
	}))

	if config.IsDev() {
		e.IPExtractor = echo.ExtractIPDirect()
	} else {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	}
}

func configureRoutes(e *echo.Echo, l *zap.Logger, h Handlers) {
	health.Configure(e, l, h.Health)
	repositories.Configure(e, l, h.Repositories)
	chat.Configure(e, l, h.Chat)
	conversations.Configure(e, l, h.Conversations)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
