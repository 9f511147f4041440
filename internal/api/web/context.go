package web

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Context wraps echo.Context with a request-scoped logger
type Context struct {
	echo.Context
	L *zap.Logger
}

type HandlerFunc func(ctx Context) error

// Wrap adapts h to echo, tagging its logger with the request id
func Wrap(h HandlerFunc, l *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Response().Header().Get(echo.HeaderXRequestID)

		ctx := Context{
			Context: c,
			L:       l.With(zap.String("request_id", rid)),
		}

		return h(ctx)
	}
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
}

func (c Context) Error(status int, message string) error {
	return c.JSON(status, ErrorResponse{Error: message})
}

func (c Context) BadRequest(message string) error {
	return c.Error(http.StatusBadRequest, message)
}

func (c Context) NotFound(message string) error {
	return c.Error(http.StatusNotFound, message)
}

func (c Context) InternalError(message string) error {
	return c.Error(http.StatusInternalServerError, message)
}

func (c Context) OK(data any) error {
	return c.JSON(http.StatusOK, data)
}

func (c Context) Created(data any) error {
	return c.JSON(http.StatusCreated, data)
}

func (c Context) Accepted(data any) error {
	return c.JSON(http.StatusAccepted, data)
}

func (c Context) NoContent() error {
	return c.Context.NoContent(http.StatusNoContent)
}

// BindValid binds the request body into v and runs the registered validator.
func (c Context) BindValid(v any) error {
	if err := c.Bind(v); err != nil {
		return c.BadRequest("invalid request body")
	}
	if err := c.Validate(v); err != nil {
		return c.BadRequest(err.Error())
	}
	return nil
}

// Fail answers with the status that matches err's kind. Server-side
// failures are logged; client errors are not.
func (c Context) Fail(err error, action string) error {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		c.L.Error("failed to "+action, zap.Error(err), zap.Int("status", status))
	}
	return c.Error(status, err.Error())
}
