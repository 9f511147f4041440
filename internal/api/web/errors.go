package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gomantics/repochat/internal/domains/agents"
	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/internal/errs"
)

// StatusFor maps an error to its HTTP status. The most specific sentinel
// wins, so the order of cases matters.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, repos.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, agents.ErrNoActiveScope):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repos.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrConflict), errors.Is(err, repos.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, agents.ErrAllAgentsFailed), errors.Is(err, errs.ErrTransient):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, errs.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
