package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gomantics/repochat/internal/domains/agents"
	"github.com/gomantics/repochat/internal/domains/indexing"
	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/internal/errs"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{repos.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("lookup: %w", repos.ErrNotFound), http.StatusNotFound},
		{repos.ErrInvalidSource, http.StatusBadRequest},
		{agents.ErrInvalidQuery, http.StatusBadRequest},
		{agents.ErrNoActiveScope, http.StatusUnprocessableEntity},
		{repos.ErrAlreadyExists, http.StatusConflict},
		{repos.ErrSyncInProgress, http.StatusConflict},
		{indexing.ErrNotInactive, http.StatusConflict},
		{&repos.InvalidTransitionError{From: repos.StateSyncing, To: repos.StatePending}, http.StatusConflict},
		{&agents.AllAgentsFailedError{}, http.StatusBadGateway},
		{errs.Storage(errors.New("disk gone")), http.StatusServiceUnavailable},
		{agents.ErrAgentTimeout, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}
}

type body struct {
	Name string `json:"name" validate:"required"`
}

func TestBindValid(t *testing.T) {
	e := echo.New()
	e.Validator = NewValidator()

	h := Wrap(func(c Context) error {
		var b body
		if err := c.BindValid(&b); err != nil {
			return err
		}
		return c.OK(b)
	}, zap.NewNop())

	for _, tt := range []struct {
		payload string
		status  int
	}{
		{`{"name":"x"}`, http.StatusOK},
		{`{}`, http.StatusBadRequest},
		{`{`, http.StatusBadRequest},
	} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		require.NoError(t, h(e.NewContext(req, rec)))
		assert.Equal(t, tt.status, rec.Code, tt.payload)
	}
}
