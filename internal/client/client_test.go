package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gomantics/repochat/internal/api/chat"
	"github.com/gomantics/repochat/internal/api/repositories"
	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/internal/domains/status"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T) *Client {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/repositories", func(w http.ResponseWriter, r *http.Request) {
		var req repositories.CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Source == "dup" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "repository already exists"})
			return
		}
		writeJSON(w, http.StatusCreated, repositories.Repository{ID: "r1", Source: req.Source, Branch: req.Branch, State: "pending"})
	})
	mux.HandleFunc("DELETE /v1/repositories/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, repositories.DeleteResponse{ID: r.PathValue("id"), Status: "pending"})
	})
	mux.HandleFunc("POST /v1/chat", func(w http.ResponseWriter, r *http.Request) {
		var req chat.AskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Query == "fail" {
			writeJSON(w, http.StatusBadGateway, chat.FailedResponse{
				Error:  "all agents failed",
				Agents: map[string]string{"summary": "down", "chunks": "timeout"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     "c1",
			"query":  req.Query,
			"answer": "42",
			"agent_results": []map[string]string{
				{"agent": "summary", "error": "down"},
				{"agent": "completion", "payload": "42"},
			},
		})
	})
	mux.HandleFunc("GET /v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		writeJSON(w, http.StatusOK, map[string]any{
			"conversations": []map[string]any{{"id": "c2"}, {"id": "c1"}},
			"page":          3,
			"page_size":     2,
			"total":         6,
			"total_pages":   3,
		})
	})
	mux.HandleFunc("GET /v1/repositories/{id}/watch", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "r1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "repository not found"})
			return
		}
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		require.NoError(t, err)
		defer ws.Close()
		for _, st := range []repos.State{repos.StatePending, repos.StateSyncing} {
			require.NoError(t, ws.WriteJSON(status.Event{RepositoryID: "r1", State: st}))
		}
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(strings.TrimPrefix(srv.URL, "http://"))
}

func TestRepositoryCalls(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()

	repo, err := c.AddRepository(ctx, "/src/a", "main")
	require.NoError(t, err)
	assert.Equal(t, "r1", repo.ID)
	assert.Equal(t, "main", repo.Branch)

	_, err = c.AddRepository(ctx, "dup", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Contains(t, apiErr.Message, "already exists")

	del, err := c.RemoveRepository(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "pending", del.Status)
}

func TestAsk(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()

	ans, err := c.Ask(ctx, chat.AskRequest{Query: "meaning", RepositoryIDs: []string{"r1"}})
	require.NoError(t, err)
	assert.Equal(t, "42", ans.Answer)
	require.Len(t, ans.AgentResults, 2)
	assert.Equal(t, "down", ans.AgentResults[0].Error)

	_, err = c.Ask(ctx, chat.AskRequest{Query: "fail"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "502: all agents failed (chunks: timeout; summary: down)", apiErr.Error())

	history, err := c.History(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, history.Conversations, 2)
	assert.Equal(t, "c2", history.Conversations[0].ID)
	assert.Equal(t, 6, history.Total)
	assert.Equal(t, 3, history.TotalPages)
}

func TestWatch(t *testing.T) {
	c := newServer(t)

	var got []repos.State
	err := c.Watch(context.Background(), "r1", func(ev status.Event) error {
		got = append(got, ev.State)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []repos.State{repos.StatePending, repos.StateSyncing}, got)

	err = c.Watch(context.Background(), "nope", func(status.Event) error { return nil })
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}
