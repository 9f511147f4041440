// Package client talks to a running repochat server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gomantics/repochat/internal/api/chat"
	apiconv "github.com/gomantics/repochat/internal/api/conversations"
	"github.com/gomantics/repochat/internal/api/health"
	"github.com/gomantics/repochat/internal/api/repositories"
	"github.com/gomantics/repochat/internal/domains/status"
	"github.com/gorilla/websocket"
)

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
	// Agents holds per-agent failures when every agent failed
	Agents map[string]string
}

func (e *APIError) Error() string {
	if len(e.Agents) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	kinds := make([]string, 0, len(e.Agents))
	for k := range e.Agents {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = k + ": " + e.Agents[k]
	}
	return fmt.Sprintf("%d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
}

type Client struct {
	base string
	http *http.Client
}

// New returns a client for the server at addr, e.g. "http://localhost:8090".
// A bare host:port gets the http scheme.
func New(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		base: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// AgentOutcome is one agent's part of an answer
type AgentOutcome struct {
	Agent   string `json:"agent"`
	Payload string `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Answer is the decoded result of a chat query
type Answer struct {
	ID           string         `json:"id"`
	ParentID     string         `json:"parent_id,omitempty"`
	Query        string         `json:"query"`
	Scope        []string       `json:"scope"`
	Plan         []string       `json:"plan"`
	AgentResults []AgentOutcome `json:"agent_results"`
	Answer       string         `json:"answer"`
	Context      []AgentOutcome `json:"context,omitempty"`
	Degraded     bool           `json:"degraded"`
	Warnings     []string       `json:"warnings,omitempty"`
	Timestamp    int64          `json:"timestamp"`
}

func (c *Client) AddRepository(ctx context.Context, source, branch string) (*repositories.Repository, error) {
	var out repositories.Repository
	err := c.do(ctx, http.MethodPost, "/v1/repositories", repositories.CreateRequest{Source: source, Branch: branch}, &out)
	return &out, err
}

// AddRepositories registers several sources in one call. Per-item failures
// are reported in the response, not as an error.
func (c *Client) AddRepositories(ctx context.Context, items []repositories.CreateRequest) (*repositories.BatchResponse, error) {
	var out repositories.BatchResponse
	err := c.do(ctx, http.MethodPost, "/v1/repositories/batch", repositories.BatchCreateRequest{Repositories: items}, &out)
	return &out, err
}

func (c *Client) ListRepositories(ctx context.Context) ([]repositories.Repository, error) {
	var out repositories.ListResponse
	err := c.do(ctx, http.MethodGet, "/v1/repositories", nil, &out)
	return out.Repositories, err
}

func (c *Client) GetRepository(ctx context.Context, id string) (*repositories.Repository, error) {
	var out repositories.Repository
	err := c.do(ctx, http.MethodGet, "/v1/repositories/"+url.PathEscape(id), nil, &out)
	return &out, err
}

func (c *Client) RemoveRepository(ctx context.Context, id string) (*repositories.DeleteResponse, error) {
	var out repositories.DeleteResponse
	err := c.do(ctx, http.MethodDelete, "/v1/repositories/"+url.PathEscape(id), nil, &out)
	return &out, err
}

func (c *Client) Sync(ctx context.Context, id string) (*repositories.JobResponse, error) {
	var out repositories.JobResponse
	err := c.do(ctx, http.MethodPost, "/v1/repositories/"+url.PathEscape(id)+"/sync", nil, &out)
	return &out, err
}

func (c *Client) Activate(ctx context.Context, id string) (*repositories.JobResponse, error) {
	var out repositories.JobResponse
	err := c.do(ctx, http.MethodPost, "/v1/repositories/"+url.PathEscape(id)+"/activate", nil, &out)
	return &out, err
}

func (c *Client) Deactivate(ctx context.Context, id string) (*repositories.Repository, error) {
	var out repositories.Repository
	err := c.do(ctx, http.MethodPost, "/v1/repositories/"+url.PathEscape(id)+"/deactivate", nil, &out)
	return &out, err
}

func (c *Client) Status(ctx context.Context) ([]status.Summary, error) {
	var out repositories.OverviewResponse
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out)
	return out.Repositories, err
}

func (c *Client) Ask(ctx context.Context, req chat.AskRequest) (*Answer, error) {
	var out Answer
	err := c.do(ctx, http.MethodPost, "/v1/chat", req, &out)
	return &out, err
}

// History fetches one page of past conversations. Zero page or limit leaves
// the choice to the server.
func (c *Client) History(ctx context.Context, page, limit int) (*apiconv.ListResponse, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/conversations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out apiconv.ListResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return &out, err
}

func (c *Client) Health(ctx context.Context) (*health.GetResponse, error) {
	var out health.GetResponse
	err := c.do(ctx, http.MethodGet, "/v1/health", nil, &out)
	return &out, err
}

// Watch streams status events of repository id to fn until the server ends
// the stream, ctx is done or fn returns an error.
func (c *Client) Watch(ctx context.Context, id string, fn func(status.Event) error) error {
	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + "/v1/repositories/" + url.PathEscape(id) + "/watch"

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeError(resp)
		}
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	for {
		var ev status.Event
		if err := ws.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var failed chat.FailedResponse
	if err := json.Unmarshal(raw, &failed); err == nil && failed.Error != "" {
		return &APIError{Status: resp.StatusCode, Message: failed.Error, Agents: failed.Agents}
	}

	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
