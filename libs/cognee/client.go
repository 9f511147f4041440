// Package cognee is a client for a cognee-compatible knowledge-graph service.
package cognee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gomantics/repochat/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrServer marks a 5xx response or a failed round trip
var ErrServer = errors.New("cognee: server error")

// APIError is a non-2xx response
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cognee: status %d: %s", e.Status, e.Detail)
}

func (e *APIError) Unwrap() error {
	if e.Status >= 500 {
		return ErrServer
	}
	return nil
}

// File is a document uploaded with Add
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// AddRequest registers content under a dataset. Either RepositoryURL or
// Files is set.
type AddRequest struct {
	DatasetName   string `json:"dataset_name"`
	RepositoryURL string `json:"repository_url,omitempty"`
	Branch        string `json:"branch,omitempty"`
	AuthToken     string `json:"auth_token,omitempty"`
	Files         []File `json:"files,omitempty"`
}

type AddResponse struct {
	DatasetID string `json:"dataset_id"`
	Status    string `json:"status"`
}

type SearchRequest struct {
	SearchType string   `json:"search_type"`
	Query      string   `json:"query"`
	Datasets   []string `json:"datasets,omitempty"`
	ParentID   string   `json:"parent_id,omitempty"`
}

// Client is safe for concurrent use
type Client struct {
	l       *zap.Logger
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a client. rps <= 0 disables rate limiting.
func New(l *zap.Logger, baseURL, apiKey string, rps float64) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		l:       l.Named("cognee"),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 5 * time.Minute},
		limiter: rate.NewLimiter(limit, 1),
	}
}

func NewFromConfig(l *zap.Logger) *Client {
	return New(l, config.Cognee.BaseURL(), config.Cognee.ApiKey(), config.Cognee.RequestsPerSecond())
}

// Add uploads a repository or files into a dataset
func (c *Client) Add(ctx context.Context, req AddRequest) (*AddResponse, error) {
	var resp AddResponse
	if err := c.do(ctx, http.MethodPost, "/add", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cognify builds the graph for a dataset
func (c *Client) Cognify(ctx context.Context, datasetID string) error {
	return c.do(ctx, http.MethodPost, "/cognify", map[string]string{"dataset_id": datasetID}, nil)
}

// Search queries the graph. The response shape depends on the search type,
// so it is returned as raw JSON values.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/search", req, &raw); err != nil {
		return nil, err
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("cognee: unexpected search response: %w", err)
	}
	return wrapped.Results, nil
}

// DeleteDataset removes a dataset and its graph. Missing datasets are not an
// error.
func (c *Client) DeleteDataset(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, "/datasets/"+url.PathEscape(name), nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("cognee: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %w", ErrServer, method, path, err)
	}
	defer resp.Body.Close()

	c.l.Debug("request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("cognee: decode response: %w", err)
	}
	return nil
}

// readDetail extracts the FastAPI style {"detail": ...} message, falling back
// to the raw body.
func readDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(body.Detail)
		return string(b)
	}
	return strings.TrimSpace(string(raw))
}
