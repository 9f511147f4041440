package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gomantics/repochat/internal/domains/agents"
	"github.com/gomantics/repochat/libs/cognee"
	"github.com/gomantics/repochat/libs/gitrepo"
	"go.uber.org/zap"
)

// maxUploadFiles bounds how many files of a local directory are uploaded
const maxUploadFiles = 2000

// CogneeClient is the part of the cognee API the backend uses
type CogneeClient interface {
	Add(ctx context.Context, req cognee.AddRequest) (*cognee.AddResponse, error)
	Cognify(ctx context.Context, datasetID string) error
	Search(ctx context.Context, req cognee.SearchRequest) ([]json.RawMessage, error)
	DeleteDataset(ctx context.Context, name string) error
}

// Cognee delegates graph construction and search to a remote service. Each
// repository is one dataset named after its id.
type Cognee struct {
	l           *zap.Logger
	client      CogneeClient
	githubToken string
}

func NewCognee(l *zap.Logger, client CogneeClient, githubToken string) *Cognee {
	return &Cognee{l: l.Named("graph.cognee"), client: client, githubToken: githubToken}
}

// Build uploads the repository and waits for the service to cognify it.
// Remote repositories are fetched by the service itself; local directories
// are uploaded file by file.
func (g *Cognee) Build(ctx context.Context, repoID string, snap *gitrepo.Snapshot) error {
	req := cognee.AddRequest{DatasetName: repoID, Branch: snap.Branch}
	if snap.Cloned {
		req.RepositoryURL = snap.Source
		if strings.Contains(snap.Source, "github.com") {
			req.AuthToken = g.githubToken
		}
	} else {
		files, err := readFiles(ctx, snap)
		if err != nil {
			return err
		}
		req.Files = files
	}

	resp, err := g.client.Add(ctx, req)
	if err != nil {
		return g.wrap(err)
	}
	if err := g.client.Cognify(ctx, resp.DatasetID); err != nil {
		return g.wrap(err)
	}

	g.l.Info("dataset cognified", zap.String("repo_id", repoID), zap.String("dataset_id", resp.DatasetID))
	return nil
}

func readFiles(ctx context.Context, snap *gitrepo.Snapshot) ([]cognee.File, error) {
	files := make([]cognee.File, 0, min(len(snap.Files), maxUploadFiles))
	for _, rel := range snap.Files {
		if len(files) == maxUploadFiles {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := gitrepo.ReadFile(snap.Root, rel)
		if err != nil {
			continue
		}
		files = append(files, cognee.File{Path: rel, Content: content})
	}
	return files, nil
}

func (g *Cognee) Discard(ctx context.Context, repoID string) error {
	return g.wrap(g.client.DeleteDataset(ctx, repoID))
}

// Query runs the search type matching kind over the repositories' datasets
func (g *Cognee) Query(ctx context.Context, kind agents.Kind, text string, repoIDs []string) (string, error) {
	results, err := g.client.Search(ctx, cognee.SearchRequest{
		SearchType: kind.WireName(),
		Query:      text,
		Datasets:   repoIDs,
	})
	if err != nil {
		return "", g.wrap(err)
	}

	parts := make([]string, 0, len(results))
	for _, raw := range results {
		if s := resultText(raw); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// resultText renders one search result: plain strings as is, objects by
// their text-like field, anything else as JSON.
func resultText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"text", "content", "answer", "summary"} {
			if v, ok := obj[key].(string); ok {
				return strings.TrimSpace(v)
			}
		}
	}
	return strings.TrimSpace(string(raw))
}

func (g *Cognee) wrap(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackend, err)
}
