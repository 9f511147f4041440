// Package graph implements the knowledge-graph backends repositories are
// ingested into and agents query.
package graph

import (
	"context"
	"fmt"

	"github.com/gomantics/repochat/internal/domains/agents"
	"github.com/gomantics/repochat/internal/domains/indexing"
	"github.com/gomantics/repochat/internal/errs"
)

// Backend builds, queries and discards per-repository graph content
type Backend interface {
	indexing.Builder
	agents.Querier
}

var ErrBackend = fmt.Errorf("%w: knowledge graph backend error", errs.ErrTransient)

// PurgeHook returns a removal hook that discards a repository's content
func PurgeHook(b Backend) func(ctx context.Context, repoID string) error {
	return func(ctx context.Context, repoID string) error {
		return b.Discard(ctx, repoID)
	}
}
