package agents

import (
	"context"
	"fmt"
	"strings"
)

// Scope is what an agent is asked: the query text and the active
// repositories it is restricted to.
type Scope struct {
	Text          string
	RepositoryIDs []string
}

// Agent answers a scoped query in its own way
type Agent interface {
	Kind() Kind
	Invoke(ctx context.Context, scope Scope) (string, error)
}

// Querier is the knowledge-graph side of an agent. The deadline of ctx is
// the per-agent timeout.
type Querier interface {
	Query(ctx context.Context, kind Kind, text string, repoIDs []string) (string, error)
}

// GraphAgent answers by querying the knowledge graph with its kind
type GraphAgent struct {
	kind    Kind
	querier Querier
}

func NewGraphAgent(kind Kind, q Querier) *GraphAgent {
	return &GraphAgent{kind: kind, querier: q}
}

func (a *GraphAgent) Kind() Kind {
	return a.kind
}

func (a *GraphAgent) Invoke(ctx context.Context, scope Scope) (string, error) {
	payload, err := a.querier.Query(ctx, a.kind, scope.Text, scope.RepositoryIDs)
	if err != nil {
		return "", fmt.Errorf("%s agent: %w", a.kind, err)
	}
	return strings.TrimSpace(payload), nil
}

// GraphAgents returns one GraphAgent per kind over q
func GraphAgents(q Querier) []Agent {
	out := make([]Agent, 0, len(AllKinds))
	for _, k := range AllKinds {
		out = append(out, NewGraphAgent(k, q))
	}
	return out
}
