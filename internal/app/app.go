// Package app wires the repochat services into an fx application.
package app

import (
	"context"
	"fmt"

	"github.com/gomantics/repochat/config"
	"github.com/gomantics/repochat/db"
	"github.com/gomantics/repochat/internal/api"
	"github.com/gomantics/repochat/internal/api/chat"
	apiconv "github.com/gomantics/repochat/internal/api/conversations"
	"github.com/gomantics/repochat/internal/api/health"
	"github.com/gomantics/repochat/internal/api/repositories"
	"github.com/gomantics/repochat/internal/domains/agents"
	"github.com/gomantics/repochat/internal/domains/conversations"
	"github.com/gomantics/repochat/internal/domains/graph"
	"github.com/gomantics/repochat/internal/domains/indexing"
	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/internal/domains/status"
	"github.com/gomantics/repochat/internal/storage"
	"github.com/gomantics/repochat/libs/chunking"
	"github.com/gomantics/repochat/libs/cognee"
	"github.com/gomantics/repochat/libs/gitrepo"
	"github.com/gomantics/repochat/libs/milvus"
	"github.com/gomantics/repochat/libs/openai"
	"github.com/gomantics/repochat/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Core provides the domain services without any transport.
var Core = fx.Options(
	fx.Provide(
		storage.New,
		status.NewHub,
		newRegistry,
		newAggregator,
		newFetcher,
		newBackend,
		newOrchestrator,
		newLog,
		newRouter,
	),
	fx.Invoke(
		telemetry.Register,
		registerRemovalHooks,
	),
)

// Server is Core plus the background worker and the HTTP API.
var Server = fx.Options(
	Core,
	fx.Provide(
		newRepositoriesHandler,
		newChatHandler,
		newConversationsHandler,
		newHealthHandler,
	),
	fx.Invoke(
		indexing.StartWorker,
		api.Run,
	),
)

func newRegistry(l *zap.Logger, store storage.Store, hub *status.Hub) *repos.Registry {
	reg := repos.NewRegistry(l, store)
	reg.Observe(hub)
	return reg
}

func newAggregator(l *zap.Logger, reg *repos.Registry, hub *status.Hub) *status.Aggregator {
	return status.NewAggregator(l, reg, hub)
}

func newFetcher(l *zap.Logger) *gitrepo.Fetcher {
	providers := gitrepo.NewRegistry()
	if token := config.Git.GithubToken(); token != "" {
		providers.Register(gitrepo.NewGitHubProvider(token))
	}
	return gitrepo.NewFetcher(l, config.Indexing.CloneDir(), config.Indexing.MaxFileSizeBytes(), providers)
}

// newBackend connects the knowledge-graph driver named by graph.driver.
// Only the selected driver's dependencies are dialed.
func newBackend(lc fx.Lifecycle, l *zap.Logger) (graph.Backend, error) {
	switch driver := config.Graph.Driver(); driver {
	case "local":
		store, err := milvus.Init(lc, l)
		if err != nil {
			return nil, err
		}
		ai, err := openai.NewFromConfig()
		if err != nil {
			return nil, err
		}
		return graph.NewLocal(l, chunking.NewChunker(chunking.DefaultMaxSize), ai, store, ai, int(config.Milvus.SearchLimit())), nil

	case "cognee":
		return graph.NewCognee(l, cognee.NewFromConfig(l), config.Git.GithubToken()), nil

	default:
		return nil, fmt.Errorf("unknown graph driver %q", driver)
	}
}

func newOrchestrator(l *zap.Logger, reg *repos.Registry, fetcher *gitrepo.Fetcher, backend graph.Backend) *indexing.Orchestrator {
	return indexing.NewOrchestrator(l, reg, indexing.GitFetcher(fetcher), backend, indexing.Policy{
		MaxRetries:        config.Indexing.MaxRetries(),
		BackoffBase:       config.Indexing.BackoffBase(),
		BackoffCap:        config.Indexing.BackoffCap(),
		MaxConcurrentJobs: config.Indexing.MaxConcurrentJobs(),
	})
}

func newLog(l *zap.Logger, store storage.Store) *conversations.Log {
	return conversations.NewLog(l, store, int(config.History.PageSize()))
}

func newRouter(l *zap.Logger, reg *repos.Registry, backend graph.Backend, log *conversations.Log) (*agents.Router, error) {
	planner, err := agents.NewPlanner(config.Agents.Planner())
	if err != nil {
		return nil, err
	}
	return agents.NewRouter(l, reg, agents.GraphAgents(backend), planner, log, agents.Options{
		Timeout:        config.Agents.Timeout(),
		MaxQueryLength: int(config.Query.MaxLength()),
	}), nil
}

// registerRemovalHooks drops a repository's clone and, when purging is on,
// its graph content before the record is deleted.
func registerRemovalHooks(l *zap.Logger, reg *repos.Registry, fetcher *gitrepo.Fetcher, backend graph.Backend) {
	if config.Removal.PurgeGraph() {
		reg.OnRemove(graph.PurgeHook(backend))
	} else {
		l.Info("graph purge on removal disabled")
	}
	reg.OnRemove(fetcher.Cleanup)
}

func newRepositoriesHandler(reg *repos.Registry, orch *indexing.Orchestrator, agg *status.Aggregator) *repositories.Handler {
	return &repositories.Handler{Registry: reg, Orchestrator: orch, Status: agg}
}

func newChatHandler(router *agents.Router) *chat.Handler {
	return &chat.Handler{Router: router}
}

func newConversationsHandler(log *conversations.Log) *apiconv.Handler {
	return &apiconv.Handler{Log: log}
}

func newHealthHandler(store storage.Store) *health.Handler {
	checks := []health.Check{{
		Name: "storage",
		Probe: func(ctx context.Context) error {
			_, err := store.ListRepositories(ctx)
			return err
		},
	}}
	if config.Storage.Driver() == "postgres" {
		checks = append(checks, health.Check{Name: "database", Probe: db.Ping})
	}
	return &health.Handler{Checks: checks}
}
