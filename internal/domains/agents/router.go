package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gomantics/repochat/internal/domains/conversations"
	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("repochat.agents")

// Repositories resolves the ids a query is scoped to
type Repositories interface {
	Get(ctx context.Context, id string) (*repos.Repository, error)
}

// History records answered queries
type History interface {
	Append(ctx context.Context, entry *conversations.Entry) error
}

// Options are the router's policy values
type Options struct {
	Timeout        time.Duration
	MaxQueryLength int
}

func DefaultOptions() Options {
	return Options{Timeout: 30 * time.Second, MaxQueryLength: 1000}
}

// Router fans a query out to the planned agents and merges their answers
type Router struct {
	l       *zap.Logger
	repos   Repositories
	agents  map[Kind]Agent
	planner Planner
	history History
	opts    Options
	now     func() time.Time
}

func NewRouter(l *zap.Logger, repositories Repositories, agents []Agent, planner Planner, history History, opts Options) *Router {
	if planner == nil {
		planner = DefaultPlanner{}
	}
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxQueryLength <= 0 {
		opts.MaxQueryLength = def.MaxQueryLength
	}

	byKind := make(map[Kind]Agent, len(agents))
	for _, a := range agents {
		byKind[a.Kind()] = a
	}

	return &Router{
		l:       l.Named("agents"),
		repos:   repositories,
		agents:  byKind,
		planner: planner,
		history: history,
		opts:    opts,
		now:     time.Now,
	}
}

// Answer runs req against its active repositories and appends the result to
// the conversation log before returning it.
func (r *Router) Answer(ctx context.Context, req Request) (*QueryResult, error) {
	ctx, span := tracer.Start(ctx, "agents.Answer",
		trace.WithAttributes(attribute.Int("query.repository_ids", len(req.RepositoryIDs))),
	)
	defer span.End()

	text := strings.TrimSpace(req.Text)
	if err := r.validate(text); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	scope, warnings, err := r.resolveScope(ctx, req.RepositoryIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	plan := r.planner.Plan(text)
	if len(plan) == 0 {
		plan = DefaultPlanner{}.Plan(text)
	}
	span.SetAttributes(
		attribute.Int("query.scope", len(scope)),
		attribute.String("query.plan", joinKinds(plan)),
	)

	l := r.l.With(zap.Strings("scope", scope), zap.String("plan", joinKinds(plan)))
	l.Info("answering query", zap.Int("warnings", len(warnings)))

	results, err := r.invoke(ctx, Scope{Text: text, RepositoryIDs: scope}, plan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "context canceled")
		return nil, err
	}

	result := &QueryResult{
		ParentID:     req.ParentID,
		Query:        text,
		Scope:        scope,
		Plan:         plan,
		AgentResults: results,
		Warnings:     warnings,
	}
	if err := synthesize(result); err != nil {
		metrics.Answers.WithLabelValues("failed").Inc()
		l.Error("query failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	entry := result.entry()
	if err := r.history.Append(ctx, entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result.ID = entry.ID
	result.Timestamp = entry.Timestamp

	outcome := "ok"
	if result.Degraded {
		outcome = "degraded"
	}
	metrics.Answers.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.Bool("query.degraded", result.Degraded))
	span.SetStatus(codes.Ok, "")
	l.Info("query answered", zap.String("entry_id", entry.ID), zap.Bool("degraded", result.Degraded))
	return result, nil
}

func (r *Router) validate(text string) error {
	if text == "" {
		return fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}
	if n := utf8.RuneCountInString(text); n > r.opts.MaxQueryLength {
		return fmt.Errorf("%w: query is %d characters, limit is %d", ErrInvalidQuery, n, r.opts.MaxQueryLength)
	}
	return nil
}

// resolveScope keeps the active repositories among ids, in request order.
// Everything else becomes a warning.
func (r *Router) resolveScope(ctx context.Context, ids []string) ([]string, []string, error) {
	var (
		scope    []string
		warnings []string
		seen     = make(map[string]bool, len(ids))
	)

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		repo, err := r.repos.Get(ctx, id)
		if errors.Is(err, repos.ErrNotFound) {
			warnings = append(warnings, fmt.Sprintf("repository %s not found", id))
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if repo.State != repos.StateActive {
			warnings = append(warnings, fmt.Sprintf("repository %s is %s", id, repo.State))
			continue
		}
		scope = append(scope, id)
	}

	if len(scope) == 0 {
		if len(warnings) > 0 {
			return nil, warnings, fmt.Errorf("%w: %s", ErrNoActiveScope, strings.Join(warnings, "; "))
		}
		return nil, nil, ErrNoActiveScope
	}
	return scope, warnings, nil
}

// invoke runs the plan concurrently. Results are in plan order whatever
// order the calls finish in. A failing agent is part of the results; only
// the caller's context ending fails the whole invocation.
func (r *Router) invoke(ctx context.Context, scope Scope, plan []Kind) ([]AgentResult, error) {
	results := make([]AgentResult, len(plan))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range plan {
		g.Go(func() error {
			results[i] = r.call(gctx, kind, scope)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type outcome struct {
	payload string
	err     error
}

// call invokes one agent under the per-agent timeout. An agent still running
// at the deadline is abandoned; its eventual result is discarded.
func (r *Router) call(ctx context.Context, kind Kind, scope Scope) AgentResult {
	ctx, span := tracer.Start(ctx, "agents.Invoke", trace.WithAttributes(attribute.String("agent", kind.String())))
	defer span.End()

	res := AgentResult{Agent: kind}
	agent, ok := r.agents[kind]
	if !ok {
		res.Err = fmt.Errorf("%w: %s", ErrNoAgent, kind)
		r.record(span, res, "error", 0)
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	started := time.Now()
	done := make(chan outcome, 1)
	go func() {
		payload, err := agent.Invoke(callCtx, scope)
		done <- outcome{payload: payload, err: err}
	}()

	label := "ok"
	select {
	case o := <-done:
		res.Payload, res.Err = o.payload, o.err
		if res.Err != nil {
			label = "error"
			if errors.Is(res.Err, context.DeadlineExceeded) && ctx.Err() == nil {
				res.Err = fmt.Errorf("%w: %s after %s", ErrAgentTimeout, kind, r.opts.Timeout)
				label = "timeout"
			}
		}
	case <-callCtx.Done():
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			label = "error"
		} else {
			res.Err = fmt.Errorf("%w: %s after %s", ErrAgentTimeout, kind, r.opts.Timeout)
			label = "timeout"
		}
	}

	r.record(span, res, label, time.Since(started))
	return res
}

func (r *Router) record(span trace.Span, res AgentResult, label string, took time.Duration) {
	metrics.AgentCalls.WithLabelValues(res.Agent.String(), label).Inc()
	metrics.AgentDuration.WithLabelValues(res.Agent.String()).Observe(took.Seconds())

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		r.l.Warn("agent failed", zap.String("agent", res.Agent.String()), zap.String("outcome", label), zap.Error(res.Err))
		return
	}
	span.SetStatus(codes.Ok, "")
	r.l.Debug("agent answered", zap.String("agent", res.Agent.String()), zap.Duration("took", took))
}

// synthesize fills in the answer. Completion's payload is the answer and the
// other successful payloads are context; without Completion the remaining
// payloads are merged and the result is degraded.
func synthesize(q *QueryResult) error {
	var (
		completion *AgentResult
		failures   []AgentResult
	)
	q.Context = nil

	for i := range q.AgentResults {
		res := q.AgentResults[i]
		if !res.OK() {
			failures = append(failures, res)
			continue
		}
		if res.Agent == KindCompletion {
			completion = &q.AgentResults[i]
			continue
		}
		q.Context = append(q.Context, res)
	}

	if len(failures) == len(q.AgentResults) {
		return &AllAgentsFailedError{Query: q.Query, Failures: failures}
	}

	if completion != nil {
		q.Answer = completion.Payload
		q.Degraded = false
		return nil
	}

	// a plan without completion is answered from context but is not degraded
	q.Degraded = planned(q.Plan, KindCompletion)
	parts := make([]string, 0, len(q.Context))
	for _, c := range q.Context {
		if c.Payload == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s]\n%s", c.Agent, c.Payload))
	}
	q.Answer = strings.Join(parts, "\n\n")
	return nil
}

func planned(plan []Kind, kind Kind) bool {
	for _, k := range plan {
		if k == kind {
			return true
		}
	}
	return false
}

func joinKinds(kinds []Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}
