package agents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gomantics/repochat/internal/domains/conversations"
	"github.com/gomantics/repochat/internal/errs"
)

var (
	ErrInvalidQuery    = fmt.Errorf("%w: invalid query", errs.ErrValidation)
	ErrNoActiveScope   = fmt.Errorf("%w: no active repositories in scope", errs.ErrValidation)
	ErrAllAgentsFailed = errors.New("all agents failed")
	ErrAgentTimeout    = fmt.Errorf("%w: agent call exceeded its deadline", errs.ErrTimeout)
	ErrNoAgent         = errors.New("no agent registered for kind")
)

// Request is a user question addressed to a set of repositories
type Request struct {
	Text          string   `json:"query" validate:"required"`
	RepositoryIDs []string `json:"repository_ids"`
	ParentID      string   `json:"parent_id,omitempty"`
}

// AgentResult is one agent's outcome. Exactly one of Payload and Err is set.
type AgentResult struct {
	Agent   Kind
	Payload string
	Err     error
}

func (r AgentResult) OK() bool {
	return r.Err == nil
}

func (r AgentResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Agent   Kind   `json:"agent"`
		Payload string `json:"payload,omitempty"`
		Error   string `json:"error,omitempty"`
	}{Agent: r.Agent, Payload: r.Payload}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// QueryResult is the answer to a Request. It is not modified after Answer
// returns it.
type QueryResult struct {
	ID           string        `json:"id"`
	ParentID     string        `json:"parent_id,omitempty"`
	Query        string        `json:"query"`
	Scope        []string      `json:"scope"`
	Plan         []Kind        `json:"plan"`
	AgentResults []AgentResult `json:"agent_results"`
	Answer       string        `json:"answer"`
	Context      []AgentResult `json:"context,omitempty"`
	Degraded     bool          `json:"degraded"`
	Warnings     []string      `json:"warnings,omitempty"`
	Timestamp    int64         `json:"timestamp"`
}

// Result returns the agent result for kind, if kind was planned.
func (q *QueryResult) Result(kind Kind) (AgentResult, bool) {
	for _, r := range q.AgentResults {
		if r.Agent == kind {
			return r, true
		}
	}
	return AgentResult{}, false
}

func (q *QueryResult) entry() *conversations.Entry {
	res := conversations.Result{
		Answer:   q.Answer,
		Degraded: q.Degraded,
		Warnings: q.Warnings,
	}
	for _, k := range q.Plan {
		res.Plan = append(res.Plan, k.String())
	}
	for _, r := range q.AgentResults {
		o := conversations.Outcome{Agent: r.Agent.String(), Payload: r.Payload}
		if r.Err != nil {
			o.Error = r.Err.Error()
		}
		res.Agents = append(res.Agents, o)
	}
	return &conversations.Entry{
		ParentID:      q.ParentID,
		Query:         q.Query,
		RepositoryIDs: q.Scope,
		Result:        res,
	}
}

// AllAgentsFailedError carries the individual failure of every planned agent
type AllAgentsFailedError struct {
	Query    string
	Failures []AgentResult
}

func (e *AllAgentsFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Agent, f.Err))
	}
	return fmt.Sprintf("all agents failed (%s)", strings.Join(parts, "; "))
}

func (e *AllAgentsFailedError) Unwrap() error {
	return ErrAllAgentsFailed
}

// Errors returns the failure of each agent keyed by kind
func (e *AllAgentsFailedError) Errors() map[Kind]error {
	out := make(map[Kind]error, len(e.Failures))
	for _, f := range e.Failures {
		out[f.Agent] = f.Err
	}
	return out
}
