package agents

import (
	"fmt"
	"strings"

	"github.com/gomantics/repochat/internal/errs"
)

// Planner decides which agents answer a query, in invocation order.
type Planner interface {
	Plan(text string) []Kind
}

// DefaultPlanner always runs every agent.
type DefaultPlanner struct{}

func (DefaultPlanner) Plan(string) []Kind {
	return append([]Kind(nil), AllKinds...)
}

// KeywordPlanner narrows factual lookups to code retrieval plus completion.
type KeywordPlanner struct {
	Phrases []string
}

var defaultLookupPhrases = []string{
	"where is",
	"where are",
	"where do",
	"which file",
	" find ",
	"show me the code",
	"show me where",
	" locate ",
	"definition of",
}

func NewKeywordPlanner() KeywordPlanner {
	return KeywordPlanner{Phrases: defaultLookupPhrases}
}

func (p KeywordPlanner) Plan(text string) []Kind {
	lower := " " + strings.ToLower(text) + " "
	for _, phrase := range p.Phrases {
		if strings.Contains(lower, phrase) {
			return []Kind{KindChunks, KindCompletion}
		}
	}
	return DefaultPlanner{}.Plan(text)
}

// NewPlanner returns the planner configured under name ("all" or "keyword").
func NewPlanner(name string) (Planner, error) {
	switch name {
	case "", "all":
		return DefaultPlanner{}, nil
	case "keyword":
		return NewKeywordPlanner(), nil
	}
	return nil, fmt.Errorf("%w: unknown planner %q", errs.ErrValidation, name)
}
