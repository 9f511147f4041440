package agents

import (
	"fmt"
	"strings"

	"github.com/gomantics/repochat/internal/errs"
)

// Kind identifies one of the fixed agent variants
type Kind string

const (
	KindSummary    Kind = "summary"
	KindChunks     Kind = "chunks"
	KindInsights   Kind = "insights"
	KindCompletion Kind = "completion"
)

// AllKinds is the default plan order
var AllKinds = []Kind{KindSummary, KindChunks, KindInsights, KindCompletion}

var ErrUnknownKind = fmt.Errorf("%w: unknown agent kind", errs.ErrValidation)

var wireNames = map[Kind]string{
	KindSummary:    "SUMMARIES",
	KindChunks:     "CHUNKS",
	KindInsights:   "INSIGHTS",
	KindCompletion: "COMPLETION",
}

func (k Kind) String() string {
	return string(k)
}

// WireName is the search type understood by the remote graph service.
func (k Kind) WireName() string {
	return wireNames[k]
}

// ParseKind accepts both the lowercase kind and the upper-case wire name.
func ParseKind(s string) (Kind, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "summary", "summaries":
		return KindSummary, nil
	case "chunks", "chunk":
		return KindChunks, nil
	case "insights", "insight":
		return KindInsights, nil
	case "completion":
		return KindCompletion, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}
