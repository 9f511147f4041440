package conversations

import "context"

// Entry is one answered query. Entries are append-only.
type Entry struct {
	ID            string   `json:"id"`
	ParentID      string   `json:"parent_id,omitempty"`
	Query         string   `json:"query"`
	RepositoryIDs []string `json:"repository_ids"`
	Result        Result   `json:"result"`
	Timestamp     int64    `json:"timestamp"`
}

// Result is the stored snapshot of a query result
type Result struct {
	Answer   string    `json:"answer"`
	Degraded bool      `json:"degraded"`
	Warnings []string  `json:"warnings,omitempty"`
	Plan     []string  `json:"plan"`
	Agents   []Outcome `json:"agents"`
}

// Outcome is one agent's contribution to a stored result
type Outcome struct {
	Agent   string `json:"agent"`
	Payload string `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Store persists conversation entries. ListConversations returns the most
// recent entries first, skipping offset of them; limit <= 0 means no limit.
type Store interface {
	AppendConversation(ctx context.Context, entry Entry) error
	ListConversations(ctx context.Context, limit, offset int) ([]Entry, error)
	CountConversations(ctx context.Context) (int, error)
}

// Page is one page of history, most recent first. Pages are 1-based.
type Page struct {
	Entries    []Entry `json:"conversations"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
}
