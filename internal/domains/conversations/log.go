package conversations

import (
	"context"
	"fmt"
	"time"

	"github.com/gomantics/repochat/internal/errs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Log is the append-only conversation history
type Log struct {
	l        *zap.Logger
	store    Store
	pageSize int
	now      func() time.Time
}

// NewLog creates a log over store. pageSize is the History limit used when
// callers pass none.
func NewLog(l *zap.Logger, store Store, pageSize int) *Log {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Log{
		l:        l.Named("conversations"),
		store:    store,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// Append stores entry, assigning its id and timestamp when unset. The only
// failure is storage unavailability; it is not retried here.
func (g *Log) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = g.now().Unix()
	}

	if err := g.store.AppendConversation(ctx, *entry); err != nil {
		g.l.Error("failed to append conversation entry", zap.String("entry_id", entry.ID), zap.Error(err))
		return fmt.Errorf("append conversation: %w", errs.Storage(err))
	}
	return nil
}

// History returns up to limit entries, most recent first.
func (g *Log) History(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = g.pageSize
	}
	entries, err := g.store.ListConversations(ctx, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", errs.Storage(err))
	}
	return entries, nil
}

// Page returns the page-th page of size entries. page < 1 is the first page,
// size <= 0 the configured page size. A page past the end has no entries.
func (g *Log) Page(ctx context.Context, page, size int) (*Page, error) {
	page = max(page, 1)
	if size <= 0 {
		size = g.pageSize
	}

	total, err := g.store.CountConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("count conversations: %w", errs.Storage(err))
	}

	out := &Page{
		Entries:    []Entry{},
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: (total + size - 1) / size,
	}
	offset := (page - 1) * size
	if offset >= total {
		return out, nil
	}

	entries, err := g.store.ListConversations(ctx, size, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", errs.Storage(err))
	}
	out.Entries = entries
	return out, nil
}
