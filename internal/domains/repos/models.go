package repos

import "context"

// Repository is a registered source tracked through the sync lifecycle
type Repository struct {
	ID           string
	Source       string
	Branch       string
	State        State
	LastError    string
	LastSyncedAt *int64
	Version      int64
	Created      int64
	Updated      int64
}

// AddParams contains parameters for registering a repository
type AddParams struct {
	Source string
	Branch string
}

// RemoveStatus tells whether a removal finished or waits on a running job
type RemoveStatus string

const (
	RemoveCompleted RemoveStatus = "removed"
	RemovePending   RemoveStatus = "pending"
)

// Store persists repository records. Implementations keep insertion order
// for List and report misses with ErrNotFound.
type Store interface {
	PutRepository(ctx context.Context, repo Repository) error
	GetRepository(ctx context.Context, id string) (*Repository, error)
	ListRepositories(ctx context.Context) ([]Repository, error)
	DeleteRepository(ctx context.Context, id string) error
}

// Observer is told about every persisted change, in write order.
// Calls are made while the registry holds its write lock, so they must not block.
type Observer interface {
	RepositoryChanged(repo Repository)
	RepositoryRemoved(id string)
}

// RemovalHook runs before a repository record is deleted.
type RemovalHook func(ctx context.Context, id string) error
