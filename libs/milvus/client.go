package milvus

import (
	"context"
	"fmt"

	"github.com/gomantics/repochat/config"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Store is the chunk collection of one milvus instance
type Store struct {
	l          *zap.Logger
	c          *milvusclient.Client
	collection string
}

// Init connects to the configured milvus, makes sure the collection exists
// and closes the connection when the app stops.
func Init(lc fx.Lifecycle, l *zap.Logger) (*Store, error) {
	ctx := context.Background()
	l = l.Named("milvus")

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: config.Milvus.Address(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	s := &Store{l: l, c: c, collection: config.Milvus.CollectionName()}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			l.Info("closing milvus connection")
			return c.Close(ctx)
		},
	})

	l.Info("milvus client initialized", zap.String("address", config.Milvus.Address()))

	if err := s.ensureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	return s, nil
}
