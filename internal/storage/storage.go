// Package storage selects the persistence driver named by configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/gomantics/repochat/config"
	"github.com/gomantics/repochat/db"
	"github.com/gomantics/repochat/internal/domains/conversations"
	"github.com/gomantics/repochat/internal/domains/repos"
	"github.com/gomantics/repochat/internal/storage/badgerstore"
	"github.com/gomantics/repochat/internal/storage/memstore"
	"github.com/gomantics/repochat/internal/storage/pgstore"
	"github.com/gomantics/repochat/internal/storage/sqlitestore"
	"github.com/gomantics/repochat/libs/badgerdb"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Store persists both repositories and the conversation log.
type Store interface {
	repos.Store
	conversations.Store
}

// New opens the configured driver and ties its shutdown to lc.
func New(lc fx.Lifecycle, l *zap.Logger) (Store, error) {
	driver := config.Storage.Driver()
	l = l.Named("storage").With(zap.String("driver", driver))

	store, closeFn, err := open(lc, l, driver)
	if err != nil {
		return nil, err
	}
	if closeFn != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				l.Info("closing storage")
				return closeFn()
			},
		})
	}

	l.Info("storage ready")
	return store, nil
}

func open(lc fx.Lifecycle, l *zap.Logger, driver string) (Store, func() error, error) {
	switch driver {
	case "memory":
		return memstore.New(), nil, nil

	case "sqlite":
		s, err := sqlitestore.Open(config.Storage.SqlitePath())
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case "badger":
		bdb, err := badgerdb.Open(badgerdb.DefaultConfig(config.Storage.BadgerPath()), l.Named("badger"))
		if err != nil {
			return nil, nil, err
		}
		s, err := badgerstore.New(bdb)
		if err != nil {
			_ = bdb.Close()
			return nil, nil, err
		}
		return s, func() error {
			if err := s.Close(); err != nil {
				l.Warn("failed to release badger sequences", zap.Error(err))
			}
			return bdb.Close()
		}, nil

	case "postgres":
		// db.Init registers its own pool shutdown
		if err := db.Init(lc, l); err != nil {
			return nil, nil, err
		}
		return pgstore.New(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", driver)
}
