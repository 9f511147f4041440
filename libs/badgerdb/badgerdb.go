// Package badgerdb opens embedded badger databases and runs value log GC
// for them.
package badgerdb

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

type Config struct {
	// Path is ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool

	// GCInterval of zero disables value log GC.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultConfig returns the settings used for an on-disk database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// DB is a badger database plus its GC loop.
type DB struct {
	*badger.DB

	l        *zap.Logger
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Open opens the database described by cfg. Callers must Close it.
func Open(cfg Config, l *zap.Logger) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerdb: path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&logger{l: l.Sugar()})

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	db := &DB{DB: bdb, l: l}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		db.stop = make(chan struct{})
		db.done = make(chan struct{})
		go db.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return db, nil
}

// Close stops GC and closes the database.
func (d *DB) Close() error {
	if d.stop != nil {
		d.stopOnce.Do(func() {
			close(d.stop)
			<-d.done
		})
	}
	return d.DB.Close()
}

func (d *DB) runGC(interval time.Duration, ratio float64) {
	defer close(d.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			// ErrNoRewrite only means nothing was worth collecting
			if err := d.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				d.l.Warn("badger value log gc failed", zap.Error(err))
			}
		}
	}
}

// logger routes badger's own logging into zap, demoting info to debug.
type logger struct {
	l *zap.SugaredLogger
}

func (b *logger) Errorf(format string, args ...any)   { b.l.Errorf(format, args...) }
func (b *logger) Warningf(format string, args ...any) { b.l.Warnf(format, args...) }
func (b *logger) Infof(format string, args ...any)    { b.l.Debugf(format, args...) }
func (b *logger) Debugf(format string, args ...any)   { b.l.Debugf(format, args...) }
