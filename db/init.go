package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/gomantics/repochat/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed schema/*.sql
var embedSchema embed.FS

var defaultPool *pgxpool.Pool

// Init opens the postgres pool for the configured DSN and applies the
// embedded schema.
func Init(lc fx.Lifecycle, l *zap.Logger) error {
	ctx := context.Background()
	l = l.Named("db")

	poolConfig, err := pgxpool.ParseConfig(config.Database.Dsn())
	if err != nil {
		return fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	defaultPool = pool

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			l.Info("closing database pool")
			pool.Close()
			return nil
		},
	})

	l.Info("database pool initialized")

	if err := ApplySchema(ctx, l); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the pool can reach the server
func Ping(ctx context.Context) error {
	if defaultPool == nil {
		return fmt.Errorf("pool not initialized")
	}
	return defaultPool.Ping(ctx)
}

// ApplySchema executes the embedded schema files in name order. Every
// statement is idempotent.
func ApplySchema(ctx context.Context, l *zap.Logger) error {
	if defaultPool == nil {
		return fmt.Errorf("pool not initialized")
	}

	files, err := SchemaFiles()
	if err != nil {
		return err
	}

	conn, err := defaultPool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	for _, name := range files {
		content, err := embedSchema.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", name, err)
		}
		if _, err := conn.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute schema %s: %w", name, err)
		}
		l.Info("schema file applied", zap.String("file", name))
	}
	return nil
}

// SchemaFiles lists the embedded .sql files in execution order
func SchemaFiles() ([]string, error) {
	fsys, err := fs.Sub(embedSchema, "schema")
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
