package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// OpenPostgres builds a pgx pool and exposes it through database/sql so the
// ledger queries are shared with the SQLite backend.
func OpenPostgres(ctx context.Context, connString string, logger *slog.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	config.MaxConns = 4
	config.MaxConnIdleTime = 10 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	logger.Info("Connected to Postgres successfully", "host", config.ConnConfig.Host, "database", config.ConnConfig.Database)

	return &Store{
		db:      stdlib.OpenDBFromPool(p),
		dialect: dialectPostgres,
		logger:  logger,
		closeFn: p.Close,
	}, nil
}
