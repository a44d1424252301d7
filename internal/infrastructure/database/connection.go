// Package database provides the SQL-backed log store for PostgreSQL and SQLite.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver with SCRAM-SHA-256 support
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/mutugading/logquery/internal/infrastructure/config"
)

const pingTimeout = 5 * time.Second

// DB wraps the SQL connection pool and the dialect spoken by it.
type DB struct {
	*sql.DB
	dialect Dialect
}

// NewDB wraps an already opened pool.
func NewDB(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, dialect: dialect}
}

// Open creates a connection pool and waits until the database answers a
// ping, retrying with exponential backoff for up to cfg.ConnectTimeout.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(dialect.driverName(), cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	maxOpen, maxIdle, lifetime := cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime
	if dialect == DialectSQLite {
		// Every connection to an in-memory database is a separate database,
		// so the single connection must never be recycled.
		maxOpen, maxIdle, lifetime = 1, 1, 0
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	if err := pingWithRetry(ctx, sqlDB, cfg.ConnectTimeout); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("driver", dialect.String()).
		Str("target", cfg.Target()).
		Int("max_open_conns", maxOpen).
		Int("max_idle_conns", maxIdle).
		Msg("Database connection established")

	return &DB{DB: sqlDB, dialect: dialect}, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB, maxElapsed time.Duration) error {
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if maxElapsed > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = maxElapsed
		policy = eb
	}

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Database not reachable yet")
	}

	return backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), notify)
}

// Dialect returns the SQL dialect of the pool.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Close closes the database connection.
func (db *DB) Close() error {
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	log.Info().Msg("Database connection closed")
	return nil
}

// Health checks if the database is healthy.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}
