package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	appconfig "github.com/GTDGit/schemagate/internal/config"
)

const (
	maxAttempts = 5
	baseDelay   = 500 * time.Millisecond
	maxDelay    = 5 * time.Second
)

// DSN builds the lib/pq connection URL for cfg.
func DSN(cfg *appconfig.DatabaseConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password), cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
	)
}

// Connect opens the PostgreSQL pool that backs the ledger and the artifact
// store. Transient startup failures are retried with exponential backoff;
// ctx bounds the whole attempt sequence.
func Connect(ctx context.Context, cfg *appconfig.DatabaseConfig) (*sqlx.DB, error) {
	if cfg == nil {
		return nil, errors.New("nil database config")
	}
	dsn := DSN(cfg)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		db, err := sqlx.Open("postgres", dsn)
		if err == nil {
			setPool(db.DB)

			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = db.PingContext(pingCtx)
			cancel()
			if err == nil {
				return db, nil
			}
			_ = db.Close()
		}
		lastErr = err

		log.Warn().Err(err).Int("attempt", attempt).Str("host", cfg.Host).Msg("database not ready, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxAttempts, lastErr)
}

// Migrate applies every pending migration under dir.
func Migrate(db *sql.DB, dir string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// setPool sizes the pool for short ledger statements and artifact upserts.
func setPool(db *sql.DB) {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
}

// backoff returns baseDelay * 2^(attempt-1), capped at maxDelay.
func backoff(attempt int) time.Duration {
	d := baseDelay << (attempt - 1)
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
