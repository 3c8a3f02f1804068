package repository

import (
	"fmt"
	"time"

	"github.com/heartapi/heartgate/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
)

// Pool sizing: the admission path holds a connection only for the short
// quota CAS round-trips, so one modest pool covers the ledger, the order
// store, the registry and the credential repo together.
const (
	dbMaxOpenConns    = 50
	dbMaxIdleConns    = 10
	dbConnMaxLifetime = time.Hour
)

// NewDB opens the shared Postgres pool. Callers decide the fallback when no
// DSN is configured; an empty DSN here is an error, not a default.
func NewDB(cfg *config.Config) (*sqlx.DB, error) {
	if cfg == nil || cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database DSN is empty")
	}

	db, err := sqlx.Connect("pgx", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	db.SetMaxOpenConns(dbMaxOpenConns)
	db.SetMaxIdleConns(dbMaxIdleConns)
	db.SetConnMaxLifetime(dbConnMaxLifetime)

	return db, nil
}
