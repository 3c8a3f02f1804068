package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/heartapi/heartgate/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresInterfaceRegistry resolves interface metadata and owns the stock
// counters. Stock moves only through conditional updates, never
// read-modify-write from the application.
type PostgresInterfaceRegistry struct {
	db *sqlx.DB
}

func NewPostgresInterfaceRegistry(db *sqlx.DB) *PostgresInterfaceRegistry {
	repo := &PostgresInterfaceRegistry{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresInterfaceRegistry) Resolve(ctx context.Context, path, method string) (*model.InterfaceInfo, error) {
	var info model.InterfaceInfo
	err := r.db.GetContext(ctx, &info, `
		SELECT id, name, description, host, path, method, price, stock, status
		FROM interface_info
		WHERE path = $1 AND method = $2 AND status = $3
		LIMIT 1
	`, path, method, model.InterfaceOnline)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInterfaceNotFound
		}
		return nil, err
	}
	return &info, nil
}

func (r *PostgresInterfaceRegistry) GetByID(ctx context.Context, id int64) (*model.InterfaceInfo, error) {
	var info model.InterfaceInfo
	err := r.db.GetContext(ctx, &info, `
		SELECT id, name, description, host, path, method, price, stock, status
		FROM interface_info WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInterfaceNotFound
		}
		return nil, err
	}
	return &info, nil
}

func (r *PostgresInterfaceRegistry) GetStock(ctx context.Context, id int64) (int64, error) {
	var stock int64
	err := r.db.GetContext(ctx, &stock, `SELECT stock FROM interface_info WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInterfaceNotFound
		}
		return 0, err
	}
	return stock, nil
}

// DecrementStock reserves n units atomically; false means the stock could
// not cover the request. The guard is strict: a reservation may never drain
// stock to zero, even when two reservations race past the service precheck.
func (r *PostgresInterfaceRegistry) DecrementStock(ctx context.Context, id, n int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE interface_info SET stock = stock - $2
		WHERE id = $1 AND stock > $2
	`, id, n)
	if err != nil {
		return false, err
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// IncrementStock releases n previously reserved units.
func (r *PostgresInterfaceRegistry) IncrementStock(ctx context.Context, id, n int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE interface_info SET stock = stock + $2 WHERE id = $1
	`, id, n)
	if err != nil {
		return false, err
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (r *PostgresInterfaceRegistry) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS interface_info (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			host TEXT NOT NULL,
			path TEXT NOT NULL,
			method TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			stock BIGINT NOT NULL DEFAULT 0,
			status INTEGER NOT NULL DEFAULT 1
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_interface_route ON interface_info(path, method)`)
	return nil
}
