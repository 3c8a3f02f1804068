package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/heartapi/heartgate/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresOrderStore persists reservation orders. Status transitions out of
// NOT_PAID are guarded in SQL so terminal states stay sticky.
type PostgresOrderStore struct {
	db *sqlx.DB
}

func NewPostgresOrderStore(db *sqlx.DB) *PostgresOrderStore {
	store := &PostgresOrderStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

func (s *PostgresOrderStore) Create(ctx context.Context, o *model.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	return s.db.QueryRowxContext(ctx, `
		INSERT INTO t_order (order_sn, user_id, interface_id, count, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, o.OrderSn, o.UserID, o.InterfaceID, o.Count, o.TotalAmount, o.Status, o.CreatedAt).Scan(&o.ID)
}

func (s *PostgresOrderStore) GetBySn(ctx context.Context, orderSn string) (*model.Order, error) {
	var o model.Order
	err := s.db.GetContext(ctx, &o, `
		SELECT id, order_sn, user_id, interface_id, count, total_amount, status, created_at
		FROM t_order WHERE order_sn = $1
	`, orderSn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

// MarkPaid transitions NOT_PAID -> PAID. Returns false without error when
// the order already left NOT_PAID.
func (s *PostgresOrderStore) MarkPaid(ctx context.Context, orderSn string) (bool, error) {
	return s.transition(ctx, orderSn, model.OrderPaid)
}

// MarkTimedOut transitions NOT_PAID -> TIMEOUT with the same guard.
func (s *PostgresOrderStore) MarkTimedOut(ctx context.Context, orderSn string) (bool, error) {
	return s.transition(ctx, orderSn, model.OrderTimeout)
}

func (s *PostgresOrderStore) transition(ctx context.Context, orderSn string, to int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE t_order SET status = $2
		WHERE order_sn = $1 AND status = $3
	`, orderSn, to, model.OrderNotPaid)
	if err != nil {
		return false, err
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (s *PostgresOrderStore) ListByUser(ctx context.Context, userID int64, status, limit int) ([]*model.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	// A negative status means no status filter.
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, order_sn, user_id, interface_id, count, total_amount, status, created_at
		FROM t_order
		WHERE user_id = $1 AND ($2 < 0 OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*model.Order, 0, limit)
	for rows.Next() {
		var o model.Order
		if err := rows.StructScan(&o); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

func (s *PostgresOrderStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS t_order (
			id BIGSERIAL PRIMARY KEY,
			order_sn TEXT UNIQUE NOT NULL,
			user_id BIGINT NOT NULL,
			interface_id BIGINT NOT NULL,
			count BIGINT NOT NULL,
			total_amount DOUBLE PRECISION NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_order_user ON t_order(user_id, status, created_at DESC)`)
	return nil
}
