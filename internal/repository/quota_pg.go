package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/heartapi/heartgate/internal/model"
	"github.com/jmoiron/sqlx"
)

// maxCASRetries bounds the optimistic retry loop. Contention on a single
// (user, interface) pair is expected to be rare.
const maxCASRetries = 3

// PostgresQuotaLedger stores invocation quotas with a version stamp and
// mutates them only via compare-and-swap.
type PostgresQuotaLedger struct {
	db *sqlx.DB
}

func NewPostgresQuotaLedger(db *sqlx.DB) *PostgresQuotaLedger {
	ledger := &PostgresQuotaLedger{db: db}
	_ = ledger.ensureSchema(context.Background())
	return ledger
}

func (l *PostgresQuotaLedger) Get(ctx context.Context, userID, interfaceID int64) (*model.InvocationQuota, error) {
	var q model.InvocationQuota
	err := l.db.GetContext(ctx, &q, `
		SELECT user_id, interface_id, invoked_count, left_num, version
		FROM user_interface_quota
		WHERE user_id = $1 AND interface_id = $2
	`, userID, interfaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuotaNotFound
		}
		return nil, err
	}
	return &q, nil
}

// TryConsume decrements left_num and increments invoked_count as one
// version-guarded write. Exhaustion returns ErrQuotaExhausted, never a
// negative left_num.
func (l *PostgresQuotaLedger) TryConsume(ctx context.Context, userID, interfaceID int64) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		q, err := l.Get(ctx, userID, interfaceID)
		if err != nil {
			return err
		}
		if q.LeftNum <= 0 {
			return ErrQuotaExhausted
		}

		res, err := l.db.ExecContext(ctx, `
			UPDATE user_interface_quota
			SET invoked_count = invoked_count + 1,
			    left_num = left_num - 1,
			    version = version + 1
			WHERE user_id = $1 AND interface_id = $2
			  AND version = $3 AND left_num > 0
		`, userID, interfaceID, q.Version)
		if err != nil {
			return err
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			return nil
		}
		// Version moved under us; re-read and retry.
	}
	return ErrVersionConflict
}

// Rollback reverses one unit of a prior consume. Guarded so a quota that
// was never consumed cannot be over-credited.
func (l *PostgresQuotaLedger) Rollback(ctx context.Context, userID, interfaceID int64) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		q, err := l.Get(ctx, userID, interfaceID)
		if err != nil {
			return err
		}
		if q.InvokedCount <= 0 {
			return nil
		}

		res, err := l.db.ExecContext(ctx, `
			UPDATE user_interface_quota
			SET invoked_count = invoked_count - 1,
			    left_num = left_num + 1,
			    version = version + 1
			WHERE user_id = $1 AND interface_id = $2
			  AND version = $3 AND invoked_count > 0
		`, userID, interfaceID, q.Version)
		if err != nil {
			return err
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			return nil
		}
	}
	return ErrVersionConflict
}

// Grant adds purchased invocations, creating the quota row on first grant.
func (l *PostgresQuotaLedger) Grant(ctx context.Context, userID, interfaceID, count int64) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO user_interface_quota (user_id, interface_id, invoked_count, left_num, version)
		VALUES ($1, $2, 0, $3, 0)
		ON CONFLICT (user_id, interface_id)
		DO UPDATE SET left_num = user_interface_quota.left_num + $3,
		              version = user_interface_quota.version + 1
	`, userID, interfaceID, count)
	return err
}

func (l *PostgresQuotaLedger) ensureSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_interface_quota (
			user_id BIGINT NOT NULL,
			interface_id BIGINT NOT NULL,
			invoked_count BIGINT NOT NULL DEFAULT 0,
			left_num BIGINT NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, interface_id)
		)
	`)
	return err
}
