package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/heartapi/heartgate/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresCredentialRepo reads consumer credentials issued by the identity
// subsystem. The gateway never writes this table.
type PostgresCredentialRepo struct {
	db *sqlx.DB
}

func NewPostgresCredentialRepo(db *sqlx.DB) *PostgresCredentialRepo {
	repo := &PostgresCredentialRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresCredentialRepo) GetByAccessKey(ctx context.Context, accessKey string) (*model.Credential, error) {
	var cred model.Credential
	err := r.db.GetContext(ctx, &cred, `
		SELECT user_id, access_key, secret_key
		FROM user_credential
		WHERE access_key = $1
		LIMIT 1
	`, accessKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &cred, nil
}

func (r *PostgresCredentialRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_credential (
			user_id BIGINT PRIMARY KEY,
			access_key TEXT UNIQUE NOT NULL,
			secret_key TEXT NOT NULL
		)
	`)
	return err
}
