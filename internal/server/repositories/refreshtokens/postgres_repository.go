package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uhoapp/authkit/internal/common"
	"github.com/uhoapp/authkit/internal/dbx"
	"github.com/uhoapp/authkit/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.RefreshToken) error {

	query :=
		`INSERT INTO refresh_tokens (user_id, family_id, token_hash, expires_at)
         VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		token.UserID, token.FamilyID, token.TokenHash, token.ExpiresAt).
		Scan(&token.ID, &token.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query :=
		`SELECT id, user_id, family_id, token_hash, expires_at, used_at, created_at
		 FROM refresh_tokens
		 WHERE token_hash = $1
		 `

	t := &models.RefreshToken{}
	var usedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&t.ID, &t.UserID, &t.FamilyID, &t.TokenHash, &t.ExpiresAt, &usedAt, &t.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if usedAt.Valid {
		at := usedAt.Time
		t.UsedAt = &at
	}

	return t, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	query :=
		`UPDATE refresh_tokens SET used_at = $2
		 WHERE id = $1 AND used_at IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n == 1, nil
}

func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM refresh_tokens WHERE family_id = $1`, familyID)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}
