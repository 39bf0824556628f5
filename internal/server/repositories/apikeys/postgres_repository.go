package apikeys

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

func (r *PostgresRepository) Create(ctx context.Context, key *models.APIKey) error {
	query :=
		`INSERT INTO api_keys (user_id, name, key_hash, display_prefix)
         VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query, key.UserID, key.Name, key.KeyHash, key.DisplayPrefix).
		Scan(&key.ID, &key.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const selectKey = `SELECT id, user_id, name, key_hash, display_prefix, created_at, last_used_at FROM api_keys`

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, selectKey+` WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.APIKey, 0)
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) FindByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	k, err := scanKey(r.db.QueryRowContext(ctx, selectKey+` WHERE key_hash = $1`, keyHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return k, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(s scanner) (*models.APIKey, error) {
	k := &models.APIKey{}
	var lastUsed sql.NullTime

	if err := s.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.DisplayPrefix, &k.CreatedAt, &lastUsed); err != nil {
		return nil, err
	}

	if lastUsed.Valid {
		at := lastUsed.Time
		k.LastUsedAt = &at
	}

	return k, nil
}
