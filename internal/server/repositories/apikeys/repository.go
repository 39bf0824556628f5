// Package apikeys declares the storage contract for API keys.
package apikeys

import (
	"context"
	"time"

	"github.com/uhoapp/authkit/internal/server/models"
)

// Repository stores API keys by their SHA-256 digest. Revoking a key
// deletes its row.
type Repository interface {
	Create(ctx context.Context, key *models.APIKey) error
	ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error)
	// FindByHash returns common.ErrorNotFound for an unknown digest.
	FindByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	// Delete removes the key id owned by userID, or returns
	// common.ErrorNotFound.
	Delete(ctx context.Context, userID, id string) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}
