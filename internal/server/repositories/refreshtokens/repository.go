// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/uhoapp/authkit/internal/server/models"
)

// Repository stores refresh tokens by their SHA-256 digest.
type Repository interface {
	// Create stores token and fills in its ID and CreatedAt.
	Create(ctx context.Context, token *models.RefreshToken) error

	// FindByHash returns common.ErrorNotFound when no token has that digest.
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// MarkUsed sets used_at on an unused token. It reports false when the
	// token was already used, so two concurrent rotations cannot both win.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)

	// RevokeFamily deletes every token of a family and returns how many
	// rows were removed.
	RevokeFamily(ctx context.Context, familyID string) (int64, error)

	// DeleteExpired removes tokens whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
