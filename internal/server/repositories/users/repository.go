// Package users declares the storage contract for user accounts.
package users

import (
	"context"

	"github.com/uhoapp/authkit/internal/server/models"
)

// Repository persists users. Lookups return common.ErrorNotFound when no row
// matches; Create returns common.ErrorAlreadyExists for a taken email.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByVerificationTokenHash(ctx context.Context, hash string) (*models.User, error)
	MarkEmailVerified(ctx context.Context, id string) error
}
