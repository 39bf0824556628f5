package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/uhoapp/authkit/internal/common"
	"github.com/uhoapp/authkit/internal/cryptox"
	"github.com/uhoapp/authkit/internal/logging"
	"github.com/uhoapp/authkit/internal/server/auth"
	"github.com/uhoapp/authkit/internal/server/models"
	"github.com/uhoapp/authkit/internal/server/repositories/repomanager"
)

const maxAPIKeyNameLength = 64

type APIKeyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

func NewAPIKeyService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *APIKeyService {
	return &APIKeyService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "apikeys"),
		now:         time.Now,
	}
}

// Create issues a key for userID. The raw key is returned once and is not
// recoverable afterwards.
func (s *APIKeyService) Create(ctx context.Context, userID, name string) (*models.APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxAPIKeyNameLength {
		return nil, "", fmt.Errorf("%w: key name must be 1 to %d characters", common.ErrorValidation, maxAPIKeyNameLength)
	}

	generated, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("error generating api key: %w", err)
	}

	key := &models.APIKey{
		UserID:        userID,
		Name:          name,
		KeyHash:       generated.Hash,
		DisplayPrefix: generated.DisplayPrefix,
	}

	if err := s.repomanager.APIKeys(s.db).Create(ctx, key); err != nil {
		return nil, "", fmt.Errorf("error storing api key: %w", err)
	}

	s.logger.Info(ctx, "api key created", "user_id", userID, "key_id", key.ID, "prefix", key.DisplayPrefix)

	return key, generated.Raw, nil
}

func (s *APIKeyService) List(ctx context.Context, userID string) ([]*models.APIKey, error) {
	keys, err := s.repomanager.APIKeys(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing api keys: %w", err)
	}
	return keys, nil
}

// Revoke deletes key id of userID. Keys of other users are reported as not
// found.
func (s *APIKeyService) Revoke(ctx context.Context, userID, id string) error {
	if err := s.repomanager.APIKeys(s.db).Delete(ctx, userID, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error revoking api key: %w", err)
	}

	s.logger.Info(ctx, "api key revoked", "user_id", userID, "key_id", id)
	return nil
}

// Authenticate resolves a raw key to its owner. Malformed keys are rejected
// with common.ErrInvalidFormat before any lookup.
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey string) (*auth.Principal, error) {
	if !auth.ValidateAPIKeyFormat(rawKey) {
		return nil, common.ErrInvalidFormat
	}

	repo := s.repomanager.APIKeys(s.db)

	key, err := repo.FindByHash(ctx, cryptox.HashString(rawKey))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching api key: %w", err)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	if err := repo.TouchLastUsed(ctx, key.ID, s.now()); err != nil {
		s.logger.Warn(ctx, "failed to record api key use", "key_id", key.ID, "error", err)
	}

	return &auth.Principal{
		Payload: auth.Payload{
			UserID:     user.ID,
			Email:      user.Email,
			SchemaName: user.SchemaName,
		},
		Method:   auth.MethodAPIKey,
		APIKeyID: key.ID,
	}, nil
}
