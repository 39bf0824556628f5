// Package services implements the account and credential flows on top of
// the repositories: registration, login, refresh rotation and API keys.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/uhoapp/authkit/internal/common"
	"github.com/uhoapp/authkit/internal/cryptox"
	"github.com/uhoapp/authkit/internal/dbx"
	"github.com/uhoapp/authkit/internal/logging"
	"github.com/uhoapp/authkit/internal/server/auth"
	"github.com/uhoapp/authkit/internal/server/config"
	"github.com/uhoapp/authkit/internal/server/models"
	"github.com/uhoapp/authkit/internal/server/repositories/refreshtokens"
	"github.com/uhoapp/authkit/internal/server/repositories/repomanager"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128

	verificationTokenBytes = 32
)

// TokenPair is returned by login and refresh. ExpiresIn is the access token
// lifetime in seconds.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	jwtSecret   []byte
	logger      logging.Logger
	now         func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		jwtSecret:   []byte(cfg.SecretKey),
		logger:      logger.With("module", "users"),
		now:         time.Now,
	}
}

// Register creates an account and returns it together with the raw email
// verification token. Only the token digest is stored.
func (s *UserService) Register(ctx context.Context, email, password string) (*models.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", err
	}

	if err := validatePassword(password); err != nil {
		return nil, "", err
	}

	passwordHash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("error hashing password: %w", err)
	}

	verificationToken, err := common.MakeRandHexString(verificationTokenBytes)
	if err != nil {
		return nil, "", fmt.Errorf("error generating verification token: %w", err)
	}

	user := &models.User{
		Email:                 email,
		PasswordHash:          passwordHash,
		SchemaName:            newSchemaName(),
		VerificationTokenHash: cryptox.HashString(verificationToken),
	}

	repo := s.repomanager.Users(s.db)

	user, err = repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, "", common.ErrorAlreadyExists
		}
		return nil, "", fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered, verification token issued", "user_id", user.ID)

	return user, verificationToken, nil
}

// VerifyEmail consumes a verification token.
func (s *UserService) VerifyEmail(ctx context.Context, token string) error {
	if len(token) != 2*verificationTokenBytes || !common.IsLowerHex(token) {
		return common.ErrInvalidFormat
	}

	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByVerificationTokenHash(ctx, cryptox.HashString(token))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		return fmt.Errorf("error searching user: %w", err)
	}

	if err := repo.MarkEmailVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("error verifying email: %w", err)
	}

	s.logger.Info(ctx, "email verified", "user_id", user.ID)
	return nil
}

// dummyPasswordHash is checked against when the email is unknown so that
// both failure paths cost one argon2 evaluation.
var dummyPasswordHash = sync.OnceValue(func() string {
	h, err := cryptox.HashPassword("dummy password")
	if err != nil {
		return ""
	}
	return h
})

func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, error) {

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			cryptox.CheckPassword(dummyPasswordHash(), password)
			return nil, common.ErrorUnauthorized
		}
		s.logger.Error(ctx, "error searching user", "error", err)
		return nil, common.ErrorInternal
	}

	if !cryptox.CheckPassword(user.PasswordHash, password) {
		return nil, common.ErrorUnauthorized
	}

	pair, err := s.issueTokenPair(ctx, s.repomanager.RefreshTokens(s.db), user, uuid.NewString())
	if err != nil {
		s.logger.Error(ctx, "error issuing tokens", "user_id", user.ID, "error", err)
		return nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair in the same family.
//
// A token may be exchanged once. Presenting a used token revokes every
// token of its family and returns common.ErrRefreshTokenReused.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !auth.ValidateRefreshTokenFormat(refreshToken) {
		return nil, common.ErrInvalidFormat
	}

	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.FindByHash(ctx, auth.HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}

	if token.Used() {
		return nil, s.revokeReused(ctx, token)
	}

	now := s.now()
	if token.Expired(now) {
		return nil, common.ErrRefreshTokenExpired
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	var tokenPair *TokenPair

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txRepo := s.repomanager.RefreshTokens(tx)

		ok, err := txRepo.MarkUsed(ctx, token.ID, now)
		if err != nil {
			return fmt.Errorf("error invalidating refresh token: %w", err)
		}
		if !ok {
			return common.ErrRefreshTokenReused
		}

		tokenPair, err = s.issueTokenPair(ctx, txRepo, user, token.FamilyID)
		if err != nil {
			return fmt.Errorf("error generating token pair: %w", err)
		}

		return nil
	})

	if err != nil {
		// A concurrent exchange won the conditional update.
		if errors.Is(err, common.ErrRefreshTokenReused) {
			return nil, s.revokeReused(ctx, token)
		}
		return nil, err
	}

	return tokenPair, nil
}

func (s *UserService) revokeReused(ctx context.Context, token *models.RefreshToken) error {
	n, err := s.repomanager.RefreshTokens(s.db).RevokeFamily(ctx, token.FamilyID)
	if err != nil {
		return fmt.Errorf("error revoking token family: %w", err)
	}

	s.logger.Warn(ctx, "refresh token reuse detected, family revoked",
		"user_id", token.UserID, "family_id", token.FamilyID, "revoked", n)

	return common.ErrRefreshTokenReused
}

// Logout revokes the family of refreshToken. Unknown tokens are ignored.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	if !auth.ValidateRefreshTokenFormat(refreshToken) {
		return common.ErrInvalidFormat
	}

	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.FindByHash(ctx, auth.HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("error searching refresh token: %w", err)
	}

	if _, err := repo.RevokeFamily(ctx, token.FamilyID); err != nil {
		return fmt.Errorf("error revoking token family: %w", err)
	}

	s.logger.Info(ctx, "user logged out", "user_id", token.UserID)
	return nil
}

// Authenticate verifies an access token.
func (s *UserService) Authenticate(accessToken string) (*auth.Principal, error) {
	payload, err := auth.VerifyAccessToken(accessToken, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	return &auth.Principal{Payload: *payload, Method: auth.MethodAccessToken}, nil
}

// GetUser returns the account of userID.
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	return user, nil
}

func (s *UserService) issueTokenPair(ctx context.Context, repo refreshtokens.Repository, user *models.User, familyID string) (*TokenPair, error) {
	accessToken, err := auth.SignAccessToken(auth.Payload{
		UserID:     user.ID,
		Email:      user.Email,
		SchemaName: user.SchemaName,
	}, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	refreshToken, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	err = repo.Create(ctx, &models.RefreshToken{
		UserID:    user.ID,
		FamilyID:  familyID,
		TokenHash: auth.HashRefreshToken(refreshToken),
		ExpiresAt: s.now().Add(auth.RefreshTokenTTL),
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(auth.AccessTokenTTL / time.Second),
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", common.ErrorValidation)
	}

	return email, nil
}

func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength || n > maxPasswordLength {
		return fmt.Errorf("%w: password must be %d to %d characters", common.ErrorValidation, minPasswordLength, maxPasswordLength)
	}
	return nil
}

func newSchemaName() string {
	return "tenant_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
