package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/uhoapp/authkit/internal/logging"
	"github.com/uhoapp/authkit/internal/server/models"
	"github.com/uhoapp/authkit/internal/server/services"
)

// UserService is the account API used by the handlers.
type UserService interface {
	TokenAuthenticator
	Register(ctx context.Context, email, password string) (*models.User, string, error)
	VerifyEmail(ctx context.Context, token string) error
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// APIKeyService is the API key API used by the handlers.
type APIKeyService interface {
	KeyAuthenticator
	Create(ctx context.Context, userID, name string) (*models.APIKey, string, error)
	List(ctx context.Context, userID string) ([]*models.APIKey, error)
	Revoke(ctx context.Context, userID, id string) error
}

// VerificationSender delivers email verification tokens to users.
type VerificationSender interface {
	SendVerification(ctx context.Context, email, token string) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type handler struct {
	users  UserService
	keys   APIKeyService
	sender VerificationSender
	pinger Pinger
	logger logging.Logger
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type createKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

type userResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	SchemaName    string `json:"schemaName"`
	EmailVerified bool   `json:"emailVerified"`
}

type meResponse struct {
	userResponse
	AuthMethod string `json:"authMethod"`
	APIKeyID   string `json:"apiKeyId,omitempty"`
}

type createKeyResponse struct {
	*models.APIKey
	Key string `json:"key"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, SchemaName: u.SchemaName, EmailVerified: u.EmailVerified}
}

// bind decodes the JSON body into v or aborts with VALIDATION_ERROR.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abortWithCode(c, http.StatusBadRequest, CodeValidationError, "invalid request body")
		return false
	}
	return true
}

func (h *handler) register(c *gin.Context) {
	var req credentialsRequest
	if !bind(c, &req) {
		return
	}

	ctx := c.Request.Context()

	user, token, err := h.users.Register(ctx, req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := h.sender.SendVerification(ctx, user.Email, token); err != nil {
		h.logger.Error(ctx, "failed to send verification email", "user_id", user.ID, "error", err)
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

func (h *handler) verifyEmail(c *gin.Context) {
	var req tokenRequest
	if !bind(c, &req) {
		return
	}

	if err := h.users.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": true})
}

func (h *handler) login(c *gin.Context) {
	var req credentialsRequest
	if !bind(c, &req) {
		return
	}

	pair, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

func (h *handler) refresh(c *gin.Context) {
	var req refreshRequest
	if !bind(c, &req) {
		return
	}

	pair, err := h.users.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

func (h *handler) logout(c *gin.Context) {
	var req refreshRequest
	if !bind(c, &req) {
		return
	}

	if err := h.users.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *handler) me(c *gin.Context) {
	p := principalFrom(c)

	user, err := h.users.GetUser(c.Request.Context(), p.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, meResponse{
		userResponse: toUserResponse(user),
		AuthMethod:   string(p.Method),
		APIKeyID:     p.APIKeyID,
	})
}

func (h *handler) createAPIKey(c *gin.Context) {
	var req createKeyRequest
	if !bind(c, &req) {
		return
	}

	p := principalFrom(c)

	key, raw, err := h.keys.Create(c.Request.Context(), p.UserID, req.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createKeyResponse{APIKey: key, Key: raw})
}

func (h *handler) listAPIKeys(c *gin.Context) {
	p := principalFrom(c)

	keys, err := h.keys.List(c.Request.Context(), p.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func (h *handler) revokeAPIKey(c *gin.Context) {
	p := principalFrom(c)

	if err := h.keys.Revoke(c.Request.Context(), p.UserID, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *handler) healthz(c *gin.Context) {
	if h.pinger != nil {
		if err := h.pinger.PingContext(c.Request.Context()); err != nil {
			h.logger.Warn(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// LogSender logs that a verification token was issued without its value.
// It stands in until a mail collaborator is configured.
type LogSender struct {
	Logger logging.Logger
}

func (s LogSender) SendVerification(ctx context.Context, email, _ string) error {
	s.Logger.Info(ctx, "verification token issued", "email_domain", emailDomain(email))
	return nil
}

func emailDomain(email string) string {
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			return email[i+1:]
		}
	}
	return ""
}
