package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/uhoapp/authkit/internal/common"
	"github.com/uhoapp/authkit/internal/server/ratelimit"
)

// Error codes of the JSON error body.
const (
	CodeRateLimited     = ratelimit.Code
	CodeTokenExpired    = "TOKEN_EXPIRED"
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeInvalidFormat   = "INVALID_FORMAT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeValidationError = "VALIDATION_ERROR"
	CodeConflict        = "CONFLICT"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL"
)

// ErrorDetail is the payload under "error".
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// errorStatus maps a service error to an HTTP status, code and client message.
func errorStatus(err error) (int, string, string) {
	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		return http.StatusTooManyRequests, CodeRateLimited, exceeded.Message()
	}

	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, CodeTokenExpired, "access token expired"
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized, CodeTokenExpired, "refresh token expired, log in again"
	case errors.Is(err, common.ErrRefreshTokenReused):
		return http.StatusUnauthorized, CodeInvalidToken, "refresh token already used, session revoked"
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, CodeInvalidToken, "invalid token"
	case errors.Is(err, common.ErrInvalidFormat):
		return http.StatusBadRequest, CodeInvalidFormat, "malformed credential"
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized, "invalid credentials"
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, CodeValidationError, err.Error()
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, CodeConflict, "already exists"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, CodeNotFound, "not found"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal server error"
	}
}

// abortWithError writes the error body for err and stops the chain.
func abortWithError(c *gin.Context, err error) {
	status, code, message := errorStatus(err)

	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		c.Header("Retry-After", strconv.Itoa(exceeded.RetryAfterSeconds()))
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func abortWithCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
