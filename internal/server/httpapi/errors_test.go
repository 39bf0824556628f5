package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/uhoapp/authkit/internal/common"
	"github.com/uhoapp/authkit/internal/logging"
	"github.com/uhoapp/authkit/internal/server/ratelimit"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{&ratelimit.ExceededError{Scope: "login", RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests, CodeRateLimited},
		{common.ErrTokenExpired, http.StatusUnauthorized, CodeTokenExpired},
		{common.ErrRefreshTokenExpired, http.StatusUnauthorized, CodeTokenExpired},
		{common.ErrRefreshTokenReused, http.StatusUnauthorized, CodeInvalidToken},
		{common.ErrInvalidToken, http.StatusUnauthorized, CodeInvalidToken},
		{common.ErrInvalidFormat, http.StatusBadRequest, CodeInvalidFormat},
		{common.ErrorUnauthorized, http.StatusUnauthorized, CodeUnauthorized},
		{fmt.Errorf("%w: password too short", common.ErrorValidation), http.StatusBadRequest, CodeValidationError},
		{common.ErrorAlreadyExists, http.StatusConflict, CodeConflict},
		{fmt.Errorf("db error: %w", common.ErrorNotFound), http.StatusNotFound, CodeNotFound},
		{errors.New("connection reset"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code, msg := errorStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestErrorStatus_HidesInternalDetails(t *testing.T) {
	_, _, msg := errorStatus(errors.New("pq: password authentication failed for user postgres"))
	assert.Equal(t, "internal server error", msg)
}

func TestAbortWithError_RetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	abortWithError(c, &ratelimit.ExceededError{Scope: "login", RetryAfter: 1500 * time.Millisecond})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":{"code":"RATE_LIMITED","message":"Too many requests, retry in 2 seconds"}}`, w.Body.String())
	assert.True(t, c.IsAborted())
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(logging.Discard()))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":{"code":"INTERNAL","message":"internal server error"}}`, w.Body.String())
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "unknown", clientIP(""))
	assert.Equal(t, "10.0.0.1", clientIP("::ffff:10.0.0.1"))
	assert.Equal(t, "2001:db8::1", clientIP("2001:db8::1"))
	assert.Equal(t, "not-an-ip", clientIP("not-an-ip"))
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "example.com", emailDomain("a@example.com"))
	assert.Equal(t, "", emailDomain("nope"))
}
