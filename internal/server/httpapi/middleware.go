package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/uhoapp/authkit/internal/common"
	"github.com/uhoapp/authkit/internal/logging"
	"github.com/uhoapp/authkit/internal/server/auth"
	"github.com/uhoapp/authkit/internal/server/ratelimit"
)

const (
	principalKey = "principal"
	authErrorKey = "auth_error"
	// apiKeyKey holds a well-formed API key that has not been looked up yet.
	apiKeyKey = "api_key"
)

// Logging logs one line per request.
func Logging(logger logging.Logger, m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		m.Observe(c.Request.Method, route, status, latency)

		args := []any{
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", latency,
		}
		if p := principalFrom(c); p != nil {
			args = append(args, "user_id", p.UserID, "auth_method", string(p.Method))
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			args = append(args, "error", errs.String())
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(ctx, "request", args...)
		case status >= http.StatusBadRequest:
			logger.Warn(ctx, "request", args...)
		default:
			logger.Info(ctx, "request", args...)
		}
	}
}

// Recovery turns a panic into a 500 with the standard error body.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error(c.Request.Context(), "panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		abortWithCode(c, http.StatusInternalServerError, CodeInternal, "internal server error")
	})
}

// CORS answers preflight requests with 204 before any other middleware sees
// them. Origins not in allowedOrigins get no Allow-Origin header; "*" allows
// every origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Retry-After")
		c.Writer.Header().Set("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// TokenAuthenticator verifies access tokens.
type TokenAuthenticator interface {
	Authenticate(accessToken string) (*auth.Principal, error)
}

// KeyAuthenticator verifies API keys.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*auth.Principal, error)
}

// Authenticate attaches the principal of a valid access token. Requests
// without credentials continue anonymously. A credential that fails
// verification is remembered for RequireAuth and the request also continues
// anonymously, so it is rate limited by IP.
//
// API keys are only checked for format here; a well-formed key is left for
// AuthenticateAPIKey, which runs after RateLimit so throttled requests never
// reach the key store.
//
// Accepted forms: "Authorization: Bearer <access token>",
// "Authorization: Bearer uho_sk_..." and "X-API-Key: uho_sk_...".
func Authenticate(tokens TokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string

		if token, ok := bearerToken(c.GetHeader(common.AuthorizationHeaderName)); ok {
			if strings.HasPrefix(token, auth.APIKeyPrefix) {
				key = token
			} else if p, err := tokens.Authenticate(token); err != nil {
				c.Set(authErrorKey, err)
			} else {
				setPrincipal(c, p)
			}
		} else if v := c.GetHeader(common.APIKeyHeaderName); v != "" {
			key = v
		}

		switch {
		case key == "":
		case !auth.ValidateAPIKeyFormat(key):
			c.Set(authErrorKey, common.ErrInvalidFormat)
		default:
			c.Set(apiKeyKey, key)
		}

		c.Next()
	}
}

// AuthenticateAPIKey resolves the API key left by Authenticate.
func AuthenticateAPIKey(keys KeyAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetString(apiKeyKey); key != "" {
			p, err := keys.Authenticate(c.Request.Context(), key)
			if err != nil {
				c.Set(authErrorKey, err)
			} else {
				setPrincipal(c, p)
			}
		}

		c.Next()
	}
}

func setPrincipal(c *gin.Context, p *auth.Principal) {
	c.Set(principalKey, p)
	c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
}

func bearerToken(header string) (string, bool) {
	if len(header) < len(common.BearerPrefix) || !strings.EqualFold(header[:len(common.BearerPrefix)], common.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(common.BearerPrefix):])
	return token, token != ""
}

// RequireAuth rejects requests without a verified principal. Expired access
// tokens are reported as TOKEN_EXPIRED so clients know to refresh.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if principalFrom(c) != nil {
			c.Next()
			return
		}

		if v, ok := c.Get(authErrorKey); ok {
			if err, ok := v.(error); ok {
				abortWithError(c, err)
				return
			}
		}

		abortWithCode(c, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
	}
}

// RateLimit applies the global policy to every request and the route policy
// named in routeScopes for the matched route, if any. Requests are keyed by
// the access token's user, else by client IP; API key requests count against
// their IP since the key is resolved afterwards.
func RateLimit(limiter *ratelimit.Limiter, routeScopes map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := ratelimit.Subject{IP: clientIP(c.ClientIP())}
		if p := principalFrom(c); p != nil {
			subject.UserID = p.UserID
		}

		err := limiter.Allow(c.Request.Context(), ratelimit.Request{
			Method:  c.Request.Method,
			Route:   routeScopes[c.FullPath()],
			Subject: subject,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Next()
	}
}

func principalFrom(c *gin.Context) *auth.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}

// clientIP normalizes IPv4-mapped IPv6 addresses.
func clientIP(raw string) string {
	if raw == "" {
		return "unknown"
	}
	if ip := net.ParseIP(raw); ip != nil {
		return ip.String()
	}
	return raw
}
