// Package httpapi exposes the auth flows over HTTP with gin.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uhoapp/authkit/internal/logging"
	"github.com/uhoapp/authkit/internal/server/ratelimit"
)

// RouteScopes maps route patterns to the route policy applied on top of the
// global limit.
var RouteScopes = map[string]string{
	"/auth/login":        ratelimit.ScopeLogin,
	"/auth/register":     ratelimit.ScopeRegister,
	"/auth/verify-email": ratelimit.ScopeVerifyEmail,
}

// Deps are the collaborators of the router.
type Deps struct {
	Users   UserService
	APIKeys APIKeyService
	Limiter *ratelimit.Limiter
	Logger  logging.Logger

	// Sender delivers verification tokens. Defaults to LogSender.
	Sender VerificationSender
	// Pinger backs /healthz when set.
	Pinger Pinger
	// Gatherer backs /metrics when set.
	Gatherer prometheus.Gatherer
	// Metrics records per-request metrics when set.
	Metrics *Metrics

	AllowedOrigins []string
	TrustedProxies []string
}

// NewRouter builds the gin engine.
//
// Middleware order: recovery, logging, CORS (preflight answered here),
// access token verification, rate limiting, API key lookup, then per-route
// RequireAuth.
func NewRouter(d Deps) (*gin.Engine, error) {
	sender := d.Sender
	if sender == nil {
		sender = LogSender{Logger: d.Logger}
	}

	h := &handler{
		users:  d.Users,
		keys:   d.APIKeys,
		sender: sender,
		pinger: d.Pinger,
		logger: d.Logger.With("module", "http"),
	}

	r := gin.New()
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		return nil, err
	}

	r.Use(Recovery(h.logger), Logging(h.logger, d.Metrics), CORS(d.AllowedOrigins))

	r.NoRoute(func(c *gin.Context) {
		abortWithCode(c, http.StatusNotFound, CodeNotFound, "not found")
	})

	r.GET("/healthz", h.healthz)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/", Authenticate(d.Users), RateLimit(d.Limiter, RouteScopes), AuthenticateAPIKey(d.APIKeys))

	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.register)
	authGroup.POST("/login", h.login)
	authGroup.POST("/verify-email", h.verifyEmail)
	authGroup.POST("/refresh", h.refresh)
	authGroup.POST("/logout", h.logout)
	authGroup.GET("/me", RequireAuth(), h.me)

	keys := api.Group("/api-keys", RequireAuth())
	keys.POST("", h.createAPIKey)
	keys.GET("", h.listAPIKeys)
	keys.DELETE("/:id", h.revokeAPIKey)

	return r, nil
}
