package httpapi

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/uhoapp/authkit/internal/common"
	"github.com/uhoapp/authkit/internal/logging"
	"github.com/uhoapp/authkit/internal/server/auth"
	"github.com/uhoapp/authkit/internal/server/models"
	"github.com/uhoapp/authkit/internal/server/ratelimit"
	"github.com/uhoapp/authkit/internal/server/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	validToken   = "valid-access-token"
	expiredToken = "expired-access-token"
	validKey     = "uho_sk_0123456789abcdef0123456789abcdef"
)

var alice = &models.User{ID: "u1", Email: "alice@example.com", SchemaName: "tenant_a"}

type fakeUsers struct {
	mu         sync.Mutex
	registered []string
	loginErr   error
	refreshErr error
	logoutErr  error
	verifyErr  error
}

func (f *fakeUsers) Authenticate(token string) (*auth.Principal, error) {
	switch token {
	case validToken:
		return &auth.Principal{
			Payload: auth.Payload{UserID: alice.ID, Email: alice.Email, SchemaName: alice.SchemaName},
			Method:  auth.MethodAccessToken,
		}, nil
	case expiredToken:
		return nil, common.ErrTokenExpired
	default:
		return nil, common.ErrInvalidToken
	}
}

func (f *fakeUsers) Register(_ context.Context, email, password string) (*models.User, string, error) {
	if len(password) < 8 {
		return nil, "", common.ErrorValidation
	}
	if email == alice.Email {
		return nil, "", common.ErrorAlreadyExists
	}
	f.mu.Lock()
	f.registered = append(f.registered, email)
	f.mu.Unlock()
	return &models.User{ID: "u2", Email: email, SchemaName: "tenant_b"}, "verification-token", nil
}

func (f *fakeUsers) VerifyEmail(context.Context, string) error { return f.verifyErr }

func (f *fakeUsers) Login(_ context.Context, email, password string) (*services.TokenPair, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	if email != alice.Email || password != "correct horse" {
		return nil, common.ErrorUnauthorized
	}
	return &services.TokenPair{AccessToken: validToken, RefreshToken: "r1", ExpiresIn: 900}, nil
}

func (f *fakeUsers) Refresh(context.Context, string) (*services.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &services.TokenPair{AccessToken: validToken, RefreshToken: "r2", ExpiresIn: 900}, nil
}

func (f *fakeUsers) Logout(context.Context, string) error { return f.logoutErr }

func (f *fakeUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	if id == alice.ID {
		return alice, nil
	}
	return nil, common.ErrorNotFound
}

type fakeKeys struct {
	mu   sync.Mutex
	keys map[string]*models.APIKey
	seq  int

	// lookups counts calls that reached the key store.
	lookups atomic.Int64
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{keys: map[string]*models.APIKey{}}
}

func (f *fakeKeys) Authenticate(_ context.Context, raw string) (*auth.Principal, error) {
	f.lookups.Add(1)
	if !auth.ValidateAPIKeyFormat(raw) {
		return nil, common.ErrInvalidFormat
	}
	if raw != validKey {
		return nil, common.ErrorUnauthorized
	}
	return &auth.Principal{
		Payload:  auth.Payload{UserID: alice.ID, Email: alice.Email, SchemaName: alice.SchemaName},
		Method:   auth.MethodAPIKey,
		APIKeyID: "k0",
	}, nil
}

func (f *fakeKeys) Create(_ context.Context, userID, name string) (*models.APIKey, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	k := &models.APIKey{ID: "k" + string(rune('0'+f.seq)), UserID: userID, Name: name, DisplayPrefix: "uho_sk_...abcd", CreatedAt: time.Now()}
	f.keys[k.ID] = k
	return k, validKey, nil
}

func (f *fakeKeys) List(_ context.Context, userID string) ([]*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.APIKey, 0)
	for _, k := range f.keys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeKeys) Revoke(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[id]
	if !ok || k.UserID != userID {
		return common.ErrorNotFound
	}
	delete(f.keys, id)
	return nil
}

type recordingSender struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (s *recordingSender) SendVerification(_ context.Context, email, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		s.tokens = map[string]string{}
	}
	s.tokens[email] = token
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type testEnv struct {
	engine *gin.Engine
	users  *fakeUsers
	keys   *fakeKeys
	sender *recordingSender
	clock  *testClock
	reg    *prometheus.Registry
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEnv(t *testing.T, policies ratelimit.Policies, pinger Pinger) *testEnv {
	t.Helper()

	env := &testEnv{
		users:  &fakeUsers{},
		keys:   newFakeKeys(),
		sender: &recordingSender{},
		clock:  &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		reg:    prometheus.NewRegistry(),
	}

	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStoreWithClock(env.clock.Now), policies, logging.Discard(),
		ratelimit.WithClock(env.clock.Now), ratelimit.WithMetrics(ratelimit.NewMetrics(env.reg)))

	engine, err := NewRouter(Deps{
		Users:          env.users,
		APIKeys:        env.keys,
		Limiter:        limiter,
		Logger:         logging.Discard(),
		Sender:         env.sender,
		Pinger:         pinger,
		Gatherer:       env.reg,
		Metrics:        NewMetrics(env.reg),
		AllowedOrigins: []string{"https://app.example.com"},
	})
	require.NoError(t, err)

	env.engine = engine
	return env
}
