package ratelimit

import (
	"context"
	"net/http"
	"time"

	"github.com/uhoapp/authkit/internal/logging"
)

// Result is the outcome of one check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds is RetryAfter rounded up to whole seconds (at least one)
// for refused results, zero otherwise.
func (r Result) RetryAfterSeconds() int {
	if r.Allowed {
		return 0
	}
	return retrySeconds(r.RetryAfter)
}

// Request is what Allow needs to know about an inbound request.
type Request struct {
	Method string
	// Route is the route scope to apply on top of the global policy, or ""
	// when the route has no override.
	Route   string
	Subject Subject
}

// Limiter applies a Policies table over a Store.
type Limiter struct {
	store    Store
	policies Policies
	metrics  *Metrics
	logger   logging.Logger
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMetrics records checks in m.
func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithClock sets the time source used to compute retry delays.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter returns a Limiter enforcing policies over store.
func NewLimiter(store Store, policies Policies, logger logging.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		policies: policies,
		logger:   logger.With("module", "ratelimit"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policies returns the table the limiter enforces.
func (l *Limiter) Policies() Policies {
	return l.policies
}

// Check counts one request for key under the policy of scope.
// Unknown scopes are always allowed.
func (l *Limiter) Check(ctx context.Context, key, scope string) (Result, error) {
	p, ok := l.policy(scope)
	if !ok {
		return Result{Allowed: true}, nil
	}
	return l.check(ctx, p, key)
}

func (l *Limiter) check(ctx context.Context, p Policy, key string) (Result, error) {
	w, admitted, err := l.store.Hit(ctx, p.Name, key, p.Max, p.Window)
	if err != nil {
		return Result{}, err
	}

	reset := w.Start.Add(p.Window)
	res := Result{
		Allowed:   admitted,
		Limit:     p.Max,
		Remaining: max(p.Max-w.Count, 0),
		Reset:     reset,
	}
	if !admitted {
		res.RetryAfter = reset.Sub(l.now())
	}

	l.metrics.RecordCheck(p.Name, admitted)
	return res, nil
}

// Allow applies the global policy and then the route policy of r, if any.
// Both must admit the request. CORS preflight requests are never limited.
//
// A refusal is returned as *ExceededError. Store failures are logged and the
// request is admitted.
func (l *Limiter) Allow(ctx context.Context, r Request) error {
	if r.Method == http.MethodOptions {
		return nil
	}

	if err := l.apply(ctx, l.policies.Global, r.Subject); err != nil {
		return err
	}

	if r.Route == "" {
		return nil
	}
	p, ok := l.policies.Routes[r.Route]
	if !ok {
		return nil
	}
	return l.apply(ctx, p, r.Subject)
}

func (l *Limiter) apply(ctx context.Context, p Policy, s Subject) error {
	key := Render(p.Key, s)

	res, err := l.check(ctx, p, key)
	if err != nil {
		l.metrics.RecordStoreError(p.Name)
		l.logger.Error(ctx, "rate limit store failure, admitting request", "scope", p.Name, "error", err)
		return nil
	}

	if !res.Allowed {
		l.logger.Warn(ctx, "rate limit exceeded", "scope", p.Name, "key", key, "retry_after", res.RetryAfterSeconds())
		return &ExceededError{Scope: p.Name, Key: key, RetryAfter: res.RetryAfter}
	}
	return nil
}

func (l *Limiter) policy(scope string) (Policy, bool) {
	if scope == ScopeGlobal || scope == "" {
		return l.policies.Global, true
	}
	p, ok := l.policies.Routes[scope]
	return p, ok
}
