package ratelimit

import (
	"context"
	"time"
)

// Window is the state of one fixed window.
type Window struct {
	Count int
	Start time.Time
}

// Store keeps window state. Implementations must make Hit atomic per
// (scope, key): two concurrent hits on a window at max-1 admit exactly one.
type Store interface {
	// Hit opens a window if none is live, then admits the request and
	// increments the counter if it is below max. It returns the window after
	// the call and whether the request was admitted. A refused request leaves
	// the counter unchanged.
	Hit(ctx context.Context, scope, key string, max int, window time.Duration) (Window, bool, error)
}

// Sweeper is implemented by stores that hold expired windows in memory.
type Sweeper interface {
	// Sweep drops windows that expired before now and returns how many.
	Sweep(now time.Time) int
}
