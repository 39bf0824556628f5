package maintenance

import (
	"context"
	"time"

	"github.com/uhoapp/authkit/internal/dbx"
	"github.com/uhoapp/authkit/internal/server/ratelimit"
	"github.com/uhoapp/authkit/internal/server/repositories/repomanager"
)

// PurgeRefreshTokens deletes refresh tokens past their expiry. Used tokens
// are kept until then so reuse can still be detected.
func PurgeRefreshTokens(db dbx.DBTX, m repomanager.RepositoryManager, now func() time.Time) Job {
	return Job{
		Name: "purge_refresh_tokens",
		Run: func(ctx context.Context) (int64, error) {
			return m.RefreshTokens(db).DeleteExpired(ctx, now())
		},
	}
}

// SweepWindows drops expired rate limit windows from an in-memory store.
func SweepWindows(s ratelimit.Sweeper, now func() time.Time) Job {
	return Job{
		Name: "sweep_rate_limit_windows",
		Run: func(context.Context) (int64, error) {
			return int64(s.Sweep(now())), nil
		},
	}
}
