package ports

import (
	"context"
	"time"

	"github.com/vncsmyrnk/devicesession/internal/core/domain"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error)
}

// StalePurger drops state that stopped mattering before the given time.
type StalePurger interface {
	PurgeStale(ctx context.Context, before time.Time) (int64, error)
}
