package ports

import (
	"context"
	"time"
)

type PurgeResult struct {
	RefreshTokens    int64
	RateLimitBuckets int64
}

type MaintenanceService interface {
	Purge(ctx context.Context, retention time.Duration) (*PurgeResult, error)
}
