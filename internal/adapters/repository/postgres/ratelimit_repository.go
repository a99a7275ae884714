package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
)

// RateLimitRepository keeps fixed-window counters in Postgres so every
// instance behind a load balancer shares them.
type RateLimitRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ ports.RateLimiter = (*RateLimitRepository)(nil)
	_ ports.StalePurger = (*RateLimitRepository)(nil)
)

func NewRateLimitRepository(db *sql.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db, now: time.Now}
}

// Allow increments the key's counter in a single statement. An elapsed
// window is restarted at 1 by the same upsert.
func (r *RateLimitRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	now := r.now().UTC()
	query := `
		INSERT INTO rate_limit_buckets (key, count, reset_at)
		VALUES ($1, 1, $3)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN rate_limit_buckets.reset_at <= $2 THEN 1 ELSE rate_limit_buckets.count + 1 END,
			reset_at = CASE WHEN rate_limit_buckets.reset_at <= $2 THEN $3 ELSE rate_limit_buckets.reset_at END
		RETURNING count, reset_at
	`

	var count int
	var resetAt time.Time
	if err := r.db.QueryRowContext(ctx, query, key, now, now.Add(window)).Scan(&count, &resetAt); err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("failed to increment rate limit bucket: %w", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func (r *RateLimitRepository) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rate_limit_buckets WHERE reset_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
