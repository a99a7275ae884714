package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vncsmyrnk/devicesession/internal/core/ports"
)

type maintenanceService struct {
	authRepo ports.AuthRepository
	buckets  ports.StalePurger
	now      func() time.Time
}

// NewMaintenanceService builds the cleanup job. buckets may be nil when the
// rate limiter keeps no purgeable state.
func NewMaintenanceService(authRepo ports.AuthRepository, buckets ports.StalePurger) ports.MaintenanceService {
	return &maintenanceService{
		authRepo: authRepo,
		buckets:  buckets,
		now:      time.Now,
	}
}

// Purge deletes refresh tokens that expired more than retention ago and
// rate-limit buckets whose window closed before now. Both run concurrently.
func (s *maintenanceService) Purge(ctx context.Context, retention time.Duration) (*ports.PurgeResult, error) {
	now := s.now().UTC()
	result := &ports.PurgeResult{}

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		n, err := s.authRepo.DeleteExpiredRefreshTokens(ctx, now.Add(-retention))
		if err != nil {
			errChan <- fmt.Errorf("failed to purge refresh tokens: %w", err)
			return
		}
		result.RefreshTokens = n
	}()

	if s.buckets != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.buckets.PurgeStale(ctx, now)
			if err != nil {
				errChan <- fmt.Errorf("failed to purge rate limit buckets: %w", err)
				return
			}
			result.RateLimitBuckets = n
		}()
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}
