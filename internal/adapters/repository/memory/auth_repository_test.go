package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
)

func newToken(userID uuid.UUID, deviceID, hash string, expiresAt time.Time) *domain.RefreshToken {
	return &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		DeviceID:  deviceID,
		TokenHash: hash,
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
}

func TestAuthRepository_RejectsDuplicateHash(t *testing.T) {
	repo := NewAuthRepository()
	ctx := context.Background()
	userID := uuid.New()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, repo.StoreRefreshToken(ctx, newToken(userID, "dev-1", "h1", exp)))
	err := repo.StoreRefreshToken(ctx, newToken(userID, "dev-1", "h1", exp))
	assert.ErrorIs(t, err, ErrDuplicateTokenHash)
}

func TestAuthRepository_RotateIsConditional(t *testing.T) {
	repo := NewAuthRepository()
	ctx := context.Background()
	userID := uuid.New()
	exp := time.Now().Add(time.Hour)

	old := newToken(userID, "dev-1", "old", exp)
	require.NoError(t, repo.StoreRefreshToken(ctx, old))

	const workers = 16
	var successes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := newToken(userID, "dev-1", uuid.NewString(), exp)
			err := repo.RotateRefreshToken(ctx, old.ID, time.Now(), next)
			if err == nil {
				successes.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrRefreshTokenRevoked)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())

	stored, ok := repo.Get(old.ID)
	require.True(t, ok)
	require.NotNil(t, stored.RevokedAt)
	require.NotNil(t, stored.ReplacedBy)

	successor, ok := repo.Get(*stored.ReplacedBy)
	require.True(t, ok)
	assert.Nil(t, successor.RevokedAt)
}

func TestAuthRepository_RevokeAndPurge(t *testing.T) {
	repo := NewAuthRepository()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	require.NoError(t, repo.StoreRefreshToken(ctx, newToken(userID, "dev-1", "a", now.Add(time.Hour))))
	require.NoError(t, repo.StoreRefreshToken(ctx, newToken(userID, "dev-2", "b", now.Add(time.Hour))))
	require.NoError(t, repo.StoreRefreshToken(ctx, newToken(userID, "dev-2", "c", now.Add(-48*time.Hour))))
	require.NoError(t, repo.StoreRefreshToken(ctx, newToken(uuid.New(), "dev-2", "d", now.Add(time.Hour))))

	n, err := repo.RevokeDeviceRefreshTokens(ctx, userID, "dev-2", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.RevokeUserRefreshTokens(ctx, userID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only dev-1 was still active")

	n, err = repo.DeleteExpiredRefreshTokens(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetRefreshTokenByHash(ctx, "c")
	require.NoError(t, err)
	assert.Nil(t, got)
}
