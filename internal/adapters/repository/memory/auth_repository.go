package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
)

var ErrDuplicateTokenHash = errors.New("refresh token hash already exists")

type AuthRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*domain.RefreshToken
	byHash map[string]uuid.UUID
}

var _ ports.AuthRepository = (*AuthRepository)(nil)

func NewAuthRepository() *AuthRepository {
	return &AuthRepository{
		byID:   make(map[uuid.UUID]*domain.RefreshToken),
		byHash: make(map[string]uuid.UUID),
	}
}

func (r *AuthRepository) StoreRefreshToken(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(token)
}

func (r *AuthRepository) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[tokenHash]
	if !ok {
		return nil, nil
	}
	return copyToken(r.byID[id]), nil
}

func (r *AuthRepository) RotateRefreshToken(_ context.Context, oldID uuid.UUID, revokedAt time.Time, next *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.byID[oldID]
	if !ok {
		return domain.ErrRefreshTokenInvalid
	}
	if old.RevokedAt != nil {
		return domain.ErrRefreshTokenRevoked
	}

	if err := r.insert(next); err != nil {
		return err
	}

	at := revokedAt
	nextID := next.ID
	old.RevokedAt = &at
	old.ReplacedBy = &nextID
	return nil
}

func (r *AuthRepository) RevokeRefreshToken(_ context.Context, id uuid.UUID, revokedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	at := revokedAt
	t.RevokedAt = &at
	return true, nil
}

func (r *AuthRepository) RevokeDeviceRefreshTokens(_ context.Context, userID uuid.UUID, deviceID string, revokedAt time.Time) (int64, error) {
	return r.revokeWhere(revokedAt, func(t *domain.RefreshToken) bool {
		return t.UserID == userID && t.DeviceID == deviceID
	}), nil
}

func (r *AuthRepository) RevokeUserRefreshTokens(_ context.Context, userID uuid.UUID, revokedAt time.Time) (int64, error) {
	return r.revokeWhere(revokedAt, func(t *domain.RefreshToken) bool {
		return t.UserID == userID
	}), nil
}

func (r *AuthRepository) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, t := range r.byID {
		if t.ExpiresAt.Before(before) {
			delete(r.byHash, t.TokenHash)
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the record, for assertions.
func (r *AuthRepository) Get(id uuid.UUID) (*domain.RefreshToken, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return copyToken(t), true
}

func (r *AuthRepository) revokeWhere(revokedAt time.Time, match func(*domain.RefreshToken) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, t := range r.byID {
		if t.RevokedAt == nil && match(t) {
			at := revokedAt
			t.RevokedAt = &at
			n++
		}
	}
	return n
}

// insert enforces the unique hash constraint. Callers hold mu.
func (r *AuthRepository) insert(token *domain.RefreshToken) error {
	if _, exists := r.byHash[token.TokenHash]; exists {
		return ErrDuplicateTokenHash
	}
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	r.byID[token.ID] = copyToken(token)
	r.byHash[token.TokenHash] = token.ID
	return nil
}

func copyToken(t *domain.RefreshToken) *domain.RefreshToken {
	out := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		out.RevokedAt = &at
	}
	if t.ReplacedBy != nil {
		id := *t.ReplacedBy
		out.ReplacedBy = &id
	}
	return &out
}
