package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
)

type AuthRepository interface {
	StoreRefreshToken(ctx context.Context, token *domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	// RotateRefreshToken stores next and revokes oldID pointing at it, in one
	// unit. It returns domain.ErrRefreshTokenRevoked without writing anything
	// when oldID was already revoked.
	RotateRefreshToken(ctx context.Context, oldID uuid.UUID, revokedAt time.Time, next *domain.RefreshToken) error
	RevokeRefreshToken(ctx context.Context, id uuid.UUID, revokedAt time.Time) (bool, error)
	RevokeDeviceRefreshTokens(ctx context.Context, userID uuid.UUID, deviceID string, revokedAt time.Time) (int64, error)
	RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID, revokedAt time.Time) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

type RefreshTokenStore interface {
	Mint(ctx context.Context, userID uuid.UUID, deviceID string, meta domain.ClientMeta) (*domain.MintedToken, error)
	Rotate(ctx context.Context, rawToken, deviceID string, meta domain.ClientMeta) (*domain.RotatedToken, error)
	Revoke(ctx context.Context, rawToken, deviceID string) (bool, error)
	RevokeRecord(ctx context.Context, id uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type AccessTokenIssuer interface {
	Issue(claims domain.AccessClaims) (*domain.AccessToken, error)
	Verify(token, deviceID string) (*domain.AccessClaims, error)
}

type LoginInput struct {
	Email    string
	Password string
	Device   domain.DeviceInfo
	Client   domain.ClientMeta
}

type RefreshInput struct {
	RefreshToken string
	Device       domain.DeviceInfo
	Client       domain.ClientMeta
}

type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *domain.User
	Device           *domain.Device
}

type SessionService interface {
	Login(ctx context.Context, input LoginInput) (*Session, error)
	Refresh(ctx context.Context, input RefreshInput) (*Session, error)
	Logout(ctx context.Context, rawToken string, device domain.DeviceInfo) error
	LogoutAll(ctx context.Context, claims *domain.AccessClaims) (int64, error)
}
