package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
	"github.com/vncsmyrnk/devicesession/internal/logging"
)

const refreshTokenBytes = 32

type RefreshTokenConfig struct {
	// Secret keys the HMAC over raw tokens. Rotating it invalidates every
	// outstanding refresh token.
	Secret []byte
	TTL    time.Duration
	// ReuseRevokesDevice revokes every active token of the device when an
	// already rotated token is presented again.
	ReuseRevokesDevice bool
}

type RefreshTokenService struct {
	repo   ports.AuthRepository
	cfg    RefreshTokenConfig
	logger *logging.Logger
	now    func() time.Time
}

func NewRefreshTokenService(repo ports.AuthRepository, cfg RefreshTokenConfig, logger *logging.Logger) *RefreshTokenService {
	return &RefreshTokenService{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With("component", "refresh_tokens"),
		now:    time.Now,
	}
}

func (s *RefreshTokenService) Mint(ctx context.Context, userID uuid.UUID, deviceID string, meta domain.ClientMeta) (*domain.MintedToken, error) {
	raw, record, err := s.newRecord(userID, deviceID, meta, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.repo.StoreRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &domain.MintedToken{RawToken: raw, RecordID: record.ID, ExpiresAt: record.ExpiresAt}, nil
}

// Rotate exchanges a refresh token for a new one. The checks run in a fixed
// order: unknown, revoked (replay), expired, bound to another device. Only a
// token passing all four is revoked and replaced, and the replacement is
// conditional on the old record still being unrevoked, so two concurrent
// rotations of the same token cannot both succeed.
func (s *RefreshTokenService) Rotate(ctx context.Context, rawToken, deviceID string, meta domain.ClientMeta) (*domain.RotatedToken, error) {
	if rawToken == "" {
		return nil, domain.ErrRefreshTokenInvalid
	}

	current, err := s.repo.GetRefreshTokenByHash(ctx, s.HashToken(rawToken))
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if current == nil {
		return nil, domain.ErrRefreshTokenInvalid
	}

	now := s.now().UTC()

	if current.IsRevoked() {
		s.handleReuse(ctx, current, deviceID, meta, now)
		return nil, domain.ErrRefreshTokenRevoked
	}
	if current.IsExpired(now) {
		return nil, domain.ErrRefreshTokenExpired
	}
	if current.DeviceID != deviceID {
		// The record stays untouched so the rightful device can still use it.
		s.logger.Warn("refresh token presented by another device",
			"user_id", current.UserID,
			"token_id", current.ID,
			"bound_device_id", current.DeviceID,
			"presented_device_id", deviceID,
			"ip", meta.IP,
		)
		return nil, domain.ErrDeviceMismatch
	}

	raw, next, err := s.newRecord(current.UserID, current.DeviceID, meta, now)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RotateRefreshToken(ctx, current.ID, now, next); err != nil {
		if errors.Is(err, domain.ErrRefreshTokenRevoked) {
			s.logger.Warn("concurrent rotation lost the race",
				"event", "refresh_token_reuse",
				"user_id", current.UserID,
				"token_id", current.ID,
				"device_id", deviceID,
				"ip", meta.IP,
			)
			return nil, domain.ErrRefreshTokenRevoked
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return &domain.RotatedToken{
		RawToken:         raw,
		RecordID:         next.ID,
		PreviousRecordID: current.ID,
		UserID:           next.UserID,
		DeviceID:         next.DeviceID,
		ExpiresAt:        next.ExpiresAt,
	}, nil
}

// Revoke ends the session of one device. It reports false when the token is
// unknown or belongs to a different device; an already revoked token is a
// successful no-op.
func (s *RefreshTokenService) Revoke(ctx context.Context, rawToken, deviceID string) (bool, error) {
	if rawToken == "" {
		return false, nil
	}

	current, err := s.repo.GetRefreshTokenByHash(ctx, s.HashToken(rawToken))
	if err != nil {
		return false, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if current == nil || current.DeviceID != deviceID {
		return false, nil
	}
	if current.IsRevoked() {
		return true, nil
	}

	if _, err := s.repo.RevokeRefreshToken(ctx, current.ID, s.now().UTC()); err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return true, nil
}

func (s *RefreshTokenService) RevokeRecord(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.RevokeRefreshToken(ctx, id, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *RefreshTokenService) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.repo.RevokeUserRefreshTokens(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return count, nil
}

// HashToken is the keyed, irreversible lookup key for a raw token.
func (s *RefreshTokenService) HashToken(token string) string {
	mac := hmac.New(sha256.New, s.cfg.Secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *RefreshTokenService) handleReuse(ctx context.Context, token *domain.RefreshToken, deviceID string, meta domain.ClientMeta, now time.Time) {
	var revoked int64
	if s.cfg.ReuseRevokesDevice {
		n, err := s.repo.RevokeDeviceRefreshTokens(ctx, token.UserID, token.DeviceID, now)
		if err != nil {
			s.logger.Error("failed to revoke device tokens after reuse",
				"user_id", token.UserID,
				"device_id", token.DeviceID,
				"error", err,
			)
		}
		revoked = n
	}

	s.logger.Warn("revoked refresh token presented again",
		"event", "refresh_token_reuse",
		"user_id", token.UserID,
		"token_id", token.ID,
		"bound_device_id", token.DeviceID,
		"presented_device_id", deviceID,
		"ip", meta.IP,
		"user_agent", meta.UserAgent,
		"revoked_descendants", revoked,
	)
}

func (s *RefreshTokenService) newRecord(userID uuid.UUID, deviceID string, meta domain.ClientMeta, now time.Time) (string, *domain.RefreshToken, error) {
	raw, err := generateRefreshToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return raw, &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		DeviceID:  deviceID,
		TokenHash: s.HashToken(raw),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TTL),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
	}, nil
}

func generateRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
