package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
	"github.com/vncsmyrnk/devicesession/internal/logging"
)

// SessionService composes credential checks, device registration and token
// issuance into the login, refresh and logout protocols.
type SessionService struct {
	verifier ports.CredentialVerifier
	userRepo ports.UserRepository
	devices  ports.DeviceRegistry
	tokens   ports.RefreshTokenStore
	issuer   ports.AccessTokenIssuer
	audit    ports.AuditSink
	logger   *logging.Logger
	now      func() time.Time
}

func NewSessionService(
	verifier ports.CredentialVerifier,
	userRepo ports.UserRepository,
	devices ports.DeviceRegistry,
	tokens ports.RefreshTokenStore,
	issuer ports.AccessTokenIssuer,
	audit ports.AuditSink,
	logger *logging.Logger,
) *SessionService {
	return &SessionService{
		verifier: verifier,
		userRepo: userRepo,
		devices:  devices,
		tokens:   tokens,
		issuer:   issuer,
		audit:    audit,
		logger:   logger.With("component", "sessions"),
		now:      time.Now,
	}
}

func (s *SessionService) Login(ctx context.Context, input ports.LoginInput) (*ports.Session, error) {
	deviceInfo := input.Device.Normalize()
	if err := deviceInfo.Validate(); err != nil {
		return nil, err
	}

	user, err := s.verifier.Verify(ctx, input.Email, input.Password)
	if err != nil {
		return nil, err
	}

	device, err := s.devices.Upsert(ctx, user.ID, deviceInfo)
	if err != nil {
		return nil, err
	}

	minted, err := s.tokens.Mint(ctx, user.ID, device.DeviceID, input.Client)
	if err != nil {
		return nil, err
	}

	access, err := s.issueFor(user, device.DeviceID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, user, domain.AuditActionLogin, domain.AuditEntityDevice, device.ID.String())

	return &ports.Session{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     minted.RawToken,
		RefreshExpiresAt: minted.ExpiresAt,
		User:             user,
		Device:           device,
	}, nil
}

// Refresh rotates the presented token and then re-reads the user, since the
// account may have been disabled after the token was minted. If the user no
// longer qualifies, the freshly minted successor is revoked again.
func (s *SessionService) Refresh(ctx context.Context, input ports.RefreshInput) (*ports.Session, error) {
	deviceInfo := input.Device.Normalize()
	if err := deviceInfo.Validate(); err != nil {
		return nil, err
	}

	rotated, err := s.tokens.Rotate(ctx, input.RefreshToken, deviceInfo.DeviceID, input.Client)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, rotated.UserID)
	if err != nil {
		s.discard(ctx, rotated.RecordID)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		s.discard(ctx, rotated.RecordID)
		return nil, domain.ErrRefreshTokenInvalid
	}
	if err := CheckAccountStanding(user, s.now()); err != nil {
		s.discard(ctx, rotated.RecordID)
		return nil, err
	}

	device, err := s.devices.Upsert(ctx, user.ID, deviceInfo)
	if err != nil {
		s.discard(ctx, rotated.RecordID)
		return nil, err
	}

	access, err := s.issueFor(user, device.DeviceID)
	if err != nil {
		s.discard(ctx, rotated.RecordID)
		return nil, err
	}

	s.record(ctx, user, domain.AuditActionRefresh, domain.AuditEntityDevice, device.ID.String())

	return &ports.Session{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     rotated.RawToken,
		RefreshExpiresAt: rotated.ExpiresAt,
		User:             user,
		Device:           device,
	}, nil
}

func (s *SessionService) Logout(ctx context.Context, rawToken string, device domain.DeviceInfo) error {
	deviceInfo := device.Normalize()
	if err := deviceInfo.Validate(); err != nil {
		return err
	}

	revoked, err := s.tokens.Revoke(ctx, rawToken, deviceInfo.DeviceID)
	if err != nil {
		return err
	}
	if !revoked {
		return nil
	}

	s.logger.Info("device logged out", "device_id", deviceInfo.DeviceID)
	return nil
}

func (s *SessionService) LogoutAll(ctx context.Context, claims *domain.AccessClaims) (int64, error) {
	if claims == nil {
		return 0, domain.ErrUnauthorized
	}

	count, err := s.tokens.RevokeAllForUser(ctx, claims.UserID)
	if err != nil {
		return 0, err
	}

	s.record(ctx, &domain.User{ID: claims.UserID, TenantID: claims.TenantID},
		domain.AuditActionLogoutAll, domain.AuditEntityUser, claims.UserID.String())

	return count, nil
}

func (s *SessionService) issueFor(user *domain.User, deviceID string) (*domain.AccessToken, error) {
	return s.issuer.Issue(domain.AccessClaims{
		UserID:     user.ID,
		TenantID:   user.TenantID,
		Role:       user.Role,
		EmployeeID: user.EmployeeID,
		DeviceID:   deviceID,
	})
}

// record writes an audit event. A failing audit sink is logged but never
// fails a session operation that has already committed.
func (s *SessionService) record(ctx context.Context, user *domain.User, action, entity, entityID string) {
	event := &domain.AuditEvent{
		ID:        uuid.New(),
		TenantID:  user.TenantID,
		UserID:    user.ID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Error("failed to record audit event",
			"action", action,
			"user_id", user.ID,
			"error", err,
		)
	}
}

func (s *SessionService) discard(ctx context.Context, id uuid.UUID) {
	// The request may already be past its deadline; the revoke must still land.
	ctx = context.WithoutCancel(ctx)
	if err := s.tokens.RevokeRecord(ctx, id); err != nil {
		s.logger.Error("failed to revoke rotated refresh token", "token_id", id, "error", err)
	}
}
