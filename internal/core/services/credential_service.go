package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
	"golang.org/x/crypto/bcrypt"
)

type CredentialService struct {
	userRepo  ports.UserRepository
	policy    domain.LockoutPolicy
	now       func() time.Time
	dummyHash []byte
}

// dummyHash is compared against when the email is unknown. It is computed
// once per process, before the first login is served.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("devicesession-dummy-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("failed to build dummy password hash: %v", err))
	}
	return hash
})

func NewCredentialService(userRepo ports.UserRepository, policy domain.LockoutPolicy) *CredentialService {
	return &CredentialService{
		userRepo:  userRepo,
		policy:    policy,
		now:       time.Now,
		dummyHash: dummyHash(),
	}
}

// NormalizeEmail is the lookup key for users.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CheckAccountStanding applies the lockout, status and tenant rules, in
// that order. It never looks at the password.
func CheckAccountStanding(user *domain.User, now time.Time) error {
	if user.IsLocked(now) {
		return domain.ErrAccountLocked
	}

	switch user.Status {
	case domain.UserStatusActive:
	case domain.UserStatusPendingVerification:
		return domain.ErrVerificationRequired
	default:
		return domain.ErrAccountDisabled
	}

	if user.Tenant != nil && user.Tenant.Status != domain.TenantStatusActive && user.Role != domain.RolePlatformAdmin {
		return domain.ErrTenantInactive
	}

	return nil
}

func (s *CredentialService) Verify(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		// Same bcrypt cost as a real mismatch so unknown emails cannot be told apart by timing.
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now()
	if err := CheckAccountStanding(user, now); err != nil {
		return nil, err
	}

	// Counted under the store's row lock before comparing: at most Threshold
	// comparisons per lockout window. A success clears the counter.
	attempt, err := s.userRepo.RecordLoginFailure(ctx, user.ID, s.policy, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record login attempt: %w", err)
	}
	if attempt.Attempts > s.policy.Threshold {
		return nil, domain.ErrAccountLocked
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, fmt.Errorf("failed to compare password hash: %w", err)
		}
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.userRepo.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login success: %w", err)
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	return user, nil
}

// HashPassword produces the bcrypt hash stored by the user store.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
