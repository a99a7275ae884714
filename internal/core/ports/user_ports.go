package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
)

type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	RecordLoginFailure(ctx context.Context, id uuid.UUID, policy domain.LockoutPolicy, now time.Time) (*domain.LoginFailure, error)
	RecordLoginSuccess(ctx context.Context, id uuid.UUID, now time.Time) error
}

type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (*domain.User, error)
}
