package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
)

type UserRepository struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]*domain.User
	tenants map[uuid.UUID]*domain.Tenant
}

var _ ports.UserRepository = (*UserRepository)(nil)

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   make(map[uuid.UUID]*domain.User),
		tenants: make(map[uuid.UUID]*domain.Tenant),
	}
}

func (r *UserRepository) AddTenant(tenant domain.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[tenant.ID] = &tenant
}

// AddUser stores a copy of user. A zero ID is replaced with a new one.
func (r *UserRepository) AddUser(user domain.User) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Tenant = nil
	r.users[user.ID] = copyUser(&user)
	return r.withTenant(r.users[user.ID])
}

func (r *UserRepository) SetUserStatus(id uuid.UUID, status domain.UserStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Status = status
	}
}

func (r *UserRepository) SetTenantStatus(id uuid.UUID, status domain.TenantStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tenants[id]; ok {
		t.Status = status
	}
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.DeletedAt == nil && strings.EqualFold(u.Email, email) {
			return r.withTenant(u), nil
		}
	}
	return nil, nil
}

func (r *UserRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, nil
	}
	return r.withTenant(u), nil
}

func (r *UserRepository) RecordLoginFailure(_ context.Context, id uuid.UUID, policy domain.LockoutPolicy, now time.Time) (*domain.LoginFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	failure := policy.Next(u.FailedLoginAttempts, u.LockedUntil, now)
	u.FailedLoginAttempts = failure.Attempts
	u.LockedUntil = failure.LockedUntil
	return &failure, nil
}

func (r *UserRepository) RecordLoginSuccess(_ context.Context, id uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.LastLoginAt = &now
	}
	return nil
}

// withTenant returns a detached copy joined with its tenant. Callers hold mu.
func (r *UserRepository) withTenant(u *domain.User) *domain.User {
	out := copyUser(u)
	if u.TenantID != nil {
		if t, ok := r.tenants[*u.TenantID]; ok {
			tenant := *t
			out.Tenant = &tenant
		}
	}
	return out
}

func copyUser(u *domain.User) *domain.User {
	out := *u
	if u.TenantID != nil {
		id := *u.TenantID
		out.TenantID = &id
	}
	if u.EmployeeID != nil {
		id := *u.EmployeeID
		out.EmployeeID = &id
	}
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		out.LockedUntil = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		out.LastLoginAt = &t
	}
	if u.Tenant != nil {
		tenant := *u.Tenant
		out.Tenant = &tenant
	}
	return &out
}
