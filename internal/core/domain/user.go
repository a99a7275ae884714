package domain

import (
	"time"

	"github.com/google/uuid"
)

type UserStatus string

const (
	UserStatusActive              UserStatus = "ACTIVE"
	UserStatusInactive            UserStatus = "INACTIVE"
	UserStatusSuspended           UserStatus = "SUSPENDED"
	UserStatusPendingVerification UserStatus = "PENDING_VERIFICATION"
)

type Role string

const (
	RolePlatformAdmin Role = "PLATFORM_ADMIN"
	RoleTenantAdmin   Role = "TENANT_ADMIN"
	RoleManager       Role = "MANAGER"
	RoleEmployee      Role = "EMPLOYEE"
)

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
	TenantStatusInactive  TenantStatus = "INACTIVE"
)

type Tenant struct {
	ID     uuid.UUID    `json:"id"`
	Name   string       `json:"name"`
	Status TenantStatus `json:"status"`
}

type User struct {
	ID                  uuid.UUID  `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	PasswordHash        string     `json:"-"`
	Status              UserStatus `json:"status"`
	Role                Role       `json:"role"`
	TenantID            *uuid.UUID `json:"tenant_id,omitempty"`
	Tenant              *Tenant    `json:"tenant,omitempty"`
	EmployeeID          *uuid.UUID `json:"employee_id,omitempty"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
}

// IsLocked reports whether a lockout is in force at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// UserProfile is the projection of a user that may leave the service.
type UserProfile struct {
	ID          uuid.UUID      `json:"id"`
	Email       string         `json:"email"`
	Name        string         `json:"name"`
	Role        Role           `json:"role"`
	Status      UserStatus     `json:"status"`
	TenantID    *uuid.UUID     `json:"tenantId"`
	EmployeeID  *uuid.UUID     `json:"employeeId"`
	LastLoginAt *time.Time     `json:"lastLoginAt,omitempty"`
	Tenant      *TenantProfile `json:"tenant"`
}

type TenantProfile struct {
	ID     uuid.UUID    `json:"id"`
	Name   string       `json:"name"`
	Status TenantStatus `json:"status"`
}

func (u *User) Profile() UserProfile {
	p := UserProfile{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		Status:      u.Status,
		TenantID:    u.TenantID,
		EmployeeID:  u.EmployeeID,
		LastLoginAt: u.LastLoginAt,
	}
	if u.Tenant != nil {
		p.Tenant = &TenantProfile{ID: u.Tenant.ID, Name: u.Tenant.Name, Status: u.Tenant.Status}
	}
	return p
}
