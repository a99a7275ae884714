package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccessClaims is the identity asserted by a signed access token.
type AccessClaims struct {
	UserID     uuid.UUID
	TenantID   *uuid.UUID
	Role       Role
	EmployeeID *uuid.UUID
	DeviceID   string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}
