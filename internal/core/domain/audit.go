package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditActionLogin     = "LOGIN"
	AuditActionRefresh   = "TOKEN_REFRESH"
	AuditActionLogoutAll = "LOGOUT_ALL"

	AuditEntityDevice = "device"
	AuditEntityUser   = "user"
)

type AuditEvent struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  *uuid.UUID `json:"tenant_id,omitempty"`
	UserID    uuid.UUID  `json:"user_id"`
	Action    string     `json:"action"`
	Entity    string     `json:"entity"`
	EntityID  string     `json:"entity_id"`
	CreatedAt time.Time  `json:"created_at"`
}
