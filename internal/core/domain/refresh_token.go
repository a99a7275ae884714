package domain

import (
	"time"

	"github.com/google/uuid"
)

// ClientMeta is kept on refresh token records for forensics only.
type ClientMeta struct {
	UserAgent string
	IP        string
}

type RefreshToken struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	DeviceID   string     `json:"device_id"`
	TokenHash  string     `json:"-"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy *uuid.UUID `json:"replaced_by,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	IP         string     `json:"ip,omitempty"`
}

func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpired compares against the absolute expiry at the moment of use.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// MintedToken carries the raw refresh token. It is handed to the client
// exactly once and never persisted.
type MintedToken struct {
	RawToken  string
	RecordID  uuid.UUID
	ExpiresAt time.Time
}

type RotatedToken struct {
	RawToken         string
	RecordID         uuid.UUID
	PreviousRecordID uuid.UUID
	UserID           uuid.UUID
	DeviceID         string
	ExpiresAt        time.Time
}
