package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinDeviceIDLength   = 3
	MaxDeviceIDLength   = 128
	MaxPlatformLength   = 32
	MaxDeviceNameLength = 128
	MaxAppVersionLength = 32
)

type Device struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	DeviceID   string    `json:"device_id"`
	Platform   string    `json:"platform"`
	Name       string    `json:"name"`
	AppVersion string    `json:"app_version"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeviceInfo is what a client says about itself on every auth request.
type DeviceInfo struct {
	DeviceID   string
	Platform   string
	Name       string
	AppVersion string
}

// Normalize trims surrounding whitespace from every field.
func (d DeviceInfo) Normalize() DeviceInfo {
	return DeviceInfo{
		DeviceID:   strings.TrimSpace(d.DeviceID),
		Platform:   strings.TrimSpace(d.Platform),
		Name:       strings.TrimSpace(d.Name),
		AppVersion: strings.TrimSpace(d.AppVersion),
	}
}

// Validate only checks presence and length. Device identifiers are opaque.
func (d DeviceInfo) Validate() error {
	switch {
	case len(d.DeviceID) < MinDeviceIDLength || len(d.DeviceID) > MaxDeviceIDLength:
		return ErrInvalidDevice
	case d.Platform == "" || len(d.Platform) > MaxPlatformLength:
		return ErrInvalidDevice
	case d.Name == "" || len(d.Name) > MaxDeviceNameLength:
		return ErrInvalidDevice
	case d.AppVersion == "" || len(d.AppVersion) > MaxAppVersionLength:
		return ErrInvalidDevice
	}
	return nil
}
