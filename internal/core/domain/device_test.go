package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeviceInfo_Validate(t *testing.T) {
	valid := DeviceInfo{DeviceID: "abc", Platform: "ios", Name: "iPhone", AppVersion: "1.0.0"}

	tests := []struct {
		name   string
		modify func(d *DeviceInfo)
		ok     bool
	}{
		{"valid", func(*DeviceInfo) {}, true},
		{"short id", func(d *DeviceInfo) { d.DeviceID = "ab" }, false},
		{"long id", func(d *DeviceInfo) { d.DeviceID = strings.Repeat("x", MaxDeviceIDLength+1) }, false},
		{"max id", func(d *DeviceInfo) { d.DeviceID = strings.Repeat("x", MaxDeviceIDLength) }, true},
		{"missing platform", func(d *DeviceInfo) { d.Platform = "" }, false},
		{"long platform", func(d *DeviceInfo) { d.Platform = strings.Repeat("p", MaxPlatformLength+1) }, false},
		{"missing name", func(d *DeviceInfo) { d.Name = "" }, false},
		{"missing app version", func(d *DeviceInfo) { d.AppVersion = "" }, false},
		{"opaque id", func(d *DeviceInfo) { d.DeviceID = "android:9f8a-not-a-uuid" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.modify(&d)
			err := d.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidDevice)
			}
		})
	}
}

func TestDeviceInfo_NormalizeTrims(t *testing.T) {
	got := DeviceInfo{DeviceID: "  abc ", Platform: "\tios", Name: "x ", AppVersion: " 1"}.Normalize()
	assert.Equal(t, DeviceInfo{DeviceID: "abc", Platform: "ios", Name: "x", AppVersion: "1"}, got)

	assert.ErrorIs(t, DeviceInfo{DeviceID: "   ", Platform: "ios", Name: "x", AppVersion: "1"}.Normalize().Validate(), ErrInvalidDevice)
}

func TestRefreshToken_State(t *testing.T) {
	now := time.Now()
	token := &RefreshToken{ExpiresAt: now}

	assert.True(t, token.IsExpired(now), "expiry is exclusive")
	assert.False(t, token.IsExpired(now.Add(-time.Nanosecond)))
	assert.False(t, token.IsRevoked())

	token.RevokedAt = &now
	assert.True(t, token.IsRevoked())
}

func TestIsRefreshTokenError(t *testing.T) {
	for _, err := range []error{ErrRefreshTokenInvalid, ErrRefreshTokenRevoked, ErrRefreshTokenExpired, ErrDeviceMismatch} {
		assert.True(t, IsRefreshTokenError(fmt.Errorf("wrapped: %w", err)))
	}
	assert.False(t, IsRefreshTokenError(ErrInvalidCredentials))
	assert.False(t, IsRefreshTokenError(errors.New("other")))
}
