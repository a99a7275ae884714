package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
)

type DeviceService struct {
	repo ports.DeviceRepository
	now  func() time.Time
}

func NewDeviceService(repo ports.DeviceRepository) *DeviceService {
	return &DeviceService{
		repo: repo,
		now:  time.Now,
	}
}

// Upsert records that the device was seen now. Repeated calls for the same
// (userID, DeviceID) update the one existing row.
func (s *DeviceService) Upsert(ctx context.Context, userID uuid.UUID, info domain.DeviceInfo) (*domain.Device, error) {
	info = info.Normalize()
	if err := info.Validate(); err != nil {
		return nil, err
	}

	device := &domain.Device{
		UserID:     userID,
		DeviceID:   info.DeviceID,
		Platform:   info.Platform,
		Name:       info.Name,
		AppVersion: info.AppVersion,
		LastSeenAt: s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to upsert device: %w", err)
	}
	return device, nil
}

func (s *DeviceService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Device, error) {
	devices, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}
