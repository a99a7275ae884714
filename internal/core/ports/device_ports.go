package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
)

type DeviceRepository interface {
	// Upsert inserts or updates the (UserID, DeviceID) row and fills in
	// the persisted ID and CreatedAt.
	Upsert(ctx context.Context, device *domain.Device) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Device, error)
}

type DeviceRegistry interface {
	Upsert(ctx context.Context, userID uuid.UUID, info domain.DeviceInfo) (*domain.Device, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Device, error)
}
