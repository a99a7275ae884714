package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
)

type deviceKey struct {
	userID   uuid.UUID
	deviceID string
}

type DeviceRepository struct {
	mu      sync.RWMutex
	devices map[deviceKey]*domain.Device
}

var _ ports.DeviceRepository = (*DeviceRepository)(nil)

func NewDeviceRepository() *DeviceRepository {
	return &DeviceRepository{devices: make(map[deviceKey]*domain.Device)}
}

func (r *DeviceRepository) Upsert(_ context.Context, device *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := deviceKey{userID: device.UserID, deviceID: device.DeviceID}
	if existing, ok := r.devices[key]; ok {
		existing.Platform = device.Platform
		existing.Name = device.Name
		existing.AppVersion = device.AppVersion
		existing.LastSeenAt = device.LastSeenAt
		*device = *existing
		return nil
	}

	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	device.CreatedAt = device.LastSeenAt
	stored := *device
	r.devices[key] = &stored
	return nil
}

func (r *DeviceRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := []*domain.Device{}
	for key, d := range r.devices {
		if key.userID == userID {
			out := *d
			devices = append(devices, &out)
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].LastSeenAt.After(devices[j].LastSeenAt)
	})
	return devices, nil
}

// Count returns the number of stored rows.
func (r *DeviceRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
