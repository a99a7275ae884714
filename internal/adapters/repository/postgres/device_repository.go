package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
)

type DeviceRepository struct {
	db *sql.DB
}

func NewDeviceRepository(db *sql.DB) ports.DeviceRepository {
	return &DeviceRepository{db: db}
}

func (r *DeviceRepository) Upsert(ctx context.Context, device *domain.Device) error {
	query := `
		INSERT INTO devices (user_id, device_id, platform, name, app_version, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			platform = EXCLUDED.platform,
			name = EXCLUDED.name,
			app_version = EXCLUDED.app_version,
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		device.UserID,
		device.DeviceID,
		device.Platform,
		device.Name,
		device.AppVersion,
		device.LastSeenAt,
	).Scan(&device.ID, &device.CreatedAt)
}

func (r *DeviceRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Device, error) {
	query := `
		SELECT id, user_id, device_id, platform, name, app_version, last_seen_at, created_at
		FROM devices
		WHERE user_id = $1
		ORDER BY last_seen_at DESC
	`
	return readWithRetry(ctx, func() ([]*domain.Device, error) {
		rows, err := r.db.QueryContext(ctx, query, userID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var devices []*domain.Device
		for rows.Next() {
			d := &domain.Device{}
			if err := rows.Scan(&d.ID, &d.UserID, &d.DeviceID, &d.Platform, &d.Name, &d.AppVersion, &d.LastSeenAt, &d.CreatedAt); err != nil {
				return nil, err
			}
			devices = append(devices, d)
		}
		return devices, rows.Err()
	})
}
