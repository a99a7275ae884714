package postgres

import (
	"context"
	"database/sql"

	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) ports.AuditSink {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Record(ctx context.Context, event *domain.AuditEvent) error {
	query := `
		INSERT INTO audit_logs (tenant_id, user_id, action, entity, entity_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		event.TenantID, event.UserID, event.Action, event.Entity, event.EntityID, event.CreatedAt,
	).Scan(&event.ID)
}
