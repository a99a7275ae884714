package ports

import (
	"context"

	"github.com/vncsmyrnk/devicesession/internal/core/domain"
)

type AuditSink interface {
	Record(ctx context.Context, event *domain.AuditEvent) error
}
