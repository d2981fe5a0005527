package repository

import (
	"context"

	"planmarket/internal/domain/model"
)

// AuditLogRepository is append-only.
type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	// Trail lists a resource's entries oldest first.
	Trail(ctx context.Context, resource model.AuditResourceType, resourceID string, limit int) ([]model.AuditLog, error)
}
