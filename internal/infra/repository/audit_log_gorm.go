package repository

import (
	"context"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"gorm.io/gorm"
)

const maxTrailEntries = 500

type auditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) repo.AuditLogRepository {
	return &auditLogGormRepository{db: db}
}

func (r *auditLogGormRepository) Create(ctx context.Context, entry model.AuditLog) error {
	return r.db.WithContext(ctx).Create(&entry).Error
}

func (r *auditLogGormRepository) Trail(ctx context.Context, resource model.AuditResourceType, resourceID string, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > maxTrailEntries {
		limit = maxTrailEntries
	}
	entries := []model.AuditLog{}
	err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resource, resourceID).
		Order("created_at asc").Order("id asc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
