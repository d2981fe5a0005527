package repository

import (
	"context"
	"time"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"gorm.io/gorm"
)

type webhookEventGormRepository struct {
	db *gorm.DB
}

func NewWebhookEventGormRepository(db *gorm.DB) repo.WebhookEventRepository {
	return &webhookEventGormRepository{db: db}
}

func (r *webhookEventGormRepository) Create(ctx context.Context, ev *model.WebhookEvent) error {
	return mapDuplicate(r.db.WithContext(ctx).Create(ev).Error)
}

func (r *webhookEventGormRepository) FindByEventID(ctx context.Context, provider model.PaymentProvider, eventID string) (model.WebhookEvent, error) {
	var ev model.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		First(&ev).Error
	if err != nil {
		return model.WebhookEvent{}, mapNotFound(err)
	}
	return ev, nil
}

func (r *webhookEventGormRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"processed_at": at, "processing_error": ""}).Error
}

func (r *webhookEventGormRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("id = ?", id).
		Update("processing_error", reason).Error
}
