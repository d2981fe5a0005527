package repository

import (
	"context"
	"time"

	"planmarket/internal/domain/model"
)

type WebhookEventRepository interface {
	// ErrDuplicate when (provider, event id) was already recorded
	Create(ctx context.Context, ev *model.WebhookEvent) error
	FindByEventID(ctx context.Context, provider model.PaymentProvider, eventID string) (model.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
}
