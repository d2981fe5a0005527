package repository

import (
	"context"
	"time"

	"planmarket/internal/domain/model"
)

type DownloadTokenRepository interface {
	CreateBulk(ctx context.Context, tokens []model.DownloadToken) error
	FindByToken(ctx context.Context, token string) (model.DownloadToken, error)
	FindByID(ctx context.Context, id string) (model.DownloadToken, error)
	ListByOrderID(ctx context.Context, orderID string) ([]model.DownloadToken, error)
	ListByBuyerID(ctx context.Context, buyerID string) ([]model.DownloadToken, error)

	// Consume spends one download with a single conditional UPDATE.
	// Returns false when the token is inactive, expired or used up.
	Consume(ctx context.Context, id string, now time.Time, ip string) (bool, error)

	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	SetActiveByOrder(ctx context.Context, orderID string, active bool, now time.Time) error
	Regenerate(ctx context.Context, id string, token string, expiresAt time.Time, now time.Time) error
}
