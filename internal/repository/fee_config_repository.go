package repository

import (
	"context"

	"planmarket/internal/domain/model"
)

type FeeConfigRepository interface {
	// active rules with country == NULL or country == *country, priority desc
	ListActive(ctx context.Context, country *string) ([]model.FeeConfig, error)
	List(ctx context.Context) ([]model.FeeConfig, error)
	FindByID(ctx context.Context, id string) (model.FeeConfig, error)
	Create(ctx context.Context, cfg *model.FeeConfig) error
	Update(ctx context.Context, cfg *model.FeeConfig) error
}
