package repository

import (
	"context"

	"planmarket/internal/domain/model"
)

type BillingAddressRepository interface {
	Create(ctx context.Context, address model.BillingAddress) (model.BillingAddress, error)
	ListByUserID(ctx context.Context, userID string) ([]model.BillingAddress, error)
	FindByID(ctx context.Context, addressID string) (model.BillingAddress, error)
	Update(ctx context.Context, address model.BillingAddress) error
	Delete(ctx context.Context, addressID string) error
	CountByUserID(ctx context.Context, userID string) (int64, error)
	// clears the previous default in the same statement batch
	SetDefault(ctx context.Context, userID, addressID string) error
}
