package repository

import (
	"context"
	"time"

	"planmarket/internal/domain/model"
)

type CartItemRepository interface {
	ListByUserID(ctx context.Context, userID string) ([]model.CartItem, error)
	CountByUserID(ctx context.Context, userID string) (int64, error)
	ExistsForProduct(ctx context.Context, userID, productID string) (bool, error)
	// ErrDuplicate when (user, product) already exists
	Create(ctx context.Context, item *model.CartItem) error
	FindByID(ctx context.Context, itemID string) (model.CartItem, error)

	DeleteOwned(ctx context.Context, userID, itemID string) error
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
	DeleteByUserAndProducts(ctx context.Context, userID string, productIDs []string) error
	DeleteAddedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
