package repository

import (
	"context"
	"time"

	"planmarket/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page    int
	Limit   int
	Status  string
	BuyerID *string
	From    *time.Time
	To      *time.Time
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, orderID string) (model.Order, error)
	// row lock, falls back to a plain read where the dialect has none
	FindByIDForUpdate(ctx context.Context, orderID string) (model.Order, error)
	FindByPaymentRef(ctx context.Context, provider model.PaymentProvider, ref string) (model.Order, error)
	Save(ctx context.Context, order *model.Order) error
	ListByBuyer(ctx context.Context, buyerID string, page, limit int) ([]model.Order, int64, error)
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error)
	ListByPaymentStatus(ctx context.Context, paymentStatus string, limit int) ([]model.Order, error)
}

type OrderItemRepository interface {
	CreateBulk(ctx context.Context, items []model.OrderItem) error
	ListByOrderID(ctx context.Context, orderID string) ([]model.OrderItem, error)
	FindByOrderAndProduct(ctx context.Context, orderID, productID string) (model.OrderItem, error)
}
