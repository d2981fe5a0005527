package repository

import (
	"context"

	"planmarket/internal/domain/model"

	"github.com/shopspring/decimal"
)

type ProductListQuery struct {
	Page     int
	Limit    int
	Q        string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
}

type ProductRepository interface {
	// APPROVED only
	ListPublic(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	ListBySeller(ctx context.Context, sellerID string) ([]model.Product, error)
	ListByStatus(ctx context.Context, status model.ProductStatus, page, limit int) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id string) (model.Product, error)
	// missing ids are skipped
	FindByIDs(ctx context.Context, ids []string) ([]model.Product, error)

	Create(ctx context.Context, p *model.Product) error
	Update(ctx context.Context, p *model.Product) error
	UpdateStatus(ctx context.Context, id string, status model.ProductStatus) error
	SoftDelete(ctx context.Context, id string) error
}
