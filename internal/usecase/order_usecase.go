package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"github.com/shopspring/decimal"
)

// OrderUsecase is the buyer's read side of orders.
type OrderUsecase struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
}

func NewOrderUsecase(orders repo.OrderRepository, orderItems repo.OrderItemRepository) *OrderUsecase {
	return &OrderUsecase{orders: orders, orderItems: orderItems}
}

type OrderItemOutput struct {
	ProductID    string          `json:"product_id"`
	SellerID     string          `json:"seller_id"`
	ProductTitle string          `json:"product_title"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	StoreName    string          `json:"store_name,omitempty"`
}

type OrderOutput struct {
	ID              string            `json:"id"`
	OrderNumber     string            `json:"order_number"`
	BuyerID         string            `json:"buyer_id"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentMethod   string            `json:"payment_method"`
	Subtotal        decimal.Decimal   `json:"subtotal"`
	PlatformFee     decimal.Decimal   `json:"platform_fee"`
	PlatformFeeRate decimal.Decimal   `json:"platform_fee_rate"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	RefundedAmount  decimal.Decimal   `json:"refunded_amount"`
	Currency        string            `json:"currency"`
	CheckoutURL     string            `json:"checkout_url,omitempty"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []OrderItemOutput `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func (u *OrderUsecase) ListMine(ctx context.Context, buyerID string, page, limit int) (OrderListOutput, error) {
	if buyerID == "" {
		return OrderListOutput{}, unauthorized()
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	orders, total, err := u.orders.ListByBuyer(ctx, buyerID, page, limit)
	if err != nil {
		return OrderListOutput{}, fmt.Errorf("list orders: %w", err)
	}
	outs, err := withItems(ctx, u.orderItems, orders)
	if err != nil {
		return OrderListOutput{}, err
	}
	return OrderListOutput{Items: outs, Total: total, Page: page, Limit: limit}, nil
}

// Detail hides other buyers' orders behind NotFound.
func (u *OrderUsecase) Detail(ctx context.Context, buyerID, orderID string) (OrderOutput, error) {
	if buyerID == "" {
		return OrderOutput{}, unauthorized()
	}
	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && o.BuyerID != buyerID) {
		return OrderOutput{}, notFound(MsgOrderNotFound)
	}
	if err != nil {
		return OrderOutput{}, fmt.Errorf("find order: %w", err)
	}
	items, err := u.orderItems.ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, fmt.Errorf("list order items: %w", err)
	}
	return toOrderOutput(o, items), nil
}

func withItems(ctx context.Context, itemsRepo repo.OrderItemRepository, orders []model.Order) ([]OrderOutput, error) {
	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := itemsRepo.ListByOrderID(ctx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("list order items: %w", err)
		}
		outs = append(outs, toOrderOutput(o, items))
	}
	return outs, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID:    it.ProductID,
			SellerID:     it.SellerID,
			ProductTitle: it.ProductTitle,
			Price:        it.Price,
			Quantity:     it.Quantity,
			StoreName:    it.StoreName,
		})
	}

	out := OrderOutput{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		BuyerID:         o.BuyerID,
		Status:          string(o.Status),
		PaymentStatus:   o.PaymentStatus,
		PaymentMethod:   o.PaymentMethod,
		Subtotal:        o.Subtotal,
		PlatformFee:     o.PlatformFee,
		PlatformFeeRate: o.PlatformFeeRate,
		TotalAmount:     o.TotalAmount,
		RefundedAmount:  o.RefundedAmount,
		Currency:        o.Currency,
		PaidAt:          o.PaidAt,
		CancelledAt:     o.CancelledAt,
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
	// the hosted page is only useful while the order can still be paid
	if o.Status == model.OrderStatusPending {
		out.CheckoutURL = o.CheckoutURL
		out.ExpiresAt = o.SessionExpiresAt
	}
	return out
}
