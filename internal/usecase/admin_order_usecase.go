package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"planmarket/internal/domain/model"
	"planmarket/internal/domain/payment"
	"planmarket/internal/logging"
	repo "planmarket/internal/repository"

	"github.com/shopspring/decimal"
)

type AdminOrderUsecase struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	audit      repo.AuditLogRepository
	gateways   map[model.PaymentProvider]payment.Gateway
	sm         *OrderStateMachine
}

func NewAdminOrderUsecase(
	orders repo.OrderRepository,
	orderItems repo.OrderItemRepository,
	audit repo.AuditLogRepository,
	gateways []payment.Gateway,
	sm *OrderStateMachine,
) *AdminOrderUsecase {
	byProvider := make(map[model.PaymentProvider]payment.Gateway, len(gateways))
	for _, g := range gateways {
		byProvider[g.Provider()] = g
	}
	return &AdminOrderUsecase{
		orders:     orders,
		orderItems: orderItems,
		audit:      audit,
		gateways:   byProvider,
		sm:         sm,
	}
}

type AdminRefundInput struct {
	// zero refunds the whole order
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrderListOutput, error) {
	if f.Page < 1 {
		return OrderListOutput{}, badRequest(MsgInvalidInput)
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, badRequest(MsgInvalidInput)
	}
	if f.Status != "" && !validOrderStatus(model.OrderStatus(f.Status)) {
		return OrderListOutput{}, badRequest(MsgInvalidStatus)
	}
	orders, total, err := u.orders.ListAdmin(ctx, f)
	if err != nil {
		return OrderListOutput{}, fmt.Errorf("list orders: %w", err)
	}
	outs, err := withItems(ctx, u.orderItems, orders)
	if err != nil {
		return OrderListOutput{}, err
	}
	return OrderListOutput{Items: outs, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

func (u *AdminOrderUsecase) Detail(ctx context.Context, orderID string) (OrderOutput, error) {
	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
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

// Refund asks the processor for the money back, then records it through the
// state machine. A zero amount refunds whatever is left on the charge. The
// refund webhook that follows carries the same refund id and changes nothing.
func (u *AdminOrderUsecase) Refund(ctx context.Context, adminID, orderID string, in AdminRefundInput) (OrderOutput, error) {
	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, notFound(MsgOrderNotFound)
	}
	if err != nil {
		return OrderOutput{}, fmt.Errorf("find order: %w", err)
	}
	if o.PaidAt == nil || o.PaymentStatus == model.PaymentStatusRefunded {
		return OrderOutput{}, badRequest(MsgOrderNotRefundable)
	}
	remaining := o.TotalAmount.Sub(o.RefundedAmount)
	if !remaining.IsPositive() {
		return OrderOutput{}, badRequest(MsgOrderNotRefundable)
	}
	if in.Amount.IsNegative() || in.Amount.GreaterThan(remaining) {
		return OrderOutput{}, badRequest(MsgInvalidInput)
	}
	gw, ok := u.gateways[o.PaymentProvider]
	if !ok {
		return OrderOutput{}, badRequest(MsgPaymentMethodInvalid)
	}

	ref := o.PaymentIntentID
	if ref == "" {
		ref = o.PaymentSessionID
	}
	res, err := gw.Refund(ctx, payment.RefundRequest{
		PaymentRef: ref,
		Amount:     in.Amount,
		Currency:   o.Currency,
		Reason:     strings.TrimSpace(in.Reason),
	})
	if err != nil {
		return OrderOutput{}, providerFailure(ctx, o.ID, err)
	}
	logging.FromContext(ctx).Info("refund issued", "order_id", o.ID, "refund_id", res.RefundID, "status", res.Status)

	amount := res.Amount
	if amount.IsZero() {
		amount = in.Amount
	}
	tr, err := u.sm.MarkRefunded(ctx, o.ID, RefundUpdate{Ref: res.RefundID, Amount: amount}, adminID)
	if err != nil {
		return OrderOutput{}, err
	}
	items, err := u.orderItems.ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, fmt.Errorf("list order items: %w", err)
	}
	return toOrderOutput(tr.Order, items), nil
}

// Cancel lets an admin close a PENDING order on the buyer's behalf.
func (u *AdminOrderUsecase) Cancel(ctx context.Context, adminID, orderID, reason string) (OrderOutput, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by admin"
	}
	tr, err := u.sm.Cancel(ctx, orderID, adminID, reason)
	if err != nil {
		return OrderOutput{}, err
	}
	items, err := u.orderItems.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, fmt.Errorf("list order items: %w", err)
	}
	return toOrderOutput(tr.Order, items), nil
}

// AuditTrail returns the status history of one order.
func (u *AdminOrderUsecase) AuditTrail(ctx context.Context, orderID string) ([]model.AuditLog, error) {
	logs, err := u.audit.Trail(ctx, model.AuditResourceOrder, orderID, 100)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

func validOrderStatus(s model.OrderStatus) bool {
	switch s {
	case model.OrderStatusPending, model.OrderStatusProcessing, model.OrderStatusPaid,
		model.OrderStatusCompleted, model.OrderStatusCancelled, model.OrderStatusFailed,
		model.OrderStatusDisputed:
		return true
	}
	return false
}
