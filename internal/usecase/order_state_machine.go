package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"planmarket/internal/config"
	"planmarket/internal/domain/event"
	"planmarket/internal/domain/model"
	"planmarket/internal/logging"
	repo "planmarket/internal/repository"

	"github.com/shopspring/decimal"
)

// OrderStateMachine is the only writer of Order.Status. Every transition runs
// in one transaction together with its side effects and an audit row.
type OrderStateMachine struct {
	tx       repo.TransactionManager
	notifier Notifier
	policy   config.Policy
	ids      IDGenerator
	clock    Clock
}

func NewOrderStateMachine(
	tx repo.TransactionManager,
	notifier Notifier,
	policy config.Policy,
	ids IDGenerator,
	clock Clock,
) *OrderStateMachine {
	return &OrderStateMachine{
		tx:       tx,
		notifier: notifier,
		policy:   policy,
		ids:      ids,
		clock:    clock,
	}
}

// TransitionResult reports the order after the call and whether anything changed.
type TransitionResult struct {
	Order   model.Order
	Applied bool
	// RefundDue is set when a payment settled on an order that can no longer
	// be fulfilled. The caller returns the charge through the gateway.
	RefundDue bool
}

// RefundUpdate describes money returned on an order's charge.
type RefundUpdate struct {
	// Ref is the provider refund id. A ref already on the ledger is a replay.
	Ref string
	// Amount is this refund alone. Zero here and in RefundedTotal means in full.
	Amount decimal.Decimal
	// RefundedTotal is the running total on the charge when the provider reports it.
	RefundedTotal decimal.Decimal
}

var errIllegalTransition = errors.New("illegal order transition")

// MarkPaid completes an order after a confirmed payment: clears the purchased
// products from the cart, issues download tokens and writes the sale ledger.
// Replays on an already paid order are no-ops. A payment on a CANCELLED or
// FAILED order is recorded as captured_after_close and reported through
// RefundDue until it has been refunded.
func (m *OrderStateMachine) MarkPaid(ctx context.Context, orderID, paymentIntentID, actor string) (TransitionResult, error) {
	var (
		res   TransitionResult
		items []model.OrderItem
	)
	err := m.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := lockOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		res.Order = o

		switch o.Status {
		case model.OrderStatusCompleted, model.OrderStatusPaid, model.OrderStatusDisputed:
			logging.FromContext(ctx).Info("payment already applied", "order_id", o.ID, "status", o.Status)
			return nil
		case model.OrderStatusCancelled, model.OrderStatusFailed:
			return m.captureAfterClose(ctx, r, o, paymentIntentID, actor, &res)
		}

		now := m.clock.Now()
		before := o
		o.PaymentStatus = model.PaymentStatusSucceeded
		if paymentIntentID != "" {
			o.PaymentIntentID = paymentIntentID
		}
		o.PaidAt = &now
		o.CompletedAt = &now
		if err := m.apply(ctx, r, &before, &o, model.OrderStatusCompleted, actor); err != nil {
			return err
		}

		items, err = r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("list order items: %w", err)
		}

		productIDs := make([]string, 0, len(items))
		for _, it := range items {
			productIDs = append(productIDs, it.ProductID)
		}
		if err := r.CartItems().DeleteByUserAndProducts(ctx, o.BuyerID, productIDs); err != nil {
			return fmt.Errorf("clear purchased cart items: %w", err)
		}

		tokens, err := m.newTokens(o, items)
		if err != nil {
			return err
		}
		if err := r.DownloadTokens().CreateBulk(ctx, tokens); err != nil {
			return fmt.Errorf("issue download tokens: %w", err)
		}

		if err := r.Ledger().CreateBulk(ctx, m.saleLedger(o, items)); err != nil {
			return fmt.Errorf("write sale ledger: %w", err)
		}

		res.Order = o
		res.Applied = true
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}

	if res.Applied && !res.RefundDue {
		m.notify(ctx, event.NotifyOrderPaid, res.Order.BuyerID, map[string]string{
			"order_id":     res.Order.ID,
			"order_number": res.Order.OrderNumber,
		})
		notified := map[string]bool{}
		for _, it := range items {
			if notified[it.SellerID] {
				continue
			}
			notified[it.SellerID] = true
			m.notify(ctx, event.NotifyProductSold, it.SellerID, map[string]string{
				"order_number": res.Order.OrderNumber,
				"product_id":   it.ProductID,
			})
		}
	}
	return res, nil
}

func (m *OrderStateMachine) captureAfterClose(ctx context.Context, r repo.TxRepos, o model.Order, paymentIntentID, actor string, res *TransitionResult) error {
	switch o.PaymentStatus {
	case model.PaymentStatusRefunded:
		return nil
	case model.PaymentStatusCapturedAfterClose, model.PaymentStatusPartiallyRefunded:
		res.RefundDue = true
		return nil
	}
	now := m.clock.Now()
	before := o
	o.PaymentStatus = model.PaymentStatusCapturedAfterClose
	if paymentIntentID != "" {
		o.PaymentIntentID = paymentIntentID
	}
	o.PaidAt = &now
	if err := m.apply(ctx, r, &before, &o, o.Status, actor); err != nil {
		return err
	}
	logging.FromContext(ctx).Warn("payment settled on closed order",
		"order_id", o.ID,
		"status", o.Status,
		"payment_intent_id", o.PaymentIntentID,
	)
	res.Order = o
	res.Applied = true
	res.RefundDue = true
	return nil
}

// MarkProcessing records an accepted but not yet settled payment.
func (m *OrderStateMachine) MarkProcessing(ctx context.Context, orderID, paymentIntentID, actor string) (TransitionResult, error) {
	var res TransitionResult
	err := m.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := lockOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		res.Order = o
		if o.Status != model.OrderStatusPending {
			return nil
		}
		before := o
		o.PaymentStatus = model.PaymentStatusProcessing
		if paymentIntentID != "" {
			o.PaymentIntentID = paymentIntentID
		}
		if err := m.apply(ctx, r, &before, &o, model.OrderStatusProcessing, actor); err != nil {
			return err
		}
		res.Order = o
		res.Applied = true
		return nil
	})
	return res, err
}

// MarkPaymentFailed keeps a PENDING order retryable with paymentStatus=failed.
// A settling payment that fails moves the order to FAILED.
func (m *OrderStateMachine) MarkPaymentFailed(ctx context.Context, orderID, actor string) (TransitionResult, error) {
	var res TransitionResult
	err := m.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := lockOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		res.Order = o
		before := o
		switch o.Status {
		case model.OrderStatusPending:
			if o.PaymentStatus == model.PaymentStatusFailed {
				return nil
			}
			o.PaymentStatus = model.PaymentStatusFailed
			if err := m.apply(ctx, r, &before, &o, model.OrderStatusPending, actor); err != nil {
				return err
			}
		case model.OrderStatusProcessing:
			o.PaymentStatus = model.PaymentStatusFailed
			if err := m.apply(ctx, r, &before, &o, model.OrderStatusFailed, actor); err != nil {
				return err
			}
		default:
			return nil
		}
		res.Order = o
		res.Applied = true
		return nil
	})
	return res, err
}

// MarkPaymentCancelled handles a provider-side cancellation of the charge.
// paymentRef must name the order's current session or charge; cancellations
// of anything else are ignored.
func (m *OrderStateMachine) MarkPaymentCancelled(ctx context.Context, orderID, paymentRef, actor string) (TransitionResult, error) {
	var res TransitionResult
	err := m.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := lockOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		res.Order = o
		if o.Status != model.OrderStatusPending && o.Status != model.OrderStatusProcessing {
			return nil
		}
		if paymentRef != "" && paymentRef != o.PaymentSessionID && paymentRef != o.PaymentIntentID {
			logging.FromContext(ctx).Info("ignoring cancellation of superseded payment",
				"order_id", o.ID, "payment_ref", paymentRef)
			return nil
		}
		before := o
		o.PaymentStatus = model.PaymentStatusCancelled
		if err := m.apply(ctx, r, &before, &o, model.OrderStatusFailed, actor); err != nil {
			return err
		}
		res.Order = o
		res.Applied = true
		return nil
	})
	return res, err
}

// Cancel moves a PENDING order to CANCELLED. Anything else is a BadRequest.
func (m *OrderStateMachine) Cancel(ctx context.Context, orderID, actor, reason string) (TransitionResult, error) {
	return m.cancel(ctx, orderID, actor, reason, "")
}

// ExpireSession cancels a PENDING order whose checkout session ran out.
// The expiry of a session the order has since replaced changes nothing, and
// neither does an expiry that arrives after the order moved on.
func (m *OrderStateMachine) ExpireSession(ctx context.Context, orderID, sessionID, actor string) (TransitionResult, error) {
	res, err := m.cancel(ctx, orderID, actor, cancelReasonExpired, sessionID)
	if he, ok := AsHTTPError(err); ok && he.Message == MsgOrderNotPending {
		return res, nil
	}
	return res, err
}

func (m *OrderStateMachine) cancel(ctx context.Context, orderID, actor, reason, sessionID string) (TransitionResult, error) {
	var res TransitionResult
	err := m.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := lockOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		res.Order = o
		if o.Status != model.OrderStatusPending {
			return badRequest(MsgOrderNotPending)
		}
		if sessionID != "" && o.PaymentSessionID != "" && sessionID != o.PaymentSessionID {
			logging.FromContext(ctx).Info("ignoring expiry of superseded session",
				"order_id", o.ID, "session_id", sessionID, "current_session_id", o.PaymentSessionID)
			return nil
		}
		now := m.clock.Now()
		before := o
		o.CancelledAt = &now
		o.CancellationReason = reason
		if o.PaymentStatus == model.PaymentStatusPending || o.PaymentStatus == model.PaymentStatusFailed {
			o.PaymentStatus = model.PaymentStatusCancelled
		}
		if err := m.apply(ctx, r, &before, &o, model.OrderStatusCancelled, actor); err != nil {
			return err
		}
		res.Order = o
		res.Applied = true
		return nil
	})
	if err != nil {
		return res, err
	}
	if res.Applied {
		m.notify(ctx, event.NotifyOrderCancelled, res.Order.BuyerID, map[string]string{
			"order_number": res.Order.OrderNumber,
			"reason":       reason,
		})
	}
	return res, nil
}

// MarkRefunded records money returned to the buyer. Each refund writes its
// own REFUND ledger row. Downloads stop once the whole charge is refunded;
// a partial refund keeps them and sets paymentStatus=partially_refunded.
// Order status is kept.
func (m *OrderStateMachine) MarkRefunded(ctx context.Context, orderID string, upd RefundUpdate, actor string) (TransitionResult, error) {
	var (
		res   TransitionResult
		delta decimal.Decimal
	)
	err := m.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := lockOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		res.Order = o
		if o.PaidAt == nil {
			return badRequest(MsgOrderNotRefundable)
		}
		if upd.Ref != "" {
			seen, err := r.Ledger().HasExternalRef(ctx, o.ID, model.TransactionRefund, upd.Ref)
			if err != nil {
				return fmt.Errorf("check refund ref: %w", err)
			}
			if seen {
				return nil
			}
		}

		total := upd.RefundedTotal
		switch {
		case total.IsPositive():
		case upd.Amount.IsPositive():
			total = o.RefundedAmount.Add(upd.Amount)
		default:
			total = o.TotalAmount
		}
		if total.GreaterThan(o.TotalAmount) {
			total = o.TotalAmount
		}
		delta = total.Sub(o.RefundedAmount)
		if !delta.IsPositive() {
			return nil
		}

		now := m.clock.Now()
		before := o
		o.RefundedAmount = total
		full := total.Equal(o.TotalAmount)
		if full {
			o.PaymentStatus = model.PaymentStatusRefunded
		} else {
			o.PaymentStatus = model.PaymentStatusPartiallyRefunded
		}
		if err := m.apply(ctx, r, &before, &o, o.Status, actor); err != nil {
			return err
		}
		if full {
			if err := r.DownloadTokens().SetActiveByOrder(ctx, o.ID, false, now); err != nil {
				return fmt.Errorf("deactivate tokens: %w", err)
			}
		}
		row := m.ledgerRow(o, model.TransactionRefund, nil, delta, "refund "+o.OrderNumber)
		row.ExternalRef = upd.Ref
		if err := r.Ledger().CreateBulk(ctx, []model.Transaction{row}); err != nil {
			return fmt.Errorf("write refund ledger: %w", err)
		}
		res.Order = o
		res.Applied = true
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	if res.Applied {
		m.notify(ctx, event.NotifyOrderRefunded, res.Order.BuyerID, map[string]string{
			"order_number": res.Order.OrderNumber,
			"amount":       delta.StringFixed(2),
		})
	}
	return res, nil
}

// OpenDispute moves a charged-back order to DISPUTED and suspends its tokens.
func (m *OrderStateMachine) OpenDispute(ctx context.Context, orderID string, amount decimal.Decimal, actor string) (TransitionResult, error) {
	var res TransitionResult
	err := m.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := lockOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		res.Order = o
		if o.Status == model.OrderStatusDisputed {
			return nil
		}
		if amount.IsZero() {
			amount = o.TotalAmount
		}
		now := m.clock.Now()
		before := o
		o.PaymentStatus = model.PaymentStatusDisputed
		if err := m.apply(ctx, r, &before, &o, model.OrderStatusDisputed, actor); err != nil {
			return err
		}
		if err := r.DownloadTokens().SetActiveByOrder(ctx, o.ID, false, now); err != nil {
			return fmt.Errorf("deactivate tokens: %w", err)
		}
		if err := r.Ledger().CreateBulk(ctx, []model.Transaction{
			m.ledgerRow(o, model.TransactionChargeback, nil, amount, "chargeback "+o.OrderNumber),
		}); err != nil {
			return fmt.Errorf("write chargeback ledger: %w", err)
		}
		res.Order = o
		res.Applied = true
		return nil
	})
	return res, err
}

// CloseDispute restores a won dispute to COMPLETED. A lost one stays DISPUTED.
func (m *OrderStateMachine) CloseDispute(ctx context.Context, orderID string, won bool, actor string) (TransitionResult, error) {
	var res TransitionResult
	err := m.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := lockOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		res.Order = o
		if o.Status != model.OrderStatusDisputed {
			return nil
		}
		before := o
		if !won {
			if o.PaymentStatus == model.PaymentStatusDisputeLost {
				return nil
			}
			o.PaymentStatus = model.PaymentStatusDisputeLost
			if err := m.apply(ctx, r, &before, &o, o.Status, actor); err != nil {
				return err
			}
			res.Order = o
			res.Applied = true
			return nil
		}

		now := m.clock.Now()
		o.PaymentStatus = model.PaymentStatusDisputeWon
		if o.CompletedAt == nil {
			o.CompletedAt = &now
		}
		if err := m.apply(ctx, r, &before, &o, model.OrderStatusCompleted, actor); err != nil {
			return err
		}
		if err := r.DownloadTokens().SetActiveByOrder(ctx, o.ID, true, now); err != nil {
			return fmt.Errorf("reactivate tokens: %w", err)
		}
		res.Order = o
		res.Applied = true
		return nil
	})
	return res, err
}

// apply validates the transition, stamps UpdatedAt, saves the order and
// writes the audit row. to == before.Status records a payment-status change.
func (m *OrderStateMachine) apply(ctx context.Context, r repo.TxRepos, before, after *model.Order, to model.OrderStatus, actor string) error {
	if to != before.Status && !model.CanTransition(before.Status, to) {
		return fmt.Errorf("%w: %s -> %s", errIllegalTransition, before.Status, to)
	}
	now := m.clock.Now()
	after.Status = to
	after.UpdatedAt = now
	if err := r.Orders().Save(ctx, after); err != nil {
		return fmt.Errorf("save order: %w", err)
	}

	beforeJSON, _ := json.Marshal(map[string]string{
		"status":         string(before.Status),
		"payment_status": before.PaymentStatus,
	})
	afterJSON, _ := json.Marshal(map[string]string{
		"status":         string(after.Status),
		"payment_status": after.PaymentStatus,
	})
	if actor == "" {
		actor = model.SystemActor
	}
	if err := r.AuditLogs().Create(ctx, model.AuditLog{
		ID:           m.ids.NewID(),
		ActorUserID:  actor,
		Action:       model.AuditActionUpdateOrderStatus,
		ResourceType: model.AuditResourceOrder,
		ResourceID:   after.ID,
		BeforeJSON:   string(beforeJSON),
		AfterJSON:    string(afterJSON),
		CreatedAt:    now,
	}); err != nil {
		return fmt.Errorf("write order audit: %w", err)
	}

	logging.FromContext(ctx).Info("order transition",
		"order_id", after.ID,
		"from", before.Status,
		"to", after.Status,
		"payment_status", after.PaymentStatus,
		"actor", actor,
	)
	return nil
}

// One token per order item; secrets are never shared between orders.
func (m *OrderStateMachine) newTokens(o model.Order, items []model.OrderItem) ([]model.DownloadToken, error) {
	now := m.clock.Now()
	tokens := make([]model.DownloadToken, 0, len(items))
	for _, it := range items {
		secret, err := m.ids.NewSecret()
		if err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		tokens = append(tokens, model.DownloadToken{
			ID:            m.ids.NewID(),
			Token:         secret,
			OrderID:       o.ID,
			OrderItemID:   it.ID,
			ProductID:     it.ProductID,
			BuyerID:       o.BuyerID,
			DownloadLimit: m.policy.DownloadLimit,
			DownloadCount: 0,
			ExpiresAt:     now.Add(m.policy.DownloadTTL),
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return tokens, nil
}

func (m *OrderStateMachine) saleLedger(o model.Order, items []model.OrderItem) []model.Transaction {
	rows := make([]model.Transaction, 0, len(items)+1)
	for _, it := range items {
		seller := it.SellerID
		rows = append(rows, m.ledgerRow(o, model.TransactionSale, &seller, it.LineTotal(), "sale "+it.ProductTitle))
	}
	if o.PlatformFee.IsPositive() {
		rows = append(rows, m.ledgerRow(o, model.TransactionPlatformFee, nil, o.PlatformFee, "platform fee "+o.OrderNumber))
	}
	return rows
}

func (m *OrderStateMachine) ledgerRow(o model.Order, typ model.TransactionType, sellerID *string, amount decimal.Decimal, desc string) model.Transaction {
	now := m.clock.Now()
	orderID := o.ID
	return model.Transaction{
		ID:          m.ids.NewID(),
		Type:        typ,
		Status:      model.TransactionStatusCompleted,
		OrderID:     &orderID,
		SellerID:    sellerID,
		Amount:      amount,
		Currency:    o.Currency,
		Description: desc,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (m *OrderStateMachine) notify(ctx context.Context, typ event.NotificationType, recipient string, data map[string]string) {
	if m.notifier == nil || recipient == "" {
		return
	}
	err := m.notifier.Notify(ctx, event.Notification{
		Type:        typ,
		RecipientID: recipient,
		Data:        data,
		OccurredAt:  m.clock.Now(),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("notification failed", "type", typ, "recipient_id", recipient, "err", err)
	}
}

func lockOrder(ctx context.Context, r repo.TxRepos, orderID string) (model.Order, error) {
	o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, notFound(MsgOrderNotFound)
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("lock order: %w", err)
	}
	return o, nil
}
