package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"planmarket/internal/domain/model"
	"planmarket/internal/domain/payment"
	"planmarket/internal/logging"
	repo "planmarket/internal/repository"
)

// WebhookResult is the acknowledgement body. A verified event is always
// received; Processed is false when it was a duplicate or failed.
type WebhookResult struct {
	Received  bool   `json:"received"`
	Processed bool   `json:"processed"`
	EventID   string `json:"event_id,omitempty"`
}

// WebhookUsecase turns verified provider events into state machine calls.
type WebhookUsecase struct {
	events   repo.WebhookEventRepository
	orders   repo.OrderRepository
	gateways map[model.PaymentProvider]payment.Gateway
	sm       *OrderStateMachine
	cache    ProcessedEventCache
	ids      IDGenerator
	clock    Clock
}

func NewWebhookUsecase(
	events repo.WebhookEventRepository,
	orders repo.OrderRepository,
	gateways []payment.Gateway,
	sm *OrderStateMachine,
	cache ProcessedEventCache,
	ids IDGenerator,
	clock Clock,
) *WebhookUsecase {
	byProvider := make(map[model.PaymentProvider]payment.Gateway, len(gateways))
	for _, g := range gateways {
		byProvider[g.Provider()] = g
	}
	return &WebhookUsecase{
		events:   events,
		orders:   orders,
		gateways: byProvider,
		sm:       sm,
		cache:    cache,
		ids:      ids,
		clock:    clock,
	}
}

// Handle verifies, records and applies one delivery. Only a bad signature or
// an unknown provider is an error; processing failures are recorded on the
// event row and acknowledged so the provider stops retrying.
func (u *WebhookUsecase) Handle(ctx context.Context, provider model.PaymentProvider, payload []byte, header http.Header) (WebhookResult, error) {
	gw, ok := u.gateways[provider]
	if !ok {
		return WebhookResult{}, notFound(MsgInvalidInput)
	}
	ev, err := gw.ParseWebhook(ctx, payload, header)
	if err != nil {
		logging.FromContext(ctx).Warn("webhook rejected", "provider", provider, "err", err)
		return WebhookResult{}, badRequest(MsgPaymentInvalidSignature)
	}

	log := logging.FromContext(ctx).With("provider", provider, "event_id", ev.ID, "event_type", ev.Type)
	ctx = logging.IntoContext(ctx, log)
	res := WebhookResult{Received: true, EventID: ev.ID}

	cacheKey := string(provider) + ":" + ev.ID
	if u.cache != nil {
		fresh, err := u.cache.MarkIfNew(ctx, cacheKey)
		if err != nil {
			log.Warn("dedup cache unavailable", "err", err)
		} else if !fresh {
			log.Info("duplicate webhook skipped by cache")
			return res, nil
		}
	}

	row := &model.WebhookEvent{
		ID:             u.ids.NewID(),
		Provider:       provider,
		EventID:        ev.ID,
		EventType:      ev.Type,
		Payload:        string(ev.Payload),
		SignatureValid: true,
		CreatedAt:      u.clock.Now(),
	}
	if err := u.events.Create(ctx, row); err != nil {
		if !errors.Is(err, repo.ErrDuplicate) {
			u.forget(ctx, cacheKey)
			return WebhookResult{}, fmt.Errorf("record webhook event: %w", err)
		}
		existing, ferr := u.events.FindByEventID(ctx, provider, ev.ID)
		if ferr != nil {
			u.forget(ctx, cacheKey)
			return WebhookResult{}, fmt.Errorf("load webhook event: %w", ferr)
		}
		if existing.ProcessedAt != nil {
			log.Info("duplicate webhook already processed")
			return res, nil
		}
		// an earlier attempt failed; try again on the same row
		row = &existing
	}

	if err := u.apply(ctx, provider, ev); err != nil {
		log.Error("webhook processing failed", "err", err)
		if merr := u.events.MarkFailed(ctx, row.ID, err.Error()); merr != nil {
			log.Error("record webhook failure", "err", merr)
		}
		u.forget(ctx, cacheKey)
		return res, nil
	}
	if err := u.events.MarkProcessed(ctx, row.ID, u.clock.Now()); err != nil {
		log.Error("mark webhook processed", "err", err)
	}
	res.Processed = true
	return res, nil
}

func (u *WebhookUsecase) apply(ctx context.Context, provider model.PaymentProvider, ev payment.Event) error {
	if ev.Kind == payment.EventIgnored {
		logging.FromContext(ctx).Debug("webhook type ignored")
		return nil
	}

	orderID, err := u.resolveOrder(ctx, provider, ev)
	if err != nil {
		return err
	}
	actor := model.SystemActor

	switch ev.Kind {
	case payment.EventPaymentSucceeded:
		var res TransitionResult
		res, err = u.sm.MarkPaid(ctx, orderID, ev.PaymentIntentID, actor)
		if err == nil && res.RefundDue {
			err = refundClosedOrder(ctx, u.gateways[provider], u.sm, res.Order, actor)
		}
	case payment.EventPaymentProcessing:
		_, err = u.sm.MarkProcessing(ctx, orderID, ev.PaymentIntentID, actor)
	case payment.EventPaymentFailed:
		_, err = u.sm.MarkPaymentFailed(ctx, orderID, actor)
	case payment.EventPaymentCancelled:
		_, err = u.sm.MarkPaymentCancelled(ctx, orderID, ev.PaymentRef, actor)
	case payment.EventSessionExpired:
		_, err = u.sm.ExpireSession(ctx, orderID, ev.PaymentRef, actor)
	case payment.EventRefunded:
		ref := ev.RefundID
		if ref == "" {
			ref = ev.ID
		}
		_, err = u.sm.MarkRefunded(ctx, orderID, RefundUpdate{
			Ref:           ref,
			Amount:        ev.Amount,
			RefundedTotal: ev.RefundedTotal,
		}, actor)
	case payment.EventDisputeOpened:
		_, err = u.sm.OpenDispute(ctx, orderID, ev.Amount, actor)
	case payment.EventDisputeClosed:
		_, err = u.sm.CloseDispute(ctx, orderID, ev.DisputeWon, actor)
	default:
		return fmt.Errorf("unhandled event kind %q", ev.Kind)
	}
	return err
}

func (u *WebhookUsecase) resolveOrder(ctx context.Context, provider model.PaymentProvider, ev payment.Event) (string, error) {
	if ev.OrderID != "" {
		return ev.OrderID, nil
	}
	for _, ref := range []string{ev.PaymentRef, ev.PaymentIntentID} {
		if ref == "" {
			continue
		}
		o, err := u.orders.FindByPaymentRef(ctx, provider, ref)
		if err == nil {
			return o.ID, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return "", fmt.Errorf("find order by payment ref: %w", err)
		}
	}
	return "", fmt.Errorf("no order for event %s", ev.ID)
}

func (u *WebhookUsecase) forget(ctx context.Context, key string) {
	if u.cache == nil {
		return
	}
	if err := u.cache.Forget(ctx, key); err != nil {
		logging.FromContext(ctx).Warn("dedup cache forget failed", "key", key, "err", err)
	}
}

// refundClosedOrder returns a charge that settled after its order was
// cancelled or failed. If the gateway call fails the order stays
// captured_after_close and SweepClosedOrderRefunds picks it up.
func refundClosedOrder(ctx context.Context, gw payment.Gateway, sm *OrderStateMachine, o model.Order, actor string) error {
	if gw == nil {
		return fmt.Errorf("no gateway for %s to refund order %s", o.PaymentProvider, o.ID)
	}
	ref := o.PaymentIntentID
	if ref == "" {
		ref = o.PaymentSessionID
	}
	refund, err := gw.Refund(ctx, payment.RefundRequest{
		PaymentRef: ref,
		Currency:   o.Currency,
		Reason:     "order closed before payment settled",
	})
	if err != nil {
		return fmt.Errorf("refund payment on closed order %s: %w", o.ID, err)
	}
	if _, err := sm.MarkRefunded(ctx, o.ID, RefundUpdate{Ref: refund.RefundID}, actor); err != nil {
		return err
	}
	logging.FromContext(ctx).Warn("refunded payment on closed order",
		"order_id", o.ID, "refund_id", refund.RefundID, "status", refund.Status)
	return nil
}
