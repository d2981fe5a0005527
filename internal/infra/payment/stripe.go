package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"planmarket/internal/domain/model"
	"planmarket/internal/domain/payment"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Stripe only accepts session expiries between 30 minutes and 24 hours out.
const (
	stripeMinSessionTTL = payment.MinSessionLifetime
	stripeMaxSessionTTL = 24*time.Hour - time.Minute
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// StripeGateway is the card processor. Destination charges on a connected
// account give the split payment in a single capture.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	now           func() time.Time
}

// NewStripeGateway builds the adapter. backends may be nil for the default
// Stripe endpoints; tests point it at an httptest server.
func NewStripeGateway(cfg StripeConfig, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		now:           time.Now,
	}
}

func (g *StripeGateway) Provider() model.PaymentProvider { return model.PaymentProviderStripe }

func (g *StripeGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	expiresAt, err := g.clampExpiry(req.ExpiresAt)
	if err != nil {
		return payment.Session{}, &payment.ProviderError{
			Provider: model.PaymentProviderStripe,
			Op:       "create_session",
			Message:  err.Error(),
			Err:      err,
		}
	}
	currency := strings.ToLower(req.Currency)
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ExpiresAt:         stripe.Int64(expiresAt.Unix()),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: orderMetadata(req),
		},
	}
	if req.BuyerEmail != "" {
		params.CustomerEmail = stripe.String(req.BuyerEmail)
	}
	for k, v := range orderMetadata(req) {
		params.AddMetadata(k, v)
	}
	for _, it := range req.Items {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(qty)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(payment.MinorUnits(it.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(it.Name),
				},
			},
		})
	}
	if req.DestinationAccount != "" {
		params.PaymentIntentData.ApplicationFeeAmount = stripe.Int64(payment.MinorUnits(req.ApplicationFee))
		params.PaymentIntentData.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
			Destination: stripe.String(req.DestinationAccount),
		}
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return payment.Session{}, stripeFailure("create_session", err)
	}
	out := payment.Session{
		SessionID:   s.ID,
		CheckoutURL: s.URL,
		ExpiresAt:   time.Unix(s.ExpiresAt, 0).UTC(),
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out, nil
}

// ExpireSession closes an open checkout session so it can no longer be paid.
// A session that already expired counts as closed.
func (g *StripeGateway) ExpireSession(ctx context.Context, sessionID string) error {
	_, err := g.api.CheckoutSessions.Expire(sessionID, &stripe.CheckoutSessionExpireParams{
		Params: stripe.Params{Context: ctx},
	})
	if err == nil {
		return nil
	}
	s, getErr := g.api.CheckoutSessions.Get(sessionID, &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}})
	if getErr == nil && s.Status == stripe.CheckoutSessionStatusExpired {
		return nil
	}
	return stripeFailure("expire_session", err)
}

// RetrieveStatus accepts a checkout session id or a payment intent id.
func (g *StripeGateway) RetrieveStatus(ctx context.Context, ref string) (payment.StatusResult, error) {
	if strings.HasPrefix(ref, "pi_") {
		pi, err := g.api.PaymentIntents.Get(ref, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
		if err != nil {
			return payment.StatusResult{}, stripeFailure("retrieve_intent", err)
		}
		return payment.StatusResult{
			Status:          intentStatus(pi.Status),
			PaymentIntentID: pi.ID,
			Raw:             string(pi.Status),
		}, nil
	}

	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("payment_intent")
	s, err := g.api.CheckoutSessions.Get(ref, params)
	if err != nil {
		return payment.StatusResult{}, stripeFailure("retrieve_session", err)
	}
	res := payment.StatusResult{Status: payment.StatusPending, Raw: string(s.Status) + "/" + string(s.PaymentStatus)}
	if s.PaymentIntent != nil {
		res.PaymentIntentID = s.PaymentIntent.ID
		if s.PaymentIntent.Status != "" {
			res.Status = intentStatus(s.PaymentIntent.Status)
		}
	}
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		res.Status = payment.StatusSucceeded
	case s.Status == stripe.CheckoutSessionStatusExpired:
		res.Status = payment.StatusCancelled
	}
	return res, nil
}

func (g *StripeGateway) Refund(ctx context.Context, req payment.RefundRequest) (payment.RefundResult, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(req.PaymentRef),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if req.Amount.IsPositive() {
		params.Amount = stripe.Int64(payment.MinorUnits(req.Amount))
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	r, err := g.api.Refunds.New(params)
	if err != nil {
		return payment.RefundResult{}, stripeFailure("refund", err)
	}
	return payment.RefundResult{
		RefundID: r.ID,
		Status:   string(r.Status),
		Amount:   payment.FromMinorUnits(r.Amount),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps the event.
func (g *StripeGateway) ParseWebhook(_ context.Context, payload []byte, header http.Header) (payment.Event, error) {
	e, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return payment.Event{}, fmt.Errorf("%w: %v", payment.ErrInvalidSignature, err)
	}

	ev := payment.Event{
		ID:      e.ID,
		Type:    string(e.Type),
		Kind:    payment.EventIgnored,
		Payload: payload,
	}
	if e.Data == nil {
		return ev, nil
	}

	switch e.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(e.Data.Raw, &s); err != nil {
			return payment.Event{}, fmt.Errorf("decode checkout session: %w", err)
		}
		ev.OrderID = firstNonEmpty(s.ClientReferenceID, s.Metadata["order_id"])
		ev.PaymentRef = s.ID
		if s.PaymentIntent != nil {
			ev.PaymentIntentID = s.PaymentIntent.ID
		}
		ev.Amount = payment.FromMinorUnits(s.AmountTotal)
		switch e.Type {
		case "checkout.session.completed":
			if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
				ev.Kind = payment.EventPaymentSucceeded
			} else {
				// delayed methods settle later through async_payment_*
				ev.Kind = payment.EventPaymentProcessing
			}
		case "checkout.session.async_payment_succeeded":
			ev.Kind = payment.EventPaymentSucceeded
		case "checkout.session.async_payment_failed":
			ev.Kind = payment.EventPaymentFailed
		case "checkout.session.expired":
			ev.Kind = payment.EventSessionExpired
		}

	case "payment_intent.succeeded", "payment_intent.processing",
		"payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(e.Data.Raw, &pi); err != nil {
			return payment.Event{}, fmt.Errorf("decode payment intent: %w", err)
		}
		ev.OrderID = pi.Metadata["order_id"]
		ev.PaymentRef = pi.ID
		ev.PaymentIntentID = pi.ID
		ev.Amount = payment.FromMinorUnits(pi.Amount)
		switch e.Type {
		case "payment_intent.succeeded":
			ev.Kind = payment.EventPaymentSucceeded
		case "payment_intent.processing":
			ev.Kind = payment.EventPaymentProcessing
		case "payment_intent.payment_failed":
			ev.Kind = payment.EventPaymentFailed
		case "payment_intent.canceled":
			ev.Kind = payment.EventPaymentCancelled
		}

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(e.Data.Raw, &ch); err != nil {
			return payment.Event{}, fmt.Errorf("decode charge: %w", err)
		}
		ev.Kind = payment.EventRefunded
		ev.OrderID = ch.Metadata["order_id"]
		if ch.PaymentIntent != nil {
			ev.PaymentRef = ch.PaymentIntent.ID
			ev.PaymentIntentID = ch.PaymentIntent.ID
		}
		ev.Amount = payment.FromMinorUnits(ch.AmountRefunded)
		ev.RefundedTotal = ev.Amount
		if ch.Refunds != nil && len(ch.Refunds.Data) > 0 && ch.Refunds.Data[0] != nil {
			ev.RefundID = ch.Refunds.Data[0].ID
		}

	case "charge.dispute.created", "charge.dispute.closed":
		var d stripe.Dispute
		if err := json.Unmarshal(e.Data.Raw, &d); err != nil {
			return payment.Event{}, fmt.Errorf("decode dispute: %w", err)
		}
		if d.PaymentIntent != nil {
			ev.PaymentRef = d.PaymentIntent.ID
			ev.PaymentIntentID = d.PaymentIntent.ID
		}
		ev.Amount = payment.FromMinorUnits(d.Amount)
		if e.Type == "charge.dispute.created" {
			ev.Kind = payment.EventDisputeOpened
		} else {
			ev.Kind = payment.EventDisputeClosed
			ev.DisputeWon = d.Status == stripe.DisputeStatusWon
		}
	}
	return ev, nil
}

// clampExpiry only ever moves the expiry earlier. An expiry Stripe would
// have to extend is refused.
func (g *StripeGateway) clampExpiry(at time.Time) (time.Time, error) {
	now := g.now()
	switch {
	case at.Before(now.Add(stripeMinSessionTTL)):
		return time.Time{}, fmt.Errorf("%w: %s is less than %s away", payment.ErrSessionWindow, at.UTC().Format(time.RFC3339), stripeMinSessionTTL)
	case at.After(now.Add(stripeMaxSessionTTL)):
		return now.Add(stripeMaxSessionTTL), nil
	}
	return at, nil
}

func intentStatus(s stripe.PaymentIntentStatus) payment.Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return payment.StatusSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return payment.StatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return payment.StatusCancelled
	}
	return payment.StatusPending
}

func orderMetadata(req payment.SessionRequest) map[string]string {
	return map[string]string{
		"order_id":     req.OrderID,
		"order_number": req.OrderNumber,
	}
}

// stripeFailure keeps the API message so the buyer sees why the card failed.
func stripeFailure(op string, err error) error {
	msg := err.Error()
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		msg = se.Msg
	}
	return &payment.ProviderError{
		Provider: model.PaymentProviderStripe,
		Op:       op,
		Message:  msg,
		Err:      err,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
