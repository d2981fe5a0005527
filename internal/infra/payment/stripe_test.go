package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"planmarket/internal/domain/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test"

type stripeStub struct {
	mu    sync.Mutex
	forms map[string]map[string][]string
	srv   *httptest.Server
}

// newStripeGateway runs the adapter against a local server answering each
// path with the given status and body.
func newStripeGateway(t *testing.T, routes map[string]func() (int, string)) (*StripeGateway, *stripeStub) {
	t.Helper()
	stub := &stripeStub{forms: map[string]map[string][]string{}}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		stub.mu.Lock()
		stub.forms[r.URL.Path] = r.PostForm
		stub.mu.Unlock()

		route, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"no route"}}`))
			return
		}
		status, body := route()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(stub.srv.Close)

	cfg := &stripe.BackendConfig{
		URL:               stripe.String(stub.srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	g := NewStripeGateway(StripeConfig{SecretKey: "sk_test_123", WebhookSecret: testWebhookSecret},
		&stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return g, stub
}

func (s *stripeStub) form(path string) map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forms[path]
}

func okJSON(body string) func() (int, string) {
	return func() (int, string) { return http.StatusOK, body }
}

func sessionRequest() payment.SessionRequest {
	return payment.SessionRequest{
		OrderID:     "ord-1",
		OrderNumber: "PM-0001",
		BuyerEmail:  "buyer@example.com",
		Currency:    "USD",
		Amount:      decimal.RequireFromString("25.00"),
		Items: []payment.LineItem{
			{ProductID: "p1", Name: "Oak table plan", Amount: decimal.RequireFromString("25.00"), Quantity: 1},
		},
		SuccessURL: "https://plans.example.com/orders/ord-1/success",
		CancelURL:  "https://plans.example.com/cart",
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

// =====================
// CreateSession
// =====================

func TestStripe_CreateSession_SplitCharge(t *testing.T) {
	g, stub := newStripeGateway(t, map[string]func() (int, string){
		"/v1/checkout/sessions": okJSON(`{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.com/c/cs_1","expires_at":1767225600,"payment_intent":"pi_1"}`),
	})

	req := sessionRequest()
	req.DestinationAccount = "acct_seller"
	req.ApplicationFee = decimal.RequireFromString("3.00")

	sess, err := g.CreateSession(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.SessionID)
	assert.Equal(t, "pi_1", sess.PaymentIntentID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_1", sess.CheckoutURL)
	assert.Equal(t, int64(1767225600), sess.ExpiresAt.Unix())

	form := stub.form("/v1/checkout/sessions")
	require.NotNil(t, form)
	assert.Equal(t, []string{"ord-1"}, form["client_reference_id"])
	assert.Equal(t, []string{"acct_seller"}, form["payment_intent_data[transfer_data][destination]"])
	assert.Equal(t, []string{"300"}, form["payment_intent_data[application_fee_amount]"])
	assert.Equal(t, []string{"2500"}, form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, []string{"usd"}, form["line_items[0][price_data][currency]"])
	assert.Equal(t, []string{"ord-1"}, form["metadata[order_id]"])
}

func TestStripe_CreateSession_PlatformChargeHasNoTransfer(t *testing.T) {
	g, stub := newStripeGateway(t, map[string]func() (int, string){
		"/v1/checkout/sessions": okJSON(`{"id":"cs_2","object":"checkout.session","url":"https://checkout.stripe.com/c/cs_2"}`),
	})

	_, err := g.CreateSession(context.Background(), sessionRequest())
	require.NoError(t, err)

	form := stub.form("/v1/checkout/sessions")
	_, hasDest := form["payment_intent_data[transfer_data][destination]"]
	_, hasFee := form["payment_intent_data[application_fee_amount]"]
	assert.False(t, hasDest)
	assert.False(t, hasFee)
}

func TestStripe_CreateSession_ProviderMessageKept(t *testing.T) {
	g, _ := newStripeGateway(t, map[string]func() (int, string){
		"/v1/checkout/sessions": func() (int, string) {
			return http.StatusPaymentRequired, `{"error":{"type":"card_error","message":"Your card was declined."}}`
		},
	})

	_, err := g.CreateSession(context.Background(), sessionRequest())
	require.Error(t, err)
	var pe *payment.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "create_session", pe.Op)
	assert.Equal(t, "Your card was declined.", pe.Message)
}

func TestStripe_ClampExpiry(t *testing.T) {
	g, _ := newStripeGateway(t, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	at, err := g.clampExpiry(now.Add(48 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour-time.Minute), at)

	at, err = g.clampExpiry(now.Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Hour), at)

	at, err = g.clampExpiry(now.Add(payment.MinSessionLifetime))
	require.NoError(t, err)
	assert.Equal(t, now.Add(31*time.Minute), at)

	// never pushed past what the caller asked for
	_, err = g.clampExpiry(now.Add(5 * time.Minute))
	assert.ErrorIs(t, err, payment.ErrSessionWindow)
}

func TestStripe_CreateSession_ExpiryTooSoonIsRefused(t *testing.T) {
	g, stub := newStripeGateway(t, map[string]func() (int, string){
		"/v1/checkout/sessions": okJSON(`{"id":"cs_3","object":"checkout.session"}`),
	})

	req := sessionRequest()
	req.ExpiresAt = time.Now().Add(10 * time.Minute)
	_, err := g.CreateSession(context.Background(), req)
	require.Error(t, err)
	var pe *payment.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, payment.ErrSessionWindow)
	assert.Nil(t, stub.form("/v1/checkout/sessions"))
}

func TestStripe_ExpireSession(t *testing.T) {
	g, _ := newStripeGateway(t, map[string]func() (int, string){
		"/v1/checkout/sessions/cs_open/expire": okJSON(`{"id":"cs_open","object":"checkout.session","status":"expired"}`),
		"/v1/checkout/sessions/cs_gone/expire": func() (int, string) {
			return http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"Only Checkout Sessions with a status in [\"open\"] can be expired."}}`
		},
		"/v1/checkout/sessions/cs_gone": okJSON(`{"id":"cs_gone","object":"checkout.session","status":"expired"}`),
		"/v1/checkout/sessions/cs_paid/expire": func() (int, string) {
			return http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"Only Checkout Sessions with a status in [\"open\"] can be expired."}}`
		},
		"/v1/checkout/sessions/cs_paid": okJSON(`{"id":"cs_paid","object":"checkout.session","status":"complete","payment_status":"paid"}`),
	})
	ctx := context.Background()

	require.NoError(t, g.ExpireSession(ctx, "cs_open"))
	require.NoError(t, g.ExpireSession(ctx, "cs_gone"))

	err := g.ExpireSession(ctx, "cs_paid")
	var pe *payment.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "expire_session", pe.Op)
}

// =====================
// RetrieveStatus / Refund
// =====================

func TestStripe_RetrieveStatus(t *testing.T) {
	g, _ := newStripeGateway(t, map[string]func() (int, string){
		"/v1/payment_intents/pi_9":   okJSON(`{"id":"pi_9","object":"payment_intent","status":"processing"}`),
		"/v1/checkout/sessions/cs_9": okJSON(`{"id":"cs_9","object":"checkout.session","status":"complete","payment_status":"paid","payment_intent":{"id":"pi_9","object":"payment_intent","status":"succeeded"}}`),
		"/v1/checkout/sessions/cs_x": okJSON(`{"id":"cs_x","object":"checkout.session","status":"expired","payment_status":"unpaid"}`),
	})
	ctx := context.Background()

	res, err := g.RetrieveStatus(ctx, "pi_9")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusProcessing, res.Status)

	res, err = g.RetrieveStatus(ctx, "cs_9")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSucceeded, res.Status)
	assert.Equal(t, "pi_9", res.PaymentIntentID)

	res, err = g.RetrieveStatus(ctx, "cs_x")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, res.Status)
}

func TestStripe_Refund(t *testing.T) {
	g, stub := newStripeGateway(t, map[string]func() (int, string){
		"/v1/refunds": okJSON(`{"id":"re_1","object":"refund","status":"succeeded","amount":1500}`),
	})

	res, err := g.Refund(context.Background(), payment.RefundRequest{
		PaymentRef: "pi_1",
		Amount:     decimal.RequireFromString("15"),
		Reason:     "duplicate purchase",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_1", res.RefundID)
	assert.Equal(t, "succeeded", res.Status)
	assert.True(t, decimal.RequireFromString("15").Equal(res.Amount))

	form := stub.form("/v1/refunds")
	assert.Equal(t, []string{"pi_1"}, form["payment_intent"])
	assert.Equal(t, []string{"1500"}, form["amount"])
	assert.Equal(t, []string{"duplicate purchase"}, form["metadata[reason]"])
}

// =====================
// ParseWebhook
// =====================

func signedStripeEvent(t *testing.T, id, typ string, object any) ([]byte, http.Header) {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"api_version": "2020-08-27",
		"data":        map[string]json.RawMessage{"object": raw},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)
	return payload, h
}

func TestStripe_ParseWebhook_Kinds(t *testing.T) {
	g, _ := newStripeGateway(t, nil)

	cases := []struct {
		name     string
		typ      string
		object   map[string]any
		wantKind payment.EventKind
		wantRef  string
		wantAmt  string
	}{
		{
			name:     "completed and paid",
			typ:      "checkout.session.completed",
			object:   map[string]any{"id": "cs_1", "object": "checkout.session", "client_reference_id": "ord-1", "payment_intent": "pi_1", "amount_total": 2500, "payment_status": "paid"},
			wantKind: payment.EventPaymentSucceeded,
			wantRef:  "cs_1",
			wantAmt:  "25",
		},
		{
			name:     "completed but unpaid",
			typ:      "checkout.session.completed",
			object:   map[string]any{"id": "cs_2", "object": "checkout.session", "client_reference_id": "ord-1", "payment_status": "unpaid"},
			wantKind: payment.EventPaymentProcessing,
			wantRef:  "cs_2",
			wantAmt:  "0",
		},
		{
			name:     "session expired",
			typ:      "checkout.session.expired",
			object:   map[string]any{"id": "cs_3", "object": "checkout.session", "client_reference_id": "ord-1"},
			wantKind: payment.EventSessionExpired,
			wantRef:  "cs_3",
			wantAmt:  "0",
		},
		{
			name:     "intent failed",
			typ:      "payment_intent.payment_failed",
			object:   map[string]any{"id": "pi_4", "object": "payment_intent", "amount": 999, "metadata": map[string]string{"order_id": "ord-1"}},
			wantKind: payment.EventPaymentFailed,
			wantRef:  "pi_4",
			wantAmt:  "9.99",
		},
		{
			name:     "charge refunded",
			typ:      "charge.refunded",
			object:   map[string]any{"id": "ch_5", "object": "charge", "payment_intent": "pi_5", "amount_refunded": 1200, "metadata": map[string]string{"order_id": "ord-1"}},
			wantKind: payment.EventRefunded,
			wantRef:  "pi_5",
			wantAmt:  "12",
		},
		{
			name:     "dispute opened",
			typ:      "charge.dispute.created",
			object:   map[string]any{"id": "dp_6", "object": "dispute", "payment_intent": "pi_6", "amount": 2500, "status": "needs_response"},
			wantKind: payment.EventDisputeOpened,
			wantRef:  "pi_6",
			wantAmt:  "25",
		},
		{
			name:     "unrelated type",
			typ:      "customer.created",
			object:   map[string]any{"id": "cus_7", "object": "customer"},
			wantKind: payment.EventIgnored,
			wantAmt:  "0",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, h := signedStripeEvent(t, "evt_"+tc.name, tc.typ, tc.object)
			ev, err := g.ParseWebhook(context.Background(), payload, h)
			require.NoError(t, err)
			assert.Equal(t, tc.wantKind, ev.Kind)
			assert.Equal(t, tc.typ, ev.Type)
			assert.Equal(t, tc.wantRef, ev.PaymentRef)
			assert.True(t, decimal.RequireFromString(tc.wantAmt).Equal(ev.Amount), "amount %s", ev.Amount)
		})
	}
}

func TestStripe_ParseWebhook_DisputeClosedOutcome(t *testing.T) {
	g, _ := newStripeGateway(t, nil)

	payload, h := signedStripeEvent(t, "evt_won", "charge.dispute.closed",
		map[string]any{"id": "dp_1", "object": "dispute", "payment_intent": "pi_1", "amount": 100, "status": "won"})
	ev, err := g.ParseWebhook(context.Background(), payload, h)
	require.NoError(t, err)
	assert.Equal(t, payment.EventDisputeClosed, ev.Kind)
	assert.True(t, ev.DisputeWon)

	payload, h = signedStripeEvent(t, "evt_lost", "charge.dispute.closed",
		map[string]any{"id": "dp_2", "object": "dispute", "payment_intent": "pi_1", "amount": 100, "status": "lost"})
	ev, err = g.ParseWebhook(context.Background(), payload, h)
	require.NoError(t, err)
	assert.False(t, ev.DisputeWon)
}

func TestStripe_ParseWebhook_RefundRunningTotal(t *testing.T) {
	g, _ := newStripeGateway(t, nil)
	payload, h := signedStripeEvent(t, "evt_rf2", "charge.refunded", map[string]any{
		"id": "ch_7", "object": "charge", "payment_intent": "pi_7", "amount_refunded": 900,
		"refunds": map[string]any{"object": "list", "data": []map[string]any{
			{"id": "re_second", "object": "refund", "amount": 400},
			{"id": "re_first", "object": "refund", "amount": 500},
		}},
	})

	ev, err := g.ParseWebhook(context.Background(), payload, h)
	require.NoError(t, err)
	assert.Equal(t, "re_second", ev.RefundID)
	assert.True(t, decimal.RequireFromString("9").Equal(ev.RefundedTotal))
}

func TestStripe_ParseWebhook_CarriesOrderID(t *testing.T) {
	g, _ := newStripeGateway(t, nil)
	payload, h := signedStripeEvent(t, "evt_meta", "checkout.session.completed",
		map[string]any{"id": "cs_1", "object": "checkout.session", "metadata": map[string]string{"order_id": "ord-42"}, "payment_status": "paid"})

	ev, err := g.ParseWebhook(context.Background(), payload, h)
	require.NoError(t, err)
	assert.Equal(t, "ord-42", ev.OrderID)
	assert.Equal(t, "evt_meta", ev.ID)
	assert.Equal(t, payload, ev.Payload)
}

func TestStripe_ParseWebhook_BadSignature(t *testing.T) {
	g, _ := newStripeGateway(t, nil)
	payload, h := signedStripeEvent(t, "evt_1", "checkout.session.completed", map[string]any{"id": "cs_1"})

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '
	_, err := g.ParseWebhook(context.Background(), tampered, h)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = g.ParseWebhook(context.Background(), payload, http.Header{})
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}
