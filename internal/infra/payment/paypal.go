package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"planmarket/internal/domain/model"
	"planmarket/internal/domain/payment"

	"github.com/shopspring/decimal"
)

const (
	PayPalSandboxURL = "https://api-m.sandbox.paypal.com"
	PayPalLiveURL    = "https://api-m.paypal.com"
)

type PayPalConfig struct {
	ClientID  string
	Secret    string
	WebhookID string
	BaseURL   string
}

// PayPalGateway is the wallet processor: the buyer approves the order on
// PayPal, then it is captured. It cannot split a charge.
type PayPalGateway struct {
	cfg  PayPalConfig
	http *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalGateway(cfg PayPalConfig, httpClient *http.Client) *PayPalGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = PayPalSandboxURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &PayPalGateway{cfg: cfg, http: httpClient}
}

func (g *PayPalGateway) Provider() model.PaymentProvider { return model.PaymentProviderPayPal }

type ppAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type ppLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type ppCapture struct {
	ID       string    `json:"id"`
	Status   string    `json:"status"`
	CustomID string    `json:"custom_id"`
	Amount   *ppAmount `json:"amount"`
	Links    []ppLink  `json:"links"`
}

type ppOrder struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	Links         []ppLink `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		CustomID    string `json:"custom_id"`
		Payments    struct {
			Captures []ppCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (g *PayPalGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	if req.DestinationAccount != "" {
		return payment.Session{}, payment.ErrSplitUnsupported
	}
	currency := strings.ToUpper(req.Currency)
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.OrderID,
			"custom_id":    req.OrderID,
			"invoice_id":   req.OrderNumber,
			"amount":       ppAmount{CurrencyCode: currency, Value: req.Amount.StringFixed(2)},
		}},
		"application_context": map[string]any{
			"return_url":          req.SuccessURL,
			"cancel_url":          req.CancelURL,
			"user_action":         "PAY_NOW",
			"shipping_preference": "NO_SHIPPING",
		},
	}

	var o ppOrder
	if err := g.call(ctx, "create_order", http.MethodPost, "/v2/checkout/orders", body, &o); err != nil {
		return payment.Session{}, err
	}
	sess := payment.Session{SessionID: o.ID, ExpiresAt: req.ExpiresAt}
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			sess.CheckoutURL = l.Href
		}
	}
	if sess.CheckoutURL == "" {
		return payment.Session{}, &payment.ProviderError{
			Provider: model.PaymentProviderPayPal,
			Op:       "create_order",
			Message:  "no approval link returned",
		}
	}
	return sess, nil
}

func (g *PayPalGateway) RetrieveStatus(ctx context.Context, ref string) (payment.StatusResult, error) {
	var o ppOrder
	if err := g.call(ctx, "get_order", http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(ref), nil, &o); err != nil {
		return payment.StatusResult{}, err
	}
	return orderResult(o), nil
}

// Capture takes the money for an order the buyer approved.
func (g *PayPalGateway) Capture(ctx context.Context, ref string) (payment.StatusResult, error) {
	var o ppOrder
	p := "/v2/checkout/orders/" + url.PathEscape(ref) + "/capture"
	if err := g.call(ctx, "capture_order", http.MethodPost, p, map[string]any{}, &o); err != nil {
		return payment.StatusResult{}, err
	}
	return orderResult(o), nil
}

// Refund expects the capture id as PaymentRef.
func (g *PayPalGateway) Refund(ctx context.Context, req payment.RefundRequest) (payment.RefundResult, error) {
	body := map[string]any{}
	if req.Amount.IsPositive() {
		body["amount"] = ppAmount{CurrencyCode: strings.ToUpper(req.Currency), Value: req.Amount.StringFixed(2)}
	}
	if req.Reason != "" {
		body["note_to_payer"] = req.Reason
	}
	var r struct {
		ID     string    `json:"id"`
		Status string    `json:"status"`
		Amount *ppAmount `json:"amount"`
	}
	p := "/v2/payments/captures/" + url.PathEscape(req.PaymentRef) + "/refund"
	if err := g.call(ctx, "refund", http.MethodPost, p, body, &r); err != nil {
		return payment.RefundResult{}, err
	}
	out := payment.RefundResult{RefundID: r.ID, Status: strings.ToLower(r.Status), Amount: req.Amount}
	if r.Amount != nil {
		if v, err := decimal.NewFromString(r.Amount.Value); err == nil {
			out.Amount = v
		}
	}
	return out, nil
}

type ppWebhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     json.RawMessage `json:"resource"`
}

// ParseWebhook asks PayPal to verify the transmission signature, then maps
// the event.
func (g *PayPalGateway) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (payment.Event, error) {
	var we ppWebhookEvent
	if err := json.Unmarshal(payload, &we); err != nil || we.ID == "" {
		return payment.Event{}, fmt.Errorf("%w: malformed event", payment.ErrInvalidSignature)
	}

	verify := map[string]any{
		"auth_algo":         header.Get("Paypal-Auth-Algo"),
		"cert_url":          header.Get("Paypal-Cert-Url"),
		"transmission_id":   header.Get("Paypal-Transmission-Id"),
		"transmission_sig":  header.Get("Paypal-Transmission-Sig"),
		"transmission_time": header.Get("Paypal-Transmission-Time"),
		"webhook_id":        g.cfg.WebhookID,
		"webhook_event":     json.RawMessage(payload),
	}
	var vr struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := g.call(ctx, "verify_webhook", http.MethodPost, "/v1/notifications/verify-webhook-signature", verify, &vr); err != nil {
		return payment.Event{}, err
	}
	if vr.VerificationStatus != "SUCCESS" {
		return payment.Event{}, fmt.Errorf("%w: verification status %q", payment.ErrInvalidSignature, vr.VerificationStatus)
	}
	return mapPayPalEvent(we, payload)
}

func mapPayPalEvent(we ppWebhookEvent, payload []byte) (payment.Event, error) {
	ev := payment.Event{ID: we.ID, Type: we.EventType, Kind: payment.EventIgnored, Payload: payload}

	switch we.EventType {
	case "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.PENDING", "PAYMENT.CAPTURE.DENIED",
		"PAYMENT.CAPTURE.DECLINED", "PAYMENT.CAPTURE.REFUNDED", "PAYMENT.CAPTURE.REVERSED":
		var c struct {
			ppCapture
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
			SellerPayableBreakdown struct {
				TotalRefundedAmount *ppAmount `json:"total_refunded_amount"`
			} `json:"seller_payable_breakdown"`
		}
		if err := json.Unmarshal(we.Resource, &c); err != nil {
			return payment.Event{}, fmt.Errorf("decode capture: %w", err)
		}
		ev.OrderID = c.CustomID
		ev.PaymentRef = c.SupplementaryData.RelatedIDs.OrderID
		ev.PaymentIntentID = c.ID
		ev.Amount = amountOf(c.Amount)
		switch we.EventType {
		case "PAYMENT.CAPTURE.COMPLETED":
			ev.Kind = payment.EventPaymentSucceeded
		case "PAYMENT.CAPTURE.PENDING":
			ev.Kind = payment.EventPaymentProcessing
		case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
			ev.Kind = payment.EventPaymentFailed
		default:
			// refund resources point back at the capture through an "up" link
			ev.Kind = payment.EventRefunded
			ev.PaymentIntentID = ""
			ev.PaymentRef = linkTail(c.Links, "up")
			ev.RefundID = c.ID
			ev.RefundedTotal = amountOf(c.SellerPayableBreakdown.TotalRefundedAmount)
		}

	case "CHECKOUT.ORDER.VOIDED":
		var o ppOrder
		if err := json.Unmarshal(we.Resource, &o); err != nil {
			return payment.Event{}, fmt.Errorf("decode order: %w", err)
		}
		ev.Kind = payment.EventPaymentCancelled
		ev.PaymentRef = o.ID
		if len(o.PurchaseUnits) > 0 {
			ev.OrderID = o.PurchaseUnits[0].CustomID
		}

	case "CUSTOMER.DISPUTE.CREATED", "CUSTOMER.DISPUTE.RESOLVED":
		var d struct {
			DisputeAmount        *ppAmount `json:"dispute_amount"`
			DisputedTransactions []struct {
				SellerTransactionID string `json:"seller_transaction_id"`
			} `json:"disputed_transactions"`
			DisputeOutcome struct {
				OutcomeCode string `json:"outcome_code"`
			} `json:"dispute_outcome"`
		}
		if err := json.Unmarshal(we.Resource, &d); err != nil {
			return payment.Event{}, fmt.Errorf("decode dispute: %w", err)
		}
		if len(d.DisputedTransactions) > 0 {
			ev.PaymentRef = d.DisputedTransactions[0].SellerTransactionID
		}
		ev.Amount = amountOf(d.DisputeAmount)
		if we.EventType == "CUSTOMER.DISPUTE.CREATED" {
			ev.Kind = payment.EventDisputeOpened
		} else {
			ev.Kind = payment.EventDisputeClosed
			ev.DisputeWon = d.DisputeOutcome.OutcomeCode == "RESOLVED_SELLER_FAVOUR"
		}
	}
	return ev, nil
}

func orderResult(o ppOrder) payment.StatusResult {
	res := payment.StatusResult{Raw: o.Status, Status: payment.StatusPending}
	for _, pu := range o.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			res.PaymentIntentID = c.ID
			switch c.Status {
			case "COMPLETED":
				res.Status = payment.StatusSucceeded
			case "PENDING":
				res.Status = payment.StatusProcessing
			case "DECLINED", "FAILED":
				res.Status = payment.StatusFailed
			}
			return res
		}
	}
	switch o.Status {
	case "COMPLETED":
		res.Status = payment.StatusSucceeded
	case "APPROVED":
		res.Status = payment.StatusProcessing
	case "VOIDED":
		res.Status = payment.StatusCancelled
	}
	return res
}

func (g *PayPalGateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.accessToken != "" && time.Now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := g.do(req, "oauth", &tr); err != nil {
		return "", err
	}
	g.accessToken = tr.AccessToken
	// refresh a minute early
	g.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)
	return g.accessToken, nil
}

func (g *PayPalGateway) call(ctx context.Context, op, method, p string, in, out any) error {
	tok, err := g.token(ctx)
	if err != nil {
		return err
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+p, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return g.do(req, op, out)
}

func (g *PayPalGateway) do(req *http.Request, op string, out any) error {
	resp, err := g.http.Do(req)
	if err != nil {
		return &payment.ProviderError{Provider: model.PaymentProviderPayPal, Op: op, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &payment.ProviderError{Provider: model.PaymentProviderPayPal, Op: op, Message: err.Error(), Err: err}
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Name             string `json:"name"`
			Message          string `json:"message"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		msg := firstNonEmpty(apiErr.Message, apiErr.ErrorDescription, apiErr.Name, resp.Status)
		return &payment.ProviderError{Provider: model.PaymentProviderPayPal, Op: op, Message: msg}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode paypal %s response: %w", op, err)
	}
	return nil
}

func amountOf(a *ppAmount) decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(a.Value)
	if err != nil {
		return decimal.Zero
	}
	return v
}

func linkTail(links []ppLink, rel string) string {
	for _, l := range links {
		if l.Rel == rel {
			return path.Base(l.Href)
		}
	}
	return ""
}
