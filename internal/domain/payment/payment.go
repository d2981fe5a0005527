// Package payment defines the contract shared by the card and wallet
// processor adapters.
package payment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"planmarket/internal/domain/model"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidSignature is returned by ParseWebhook. Never retried.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrSplitUnsupported is returned when a destination account is requested
	// from an adapter that cannot split a charge.
	ErrSplitUnsupported = errors.New("split payment unsupported")
	// ErrSessionWindow is returned when the requested expiry is outside what
	// the processor accepts.
	ErrSessionWindow = errors.New("session expiry out of range")
)

// MinSessionLifetime is the shortest hosted checkout every adapter accepts.
const MinSessionLifetime = 31 * time.Minute

// ProviderError wraps a failed call to the processor.
type ProviderError struct {
	Provider model.PaymentProvider
	Op       string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	return string(e.Provider) + " " + e.Op + ": " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

type LineItem struct {
	ProductID string
	Name      string
	Amount    decimal.Decimal
	Quantity  int
}

// SessionRequest asks for a hosted checkout of Amount.
// DestinationAccount and ApplicationFee are set for split payments only.
type SessionRequest struct {
	OrderID     string
	OrderNumber string
	BuyerEmail  string
	Currency    string
	Amount      decimal.Decimal
	Items       []LineItem
	SuccessURL  string
	CancelURL   string
	ExpiresAt   time.Time

	DestinationAccount string
	ApplicationFee     decimal.Decimal
}

type Session struct {
	SessionID       string
	PaymentIntentID string
	CheckoutURL     string
	ExpiresAt       time.Time
}

// Status is the normalised provider-side payment state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

type StatusResult struct {
	Status          Status
	PaymentIntentID string
	Raw             string
}

type RefundRequest struct {
	PaymentRef string
	// zero means full refund
	Amount   decimal.Decimal
	Currency string
	Reason   string
}

type RefundResult struct {
	RefundID string
	Status   string
	Amount   decimal.Decimal
}

type EventKind string

const (
	EventPaymentSucceeded  EventKind = "payment_succeeded"
	EventPaymentProcessing EventKind = "payment_processing"
	EventPaymentFailed     EventKind = "payment_failed"
	EventPaymentCancelled  EventKind = "payment_cancelled"
	EventSessionExpired    EventKind = "session_expired"
	EventRefunded          EventKind = "refunded"
	EventDisputeOpened     EventKind = "dispute_opened"
	EventDisputeClosed     EventKind = "dispute_closed"
	EventIgnored           EventKind = "ignored"
)

// Event is a verified provider webhook translated into marketplace terms.
type Event struct {
	ID         string
	Type       string
	Kind       EventKind
	OrderID    string
	PaymentRef string
	// PaymentIntentID is the charge reference learned from this event, if any.
	PaymentIntentID string
	Amount          decimal.Decimal
	DisputeWon      bool
	// RefundID identifies a single refund when the provider reports one.
	RefundID string
	// RefundedTotal is the running total refunded on the charge, zero when
	// the provider only reports the single refund in Amount.
	RefundedTotal decimal.Decimal
	Payload       []byte
}

// Gateway is implemented by every payment processor adapter.
type Gateway interface {
	Provider() model.PaymentProvider
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	RetrieveStatus(ctx context.Context, ref string) (StatusResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
	ParseWebhook(ctx context.Context, payload []byte, header http.Header) (Event, error)
}

// SessionExpirer is implemented by adapters whose hosted sessions can be
// closed before their natural expiry.
type SessionExpirer interface {
	ExpireSession(ctx context.Context, sessionID string) error
}

// Capturer is implemented by two-phase (approve then capture) wallets.
type Capturer interface {
	Capture(ctx context.Context, ref string) (StatusResult, error)
}

// MinorUnits converts an amount to the processor's integer minor unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
