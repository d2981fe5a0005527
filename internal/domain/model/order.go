package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusFailed     OrderStatus = "FAILED"
	OrderStatusDisputed   OrderStatus = "DISPUTED"
)

// Mirror of the provider-side payment state.
const (
	PaymentStatusPending           = "pending"
	PaymentStatusProcessing        = "processing"
	PaymentStatusSucceeded         = "succeeded"
	PaymentStatusFailed            = "failed"
	PaymentStatusCancelled         = "cancelled"
	PaymentStatusPartiallyRefunded = "partially_refunded"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusDisputed          = "disputed"
	PaymentStatusDisputeWon        = "dispute_won"
	PaymentStatusDisputeLost       = "dispute_lost"
	// A charge that settled after the order was closed. It is refunded, never fulfilled.
	PaymentStatusCapturedAfterClose = "captured_after_close"
)

type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
	PaymentProviderPayPal PaymentProvider = "paypal"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusPaid, OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed, OrderStatusDisputed},
	OrderStatusProcessing: {OrderStatusPaid, OrderStatusCompleted, OrderStatusFailed, OrderStatusDisputed},
	OrderStatusPaid:       {OrderStatusCompleted, OrderStatusDisputed},
	OrderStatusCompleted:  {OrderStatusDisputed},
	OrderStatusFailed:     {OrderStatusDisputed},
	OrderStatusDisputed:   {OrderStatusCompleted},
}

// CanTransition reports whether from -> to is a legal status change.
// COMPLETED only leaves through a chargeback; CANCELLED never leaves.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type Order struct {
	ID          string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderNumber string      `gorm:"type:varchar(40);not null;uniqueIndex" json:"order_number"`
	BuyerID     string      `gorm:"type:varchar(36);not null;index" json:"buyer_id"`
	Status      OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	PaymentStatus   string          `gorm:"type:varchar(30);not null" json:"payment_status"`
	PaymentMethod   string          `gorm:"type:varchar(20);not null" json:"payment_method"`
	PaymentProvider PaymentProvider `gorm:"type:varchar(20);not null" json:"payment_provider"`

	Subtotal        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	PlatformFee     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"platform_fee"`
	PlatformFeeRate decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"platform_fee_rate"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	SellerAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"seller_amount"`
	RefundedAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"refunded_amount"`
	Currency        string          `gorm:"type:varchar(3);not null" json:"currency"`

	BuyerEmail string         `gorm:"type:varchar(255);not null" json:"buyer_email"`
	Billing    BillingDetails `gorm:"embedded;embeddedPrefix:billing_" json:"billing"`

	// checkout session
	PaymentSessionID     string     `gorm:"type:varchar(255);index" json:"-"`
	PaymentIntentID      string     `gorm:"type:varchar(255);index" json:"payment_intent_id,omitempty"`
	CheckoutURL          string     `gorm:"type:text" json:"checkout_url,omitempty"`
	SessionExpiresAt     *time.Time `json:"session_expires_at,omitempty"`
	DestinationAccountID string     `gorm:"type:varchar(255)" json:"-"`

	// cancellation / reactivation
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `gorm:"type:varchar(255)" json:"cancellation_reason,omitempty"`
	ReactivatedAt      *time.Time `json:"reactivated_at,omitempty"`
	ReactivationCount  int        `gorm:"not null;default:0" json:"reactivation_count"`

	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
