package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionSale        TransactionType = "SALE"
	TransactionPlatformFee TransactionType = "PLATFORM_FEE"
	TransactionStripeFee   TransactionType = "STRIPE_FEE"
	TransactionPayout      TransactionType = "PAYOUT"
	TransactionRefund      TransactionType = "REFUND"
	TransactionChargeback  TransactionType = "CHARGEBACK"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction is an append-only ledger row. Only Status changes after insert.
type Transaction struct {
	ID          string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	Type        TransactionType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Status      TransactionStatus `gorm:"type:varchar(20);not null" json:"status"`
	OrderID     *string           `gorm:"type:varchar(36);index" json:"order_id,omitempty"`
	SellerID    *string           `gorm:"type:varchar(36);index" json:"seller_id,omitempty"`
	PayoutID    *string           `gorm:"type:varchar(36)" json:"payout_id,omitempty"`
	Amount      decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency    string            `gorm:"type:varchar(3);not null" json:"currency"`
	Description string            `gorm:"type:varchar(255)" json:"description"`
	ExternalRef string            `gorm:"type:varchar(255);index" json:"external_ref,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updated_at"`
}
