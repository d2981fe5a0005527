package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type FeeType string

const (
	FeeTypePlatform          FeeType = "PLATFORM_FEE"
	FeeTypePaymentProcessing FeeType = "PAYMENT_PROCESSING"
)

// FeeConfig is one fee rule. Nil Category/Country/PaymentMethod match anything.
type FeeConfig struct {
	ID            string              `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name          string              `gorm:"type:varchar(100);not null" json:"name"`
	Type          FeeType             `gorm:"type:varchar(30);not null;index" json:"type"`
	Category      *string             `gorm:"type:varchar(100)" json:"category,omitempty"`
	Country       *string             `gorm:"type:varchar(2)" json:"country,omitempty"`
	PaymentMethod *string             `gorm:"type:varchar(20)" json:"payment_method,omitempty"`
	Rate          decimal.Decimal     `gorm:"type:decimal(5,2);not null" json:"rate"`
	FixedAmount   decimal.Decimal     `gorm:"type:decimal(12,2);not null;default:0" json:"fixed_amount"`
	MinAmount     decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"min_amount"`
	MaxAmount     decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"max_amount"`
	Priority      int                 `gorm:"not null;default:0;index" json:"priority"`
	IsActive      bool                `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}
