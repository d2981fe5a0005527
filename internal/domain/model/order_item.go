package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem is the line snapshot taken at checkout. Never updated.
type OrderItem struct {
	ID           string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID      string          `gorm:"type:varchar(36);not null;index" json:"order_id"`
	ProductID    string          `gorm:"type:varchar(36);not null;index" json:"product_id"`
	SellerID     string          `gorm:"type:varchar(36);not null;index" json:"seller_id"`
	ProductTitle string          `gorm:"type:varchar(255);not null" json:"product_title"`
	Category     string          `gorm:"type:varchar(100)" json:"category"`
	Price        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Quantity     int             `gorm:"not null;default:1" json:"quantity"`
	SellerName   string          `gorm:"type:varchar(255)" json:"seller_name"`
	StoreName    string          `gorm:"type:varchar(255)" json:"store_name"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
