package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is keyed by (user, product). Digital goods, so quantity stays 1.
type CartItem struct {
	ID            string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID        string          `gorm:"type:varchar(36);not null;uniqueIndex:ux_cart_items_user_product,priority:1" json:"user_id"`
	ProductID     string          `gorm:"type:varchar(36);not null;uniqueIndex:ux_cart_items_user_product,priority:2;index" json:"product_id"`
	PriceSnapshot decimal.Decimal `gorm:"type:decimal(12,2);not null;column:price_snapshot" json:"price_snapshot"`
	Quantity      int             `gorm:"not null;default:1" json:"quantity"`
	AddedAt       time.Time       `gorm:"not null;index" json:"added_at"`
}
