package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductStatus string

const (
	ProductStatusDraft    ProductStatus = "DRAFT"
	ProductStatusPending  ProductStatus = "PENDING"
	ProductStatusApproved ProductStatus = "APPROVED"
	ProductStatusRejected ProductStatus = "REJECTED"
)

// Product is a downloadable PDF plan listed by a seller.
type Product struct {
	ID          string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	SellerID    string          `gorm:"type:varchar(36);not null;index" json:"seller_id"`
	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Category    string          `gorm:"type:varchar(100);index" json:"category"`
	Status      ProductStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	FileKey     string          `gorm:"type:varchar(255)" json:"-"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (p Product) IsApproved() bool {
	return p.Status == ProductStatusApproved
}
