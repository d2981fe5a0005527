package model

import "time"

// DownloadToken grants a capped number of downloads of one purchased item.
type DownloadToken struct {
	ID             string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Token          string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"token"`
	OrderID        string     `gorm:"type:varchar(36);not null;index" json:"order_id"`
	OrderItemID    string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"order_item_id"`
	ProductID      string     `gorm:"type:varchar(36);not null;index" json:"product_id"`
	BuyerID        string     `gorm:"type:varchar(36);not null;index" json:"buyer_id"`
	DownloadLimit  int        `gorm:"not null" json:"download_limit"`
	DownloadCount  int        `gorm:"not null;default:0" json:"download_count"`
	ExpiresAt      time.Time  `gorm:"not null;index" json:"expires_at"`
	IsActive       bool       `gorm:"not null;default:true;index" json:"is_active"`
	LastDownloadAt *time.Time `json:"last_download_at,omitempty"`
	LastIPAddress  string     `gorm:"type:varchar(64)" json:"-"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

func (t DownloadToken) Remaining() int {
	if t.DownloadCount >= t.DownloadLimit {
		return 0
	}
	return t.DownloadLimit - t.DownloadCount
}
