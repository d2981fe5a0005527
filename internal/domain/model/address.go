package model

import "time"

// Billing address book entry. Snapshotted onto orders at checkout.
type BillingAddress struct {
	ID     string `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID string `gorm:"type:varchar(36);not null;index" json:"user_id"`

	Name       string `gorm:"type:varchar(255);not null" json:"name"`
	Line1      string `gorm:"type:varchar(255);not null" json:"line1"`
	Line2      string `gorm:"type:varchar(255)" json:"line2"`
	City       string `gorm:"type:varchar(255);not null" json:"city"`
	State      string `gorm:"type:varchar(100)" json:"state"`
	PostalCode string `gorm:"type:varchar(20);not null" json:"postal_code"`

	// ISO 3166-1 alpha-2, also drives country-specific fee rules
	Country string `gorm:"type:varchar(2);not null" json:"country"`
	Phone   string `gorm:"type:varchar(30)" json:"phone"`

	IsDefault bool `gorm:"not null;default:false" json:"is_default"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// BillingDetails is the immutable billing snapshot stored on an order.
type BillingDetails struct {
	Name       string `gorm:"type:varchar(255)" json:"name"`
	Line1      string `gorm:"type:varchar(255)" json:"line1"`
	Line2      string `gorm:"type:varchar(255)" json:"line2"`
	City       string `gorm:"type:varchar(255)" json:"city"`
	State      string `gorm:"type:varchar(100)" json:"state"`
	PostalCode string `gorm:"type:varchar(20)" json:"postal_code"`
	Country    string `gorm:"type:varchar(2)" json:"country"`
	Phone      string `gorm:"type:varchar(30)" json:"phone"`
}

func (a BillingAddress) Snapshot() BillingDetails {
	return BillingDetails{
		Name:       a.Name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}
