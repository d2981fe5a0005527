package model

import "time"

type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleSeller Role = "SELLER"
	RoleAdmin  Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID           string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	Password     string     `gorm:"column:password_hash;not null" json:"-"`
	Role         Role       `gorm:"type:varchar(20);not null;default:'BUYER'" json:"role"`
	TokenVersion int        `gorm:"not null;default:0" json:"token_version"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Buyer profile. Required before any cart operation.
type BuyerProfile struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"user_id"`
	DisplayName string    `gorm:"type:varchar(255)" json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Seller profile. A connected StripeAccountID enables split payments.
type SellerProfile struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"user_id"`
	StoreName       string    `gorm:"type:varchar(255);not null" json:"store_name"`
	DisplayName     string    `gorm:"type:varchar(255)" json:"display_name"`
	StripeAccountID string    `gorm:"type:varchar(255)" json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}
