package repository

import (
	"context"
	"errors"

	"planmarket/internal/domain/model"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, userID string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// active flag, role, last login
	Update(ctx context.Context, user *model.User) error
	IncrementTokenVersion(ctx context.Context, userID string) error
}

// Buyer / seller profiles.
type ProfileRepository interface {
	CreateBuyer(ctx context.Context, p *model.BuyerProfile) error
	CreateSeller(ctx context.Context, p *model.SellerProfile) error
	FindBuyerByUserID(ctx context.Context, userID string) (model.BuyerProfile, error)
	FindSellerByUserID(ctx context.Context, userID string) (model.SellerProfile, error)
	ListSellersByUserIDs(ctx context.Context, userIDs []string) ([]model.SellerProfile, error)
	SetStripeAccount(ctx context.Context, userID string, accountID string) error
}
