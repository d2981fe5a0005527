package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"
)

const maxBillingAddresses = 10

type BillingAddressInput struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

func (in BillingAddressInput) normalize() (BillingAddressInput, bool) {
	in.Name = strings.TrimSpace(in.Name)
	in.Line1 = strings.TrimSpace(in.Line1)
	in.Line2 = strings.TrimSpace(in.Line2)
	in.City = strings.TrimSpace(in.City)
	in.State = strings.TrimSpace(in.State)
	in.PostalCode = strings.TrimSpace(in.PostalCode)
	in.Country = strings.ToUpper(strings.TrimSpace(in.Country))
	in.Phone = strings.TrimSpace(in.Phone)
	ok := in.Name != "" && in.Line1 != "" && in.City != "" && in.PostalCode != "" && len(in.Country) == 2
	return in, ok
}

// BillingAddressUsecase manages a buyer's address book.
type BillingAddressUsecase struct {
	addresses repo.BillingAddressRepository
	ids       IDGenerator
	clock     Clock
}

func NewBillingAddressUsecase(addresses repo.BillingAddressRepository, ids IDGenerator, clock Clock) *BillingAddressUsecase {
	return &BillingAddressUsecase{addresses: addresses, ids: ids, clock: clock}
}

func (u *BillingAddressUsecase) List(ctx context.Context, userID string) ([]model.BillingAddress, error) {
	if userID == "" {
		return nil, unauthorized()
	}
	list, err := u.addresses.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return list, nil
}

// Create stores a new address. The first one becomes the default.
func (u *BillingAddressUsecase) Create(ctx context.Context, userID string, in BillingAddressInput) (model.BillingAddress, error) {
	if userID == "" {
		return model.BillingAddress{}, unauthorized()
	}
	in, ok := in.normalize()
	if !ok {
		return model.BillingAddress{}, badRequest(MsgInvalidInput)
	}
	n, err := u.addresses.CountByUserID(ctx, userID)
	if err != nil {
		return model.BillingAddress{}, fmt.Errorf("count addresses: %w", err)
	}
	if n >= maxBillingAddresses {
		return model.BillingAddress{}, badRequest(MsgAddressLimit)
	}

	now := u.clock.Now()
	created, err := u.addresses.Create(ctx, model.BillingAddress{
		ID:         u.ids.NewID(),
		UserID:     userID,
		Name:       in.Name,
		Line1:      in.Line1,
		Line2:      in.Line2,
		City:       in.City,
		State:      in.State,
		PostalCode: in.PostalCode,
		Country:    in.Country,
		Phone:      in.Phone,
		IsDefault:  n == 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return model.BillingAddress{}, fmt.Errorf("create address: %w", err)
	}
	return created, nil
}

func (u *BillingAddressUsecase) Update(ctx context.Context, userID, addressID string, in BillingAddressInput) (model.BillingAddress, error) {
	a, err := u.owned(ctx, userID, addressID)
	if err != nil {
		return model.BillingAddress{}, err
	}
	in, ok := in.normalize()
	if !ok {
		return model.BillingAddress{}, badRequest(MsgInvalidInput)
	}
	a.Name = in.Name
	a.Line1 = in.Line1
	a.Line2 = in.Line2
	a.City = in.City
	a.State = in.State
	a.PostalCode = in.PostalCode
	a.Country = in.Country
	a.Phone = in.Phone
	a.UpdatedAt = u.clock.Now()
	if err := u.addresses.Update(ctx, a); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.BillingAddress{}, notFound(MsgAddressNotFound)
		}
		return model.BillingAddress{}, fmt.Errorf("update address: %w", err)
	}
	return a, nil
}

func (u *BillingAddressUsecase) Delete(ctx context.Context, userID, addressID string) error {
	if _, err := u.owned(ctx, userID, addressID); err != nil {
		return err
	}
	if err := u.addresses.Delete(ctx, addressID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound(MsgAddressNotFound)
		}
		return fmt.Errorf("delete address: %w", err)
	}
	return nil
}

func (u *BillingAddressUsecase) SetDefault(ctx context.Context, userID, addressID string) error {
	if _, err := u.owned(ctx, userID, addressID); err != nil {
		return err
	}
	if err := u.addresses.SetDefault(ctx, userID, addressID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound(MsgAddressNotFound)
		}
		return fmt.Errorf("set default address: %w", err)
	}
	return nil
}

// owned treats another user's address as missing.
func (u *BillingAddressUsecase) owned(ctx context.Context, userID, addressID string) (model.BillingAddress, error) {
	if userID == "" {
		return model.BillingAddress{}, unauthorized()
	}
	a, err := u.addresses.FindByID(ctx, addressID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && a.UserID != userID) {
		return model.BillingAddress{}, notFound(MsgAddressNotFound)
	}
	if err != nil {
		return model.BillingAddress{}, fmt.Errorf("find address: %w", err)
	}
	return a, nil
}
