package repository

import (
	"context"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"gorm.io/gorm"
)

type billingAddressGormRepository struct {
	db *gorm.DB
}

func NewBillingAddressGormRepository(db *gorm.DB) repo.BillingAddressRepository {
	return &billingAddressGormRepository{db: db}
}

func (r *billingAddressGormRepository) Create(ctx context.Context, address model.BillingAddress) (model.BillingAddress, error) {
	if err := r.db.WithContext(ctx).Create(&address).Error; err != nil {
		return model.BillingAddress{}, err
	}
	return address, nil
}

func (r *billingAddressGormRepository) ListByUserID(ctx context.Context, userID string) ([]model.BillingAddress, error) {
	var list []model.BillingAddress
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC, created_at ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *billingAddressGormRepository) FindByID(ctx context.Context, addressID string) (model.BillingAddress, error) {
	var a model.BillingAddress
	if err := r.db.WithContext(ctx).Where("id = ?", addressID).First(&a).Error; err != nil {
		return model.BillingAddress{}, mapNotFound(err)
	}
	return a, nil
}

func (r *billingAddressGormRepository) Update(ctx context.Context, address model.BillingAddress) error {
	result := r.db.WithContext(ctx).
		Model(&model.BillingAddress{}).
		Where("id = ?", address.ID).
		Select("name", "line1", "line2", "city", "state", "postal_code", "country", "phone", "updated_at").
		Updates(address)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *billingAddressGormRepository) Delete(ctx context.Context, addressID string) error {
	result := r.db.WithContext(ctx).Where("id = ?", addressID).Delete(&model.BillingAddress{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *billingAddressGormRepository) CountByUserID(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.BillingAddress{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (r *billingAddressGormRepository) SetDefault(ctx context.Context, userID, addressID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.BillingAddress{}).
			Where("id = ? AND user_id = ?", addressID, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return repo.ErrNotFound
		}

		if err := tx.Model(&model.BillingAddress{}).
			Where("user_id = ? AND is_default = ?", userID, true).
			Update("is_default", false).Error; err != nil {
			return err
		}

		return tx.Model(&model.BillingAddress{}).
			Where("id = ? AND user_id = ?", addressID, userID).
			Update("is_default", true).Error
	})
}
