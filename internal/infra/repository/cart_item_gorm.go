package repository

import (
	"context"
	"time"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"gorm.io/gorm"
)

type CartItemGormRepository struct {
	db *gorm.DB
}

func NewCartItemGormRepository(db *gorm.DB) *CartItemGormRepository {
	return &CartItemGormRepository{db: db}
}

func (r *CartItemGormRepository) ListByUserID(ctx context.Context, userID string) ([]model.CartItem, error) {
	var items []model.CartItem
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("added_at asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, err
	}
	return items, nil
}

func (r *CartItemGormRepository) CountByUserID(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.CartItem{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (r *CartItemGormRepository) ExistsForProduct(ctx context.Context, userID, productID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.CartItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Count(&n).Error
	return n > 0, err
}

func (r *CartItemGormRepository) Create(ctx context.Context, item *model.CartItem) error {
	return mapDuplicate(r.db.WithContext(ctx).Create(item).Error)
}

func (r *CartItemGormRepository) FindByID(ctx context.Context, itemID string) (model.CartItem, error) {
	var item model.CartItem
	if err := r.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error; err != nil {
		return model.CartItem{}, mapNotFound(err)
	}
	return item, nil
}

// Scoped to the owner, so a foreign item looks the same as a missing one.
func (r *CartItemGormRepository) DeleteOwned(ctx context.Context, userID, itemID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		Delete(&model.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CartItemGormRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.CartItem{}).Error
}

func (r *CartItemGormRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.CartItem{})
	return res.RowsAffected, res.Error
}

func (r *CartItemGormRepository) DeleteByUserAndProducts(ctx context.Context, userID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("user_id = ? AND product_id IN ?", userID, productIDs).
		Delete(&model.CartItem{}).Error
}

func (r *CartItemGormRepository) DeleteAddedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("added_at < ?", cutoff).Delete(&model.CartItem{})
	return res.RowsAffected, res.Error
}
