package repository

import (
	"context"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"gorm.io/gorm"
)

type ledgerGormRepository struct {
	db *gorm.DB
}

func NewLedgerGormRepository(db *gorm.DB) repo.LedgerRepository {
	return &ledgerGormRepository{db: db}
}

func (r *ledgerGormRepository) CreateBulk(ctx context.Context, rows []model.Transaction) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *ledgerGormRepository) ListByOrderID(ctx context.Context, orderID string) ([]model.Transaction, error) {
	var rows []model.Transaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Order("type asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ledgerGormRepository) ListBySellerID(ctx context.Context, sellerID string, page, limit int) ([]model.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("seller_id = ?", sellerID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []model.Transaction
	offset, limit := pageOffset(page, limit)
	if err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *ledgerGormRepository) HasExternalRef(ctx context.Context, orderID string, typ model.TransactionType, ref string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("order_id = ? AND type = ? AND external_ref = ?", orderID, typ, ref).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
