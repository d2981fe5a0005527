package repository

import (
	"context"
	"time"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) Create(ctx context.Context, order *model.Order) error {
	return mapDuplicate(r.db.WithContext(ctx).Create(order).Error)
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	var o model.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error; err != nil {
		return model.Order{}, mapNotFound(err)
	}
	return o, nil
}

func (r *OrderGormRepository) FindByIDForUpdate(ctx context.Context, orderID string) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&o).Error
	if err != nil {
		return model.Order{}, mapNotFound(err)
	}
	return o, nil
}

// ref is either the checkout session id or the payment intent / capture id.
func (r *OrderGormRepository) FindByPaymentRef(ctx context.Context, provider model.PaymentProvider, ref string) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Where("payment_provider = ?", provider).
		Where("(payment_session_id = ? OR payment_intent_id = ?)", ref, ref).
		Order("created_at desc").
		First(&o).Error
	if err != nil {
		return model.Order{}, mapNotFound(err)
	}
	return o, nil
}

func (r *OrderGormRepository) Save(ctx context.Context, order *model.Order) error {
	res := r.db.WithContext(ctx).Save(order)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *OrderGormRepository) ListByBuyer(ctx context.Context, buyerID string, page, limit int) ([]model.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("buyer_id = ?", buyerID).
		Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	var items []model.Order
	offset, limit := pageOffset(page, limit)
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, 0, err
	}
	return items, total, nil
}

func (r *OrderGormRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Order{})

	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.BuyerID != nil {
		q = q.Where("buyer_id = ?", *f.BuyerID)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	var items []model.Order
	offset, limit := pageOffset(f.Page, f.Limit)
	if err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Order{}, 0, err
	}
	return items, total, nil
}

func (r *OrderGormRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 500
	}
	var items []model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.OrderStatusPending, cutoff).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *OrderGormRepository) ListByPaymentStatus(ctx context.Context, paymentStatus string, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 500
	}
	var items []model.Order
	err := r.db.WithContext(ctx).
		Where("payment_status = ?", paymentStatus).
		Order("updated_at asc").
		Limit(limit).
		Find(&items).Error
	return items, err
}

type OrderItemGormRepository struct {
	db *gorm.DB
}

func NewOrderItemGormRepository(db *gorm.DB) *OrderItemGormRepository {
	return &OrderItemGormRepository{db: db}
}

func (r *OrderItemGormRepository) CreateBulk(ctx context.Context, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *OrderItemGormRepository) ListByOrderID(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	var items []model.OrderItem
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.OrderItem{}, err
	}
	return items, nil
}

func (r *OrderItemGormRepository) FindByOrderAndProduct(ctx context.Context, orderID, productID string) (model.OrderItem, error) {
	var item model.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		First(&item).Error
	if err != nil {
		return model.OrderItem{}, mapNotFound(err)
	}
	return item, nil
}
