package repository

import (
	"context"
	"time"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"gorm.io/gorm"
)

type DownloadTokenGormRepository struct {
	db *gorm.DB
}

func NewDownloadTokenGormRepository(db *gorm.DB) *DownloadTokenGormRepository {
	return &DownloadTokenGormRepository{db: db}
}

func (r *DownloadTokenGormRepository) CreateBulk(ctx context.Context, tokens []model.DownloadToken) error {
	if len(tokens) == 0 {
		return nil
	}
	return mapDuplicate(r.db.WithContext(ctx).Create(&tokens).Error)
}

func (r *DownloadTokenGormRepository) FindByToken(ctx context.Context, token string) (model.DownloadToken, error) {
	var t model.DownloadToken
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&t).Error; err != nil {
		return model.DownloadToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *DownloadTokenGormRepository) FindByID(ctx context.Context, id string) (model.DownloadToken, error) {
	var t model.DownloadToken
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return model.DownloadToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *DownloadTokenGormRepository) ListByOrderID(ctx context.Context, orderID string) ([]model.DownloadToken, error) {
	var list []model.DownloadToken
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *DownloadTokenGormRepository) ListByBuyerID(ctx context.Context, buyerID string) ([]model.DownloadToken, error) {
	var list []model.DownloadToken
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at desc").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// The guard and the increment are one statement, so two concurrent requests
// for the last remaining download cannot both match.
func (r *DownloadTokenGormRepository) Consume(ctx context.Context, id string, now time.Time, ip string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.DownloadToken{}).
		Where("id = ? AND is_active = ? AND download_count < download_limit AND expires_at > ?", id, true, now).
		Updates(map[string]interface{}{
			"download_count":   gorm.Expr("download_count + 1"),
			"is_active":        gorm.Expr("CASE WHEN download_count + 1 >= download_limit THEN ? ELSE is_active END", false),
			"last_download_at": now,
			"last_ip_address":  ip,
			"updated_at":       now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *DownloadTokenGormRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.DownloadToken{}).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Updates(map[string]interface{}{"is_active": false, "updated_at": now})
	return res.RowsAffected, res.Error
}

// Reactivation skips tokens that are expired or used up.
func (r *DownloadTokenGormRepository) SetActiveByOrder(ctx context.Context, orderID string, active bool, now time.Time) error {
	q := r.db.WithContext(ctx).Model(&model.DownloadToken{}).Where("order_id = ?", orderID)
	if active {
		q = q.Where("expires_at > ? AND download_count < download_limit", now)
	}
	return q.Updates(map[string]interface{}{"is_active": active, "updated_at": now}).Error
}

func (r *DownloadTokenGormRepository) Regenerate(ctx context.Context, id string, token string, expiresAt time.Time, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.DownloadToken{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"token":          token,
			"download_count": 0,
			"is_active":      true,
			"expires_at":     expiresAt,
			"updated_at":     now,
		})
	if res.Error != nil {
		return mapDuplicate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
