package repository

import (
	"context"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"gorm.io/gorm"
)

type feeConfigGormRepository struct {
	db *gorm.DB
}

func NewFeeConfigGormRepository(db *gorm.DB) repo.FeeConfigRepository {
	return &feeConfigGormRepository{db: db}
}

func (r *feeConfigGormRepository) ListActive(ctx context.Context, country *string) ([]model.FeeConfig, error) {
	q := r.db.WithContext(ctx).Where("is_active = ?", true)
	if country != nil && *country != "" {
		q = q.Where("(country IS NULL OR country = ?)", *country)
	} else {
		q = q.Where("country IS NULL")
	}

	var rules []model.FeeConfig
	if err := q.Order("priority desc").Order("created_at asc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *feeConfigGormRepository) List(ctx context.Context) ([]model.FeeConfig, error) {
	var rules []model.FeeConfig
	if err := r.db.WithContext(ctx).Order("type asc").Order("priority desc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *feeConfigGormRepository) FindByID(ctx context.Context, id string) (model.FeeConfig, error) {
	var c model.FeeConfig
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return model.FeeConfig{}, mapNotFound(err)
	}
	return c, nil
}

func (r *feeConfigGormRepository) Create(ctx context.Context, cfg *model.FeeConfig) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

func (r *feeConfigGormRepository) Update(ctx context.Context, cfg *model.FeeConfig) error {
	res := r.db.WithContext(ctx).Save(cfg)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
