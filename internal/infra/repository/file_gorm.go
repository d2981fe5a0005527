package repository

import (
	"context"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"gorm.io/gorm"
)

type fileGormRepository struct {
	db *gorm.DB
}

func NewFileGormRepository(db *gorm.DB) repo.FileRepository {
	return &fileGormRepository{db: db}
}

func (r *fileGormRepository) Create(ctx context.Context, f *model.StoredFile) error {
	return mapDuplicate(r.db.WithContext(ctx).Create(f).Error)
}

func (r *fileGormRepository) FindByID(ctx context.Context, id string) (model.StoredFile, error) {
	var f model.StoredFile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return model.StoredFile{}, mapNotFound(err)
	}
	return f, nil
}

func (r *fileGormRepository) FindByKey(ctx context.Context, key string) (model.StoredFile, error) {
	var f model.StoredFile
	if err := r.db.WithContext(ctx).Where("storage_key = ?", key).First(&f).Error; err != nil {
		return model.StoredFile{}, mapNotFound(err)
	}
	return f, nil
}

func (r *fileGormRepository) FindByIDs(ctx context.Context, ids []string) ([]model.StoredFile, error) {
	var list []model.StoredFile
	if len(ids) == 0 {
		return list, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
