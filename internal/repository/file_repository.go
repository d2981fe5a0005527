package repository

import (
	"context"

	"planmarket/internal/domain/model"
)

type FileRepository interface {
	Create(ctx context.Context, f *model.StoredFile) error
	FindByID(ctx context.Context, id string) (model.StoredFile, error)
	FindByKey(ctx context.Context, key string) (model.StoredFile, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.StoredFile, error)
}
