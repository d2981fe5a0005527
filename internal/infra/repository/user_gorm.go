package repository

import (
	"context"
	"errors"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"gorm.io/gorm"
)

type userGormRepository struct {
	db *gorm.DB
}

func NewUserGormRepository(db *gorm.DB) repo.UserRepository {
	return &userGormRepository{db: db}
}

func (r *userGormRepository) Create(ctx context.Context, user *model.User) error {
	return mapDuplicate(r.db.WithContext(ctx).Create(user).Error)
}

func (r *userGormRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repo.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userGormRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repo.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userGormRepository) Update(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userGormRepository) IncrementTokenVersion(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		UpdateColumn("token_version", gorm.Expr("token_version + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrUserNotFound
	}
	return nil
}

type profileGormRepository struct {
	db *gorm.DB
}

func NewProfileGormRepository(db *gorm.DB) repo.ProfileRepository {
	return &profileGormRepository{db: db}
}

func (r *profileGormRepository) CreateBuyer(ctx context.Context, p *model.BuyerProfile) error {
	return mapDuplicate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *profileGormRepository) CreateSeller(ctx context.Context, p *model.SellerProfile) error {
	return mapDuplicate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *profileGormRepository) FindBuyerByUserID(ctx context.Context, userID string) (model.BuyerProfile, error) {
	var p model.BuyerProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return model.BuyerProfile{}, mapNotFound(err)
	}
	return p, nil
}

func (r *profileGormRepository) FindSellerByUserID(ctx context.Context, userID string) (model.SellerProfile, error) {
	var p model.SellerProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return model.SellerProfile{}, mapNotFound(err)
	}
	return p, nil
}

func (r *profileGormRepository) ListSellersByUserIDs(ctx context.Context, userIDs []string) ([]model.SellerProfile, error) {
	var list []model.SellerProfile
	if len(userIDs) == 0 {
		return list, nil
	}
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *profileGormRepository) SetStripeAccount(ctx context.Context, userID string, accountID string) error {
	res := r.db.WithContext(ctx).
		Model(&model.SellerProfile{}).
		Where("user_id = ?", userID).
		Update("stripe_account_id", accountID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
