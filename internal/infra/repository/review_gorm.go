package repository

import (
	"context"
	"time"

	"planmarket/internal/domain/model"
	repo "planmarket/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReviewGormRepository struct {
	db *gorm.DB
}

func NewReviewGormRepository(db *gorm.DB) *ReviewGormRepository {
	return &ReviewGormRepository{db: db}
}

func (r *ReviewGormRepository) Create(ctx context.Context, review *model.Review) error {
	return mapDuplicate(r.db.WithContext(ctx).Create(review).Error)
}

func (r *ReviewGormRepository) FindByID(ctx context.Context, id string) (model.Review, error) {
	var rv model.Review
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rv).Error; err != nil {
		return model.Review{}, mapNotFound(err)
	}
	return rv, nil
}

func (r *ReviewGormRepository) ExistsForPurchase(ctx context.Context, orderID, productID, buyerID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Review{}).
		Where("order_id = ? AND product_id = ? AND buyer_id = ?", orderID, productID, buyerID).
		Count(&n).Error
	return n > 0, err
}

func (r *ReviewGormRepository) Save(ctx context.Context, review *model.Review) error {
	return r.db.WithContext(ctx).Save(review).Error
}

func (r *ReviewGormRepository) DeleteCascade(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)
	for _, child := range []interface{}{
		&model.ReviewImage{},
		&model.ReviewVote{},
		&model.ReviewReport{},
		&model.ReviewResponse{},
	} {
		if err := db.Where("review_id = ?", id).Delete(child).Error; err != nil {
			return err
		}
	}

	res := db.Where("id = ?", id).Delete(&model.Review{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *ReviewGormRepository) ListPublishedByProduct(ctx context.Context, productID string, q repo.ReviewListQuery) ([]model.Review, int64, error) {
	tx := r.db.WithContext(ctx).Model(&model.Review{}).
		Where("product_id = ? AND status = ?", productID, model.ReviewStatusPublished)
	if q.Rating >= 1 && q.Rating <= 5 {
		tx = tx.Where("rating = ?", q.Rating)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch q.Sort {
	case "helpful":
		tx = tx.Order("helpful_count desc").Order("created_at desc")
	case "rating_desc":
		tx = tx.Order("rating desc").Order("created_at desc")
	case "rating_asc":
		tx = tx.Order("rating asc").Order("created_at desc")
	default:
		tx = tx.Order("created_at desc")
	}

	var list []model.Review
	offset, limit := pageOffset(q.Page, q.Limit)
	if err := tx.Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *ReviewGormRepository) ListByStatus(ctx context.Context, status model.ReviewStatus, page, limit int) ([]model.Review, int64, error) {
	tx := r.db.WithContext(ctx).Model(&model.Review{}).Where("status = ?", status)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []model.Review
	offset, limit := pageOffset(page, limit)
	if err := tx.Order("created_at asc").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *ReviewGormRepository) PublishedRatingsByProduct(ctx context.Context, productID string) ([]int, error) {
	return r.publishedRatings(ctx, "product_id", productID)
}

func (r *ReviewGormRepository) PublishedRatingsBySeller(ctx context.Context, sellerID string) ([]int, error) {
	return r.publishedRatings(ctx, "seller_id", sellerID)
}

func (r *ReviewGormRepository) publishedRatings(ctx context.Context, column, id string) ([]int, error) {
	var ratings []int
	err := r.db.WithContext(ctx).Model(&model.Review{}).
		Where(column+" = ? AND status = ?", id, model.ReviewStatusPublished).
		Pluck("rating", &ratings).Error
	if err != nil {
		return nil, err
	}
	return ratings, nil
}

func (r *ReviewGormRepository) CreateImages(ctx context.Context, images []model.ReviewImage) error {
	if len(images) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&images).Error
}

func (r *ReviewGormRepository) ListImages(ctx context.Context, reviewID string) ([]model.ReviewImage, error) {
	var list []model.ReviewImage
	if err := r.db.WithContext(ctx).
		Where("review_id = ?", reviewID).
		Order("position asc").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *ReviewGormRepository) ReplaceImages(ctx context.Context, reviewID string, images []model.ReviewImage) error {
	if err := r.db.WithContext(ctx).Where("review_id = ?", reviewID).Delete(&model.ReviewImage{}).Error; err != nil {
		return err
	}
	return r.CreateImages(ctx, images)
}

type ReviewFeedbackGormRepository struct {
	db *gorm.DB
}

func NewReviewFeedbackGormRepository(db *gorm.DB) *ReviewFeedbackGormRepository {
	return &ReviewFeedbackGormRepository{db: db}
}

func (r *ReviewFeedbackGormRepository) FindVote(ctx context.Context, reviewID, userID string) (model.ReviewVote, error) {
	var v model.ReviewVote
	err := r.db.WithContext(ctx).
		Where("review_id = ? AND user_id = ?", reviewID, userID).
		First(&v).Error
	if err != nil {
		return model.ReviewVote{}, mapNotFound(err)
	}
	return v, nil
}

func (r *ReviewFeedbackGormRepository) CreateVote(ctx context.Context, vote *model.ReviewVote) error {
	return mapDuplicate(r.db.WithContext(ctx).Create(vote).Error)
}

func (r *ReviewFeedbackGormRepository) SaveVote(ctx context.Context, vote *model.ReviewVote) error {
	return r.db.WithContext(ctx).Save(vote).Error
}

func (r *ReviewFeedbackGormRepository) AdjustVoteCounters(ctx context.Context, reviewID string, helpfulDelta, notHelpfulDelta int) error {
	res := r.db.WithContext(ctx).
		Model(&model.Review{}).
		Where("id = ?", reviewID).
		UpdateColumns(map[string]interface{}{
			"helpful_count":     gorm.Expr("helpful_count + ?", helpfulDelta),
			"not_helpful_count": gorm.Expr("not_helpful_count + ?", notHelpfulDelta),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *ReviewFeedbackGormRepository) CreateReport(ctx context.Context, report *model.ReviewReport) error {
	return mapDuplicate(r.db.WithContext(ctx).Create(report).Error)
}

func (r *ReviewFeedbackGormRepository) CountUnresolvedReports(ctx context.Context, reviewID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.ReviewReport{}).
		Where("review_id = ? AND resolved = ?", reviewID, false).
		Count(&n).Error
	return n, err
}

func (r *ReviewFeedbackGormRepository) ResolveReports(ctx context.Context, reviewID string, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.ReviewReport{}).
		Where("review_id = ? AND resolved = ?", reviewID, false).
		Updates(map[string]interface{}{"resolved": true, "resolved_at": now}).Error
}

func (r *ReviewFeedbackGormRepository) CreateResponse(ctx context.Context, resp *model.ReviewResponse) error {
	return mapDuplicate(r.db.WithContext(ctx).Create(resp).Error)
}

func (r *ReviewFeedbackGormRepository) FindResponse(ctx context.Context, reviewID string) (model.ReviewResponse, error) {
	var resp model.ReviewResponse
	if err := r.db.WithContext(ctx).Where("review_id = ?", reviewID).First(&resp).Error; err != nil {
		return model.ReviewResponse{}, mapNotFound(err)
	}
	return resp, nil
}

type RatingGormRepository struct {
	db *gorm.DB
}

func NewRatingGormRepository(db *gorm.DB) *RatingGormRepository {
	return &RatingGormRepository{db: db}
}

func (r *RatingGormRepository) SaveProduct(ctx context.Context, rating model.ProductRating) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "product_id"}}, UpdateAll: true}).
		Create(&rating).Error
}

func (r *RatingGormRepository) SaveSeller(ctx context.Context, rating model.SellerRating) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "seller_id"}}, UpdateAll: true}).
		Create(&rating).Error
}

func (r *RatingGormRepository) FindProduct(ctx context.Context, productID string) (model.ProductRating, error) {
	var pr model.ProductRating
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&pr).Error; err != nil {
		return model.ProductRating{}, mapNotFound(err)
	}
	return pr, nil
}

func (r *RatingGormRepository) FindSeller(ctx context.Context, sellerID string) (model.SellerRating, error) {
	var sr model.SellerRating
	if err := r.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&sr).Error; err != nil {
		return model.SellerRating{}, mapNotFound(err)
	}
	return sr, nil
}
