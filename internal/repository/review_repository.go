package repository

import (
	"context"
	"time"

	"planmarket/internal/domain/model"
)

type ReviewListQuery struct {
	Page   int
	Limit  int
	Rating int
	Sort   string
}

type ReviewRepository interface {
	Create(ctx context.Context, review *model.Review) error
	FindByID(ctx context.Context, id string) (model.Review, error)
	ExistsForPurchase(ctx context.Context, orderID, productID, buyerID string) (bool, error)
	Save(ctx context.Context, review *model.Review) error
	// removes images, votes, reports and response too
	DeleteCascade(ctx context.Context, id string) error

	ListPublishedByProduct(ctx context.Context, productID string, q ReviewListQuery) ([]model.Review, int64, error)
	ListByStatus(ctx context.Context, status model.ReviewStatus, page, limit int) ([]model.Review, int64, error)
	PublishedRatingsByProduct(ctx context.Context, productID string) ([]int, error)
	PublishedRatingsBySeller(ctx context.Context, sellerID string) ([]int, error)

	CreateImages(ctx context.Context, images []model.ReviewImage) error
	ListImages(ctx context.Context, reviewID string) ([]model.ReviewImage, error)
	ReplaceImages(ctx context.Context, reviewID string, images []model.ReviewImage) error
}

type ReviewFeedbackRepository interface {
	FindVote(ctx context.Context, reviewID, userID string) (model.ReviewVote, error)
	CreateVote(ctx context.Context, vote *model.ReviewVote) error
	SaveVote(ctx context.Context, vote *model.ReviewVote) error
	AdjustVoteCounters(ctx context.Context, reviewID string, helpfulDelta, notHelpfulDelta int) error

	CreateReport(ctx context.Context, report *model.ReviewReport) error
	CountUnresolvedReports(ctx context.Context, reviewID string) (int64, error)
	ResolveReports(ctx context.Context, reviewID string, now time.Time) error

	CreateResponse(ctx context.Context, resp *model.ReviewResponse) error
	FindResponse(ctx context.Context, reviewID string) (model.ReviewResponse, error)
}

type RatingRepository interface {
	SaveProduct(ctx context.Context, r model.ProductRating) error
	SaveSeller(ctx context.Context, r model.SellerRating) error
	FindProduct(ctx context.Context, productID string) (model.ProductRating, error)
	FindSeller(ctx context.Context, sellerID string) (model.SellerRating, error)
}
