package repository

import (
	"context"

	repo "planmarket/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	db *gorm.DB
}

func (r *txReposGorm) Users() repo.UserRepository       { return NewUserGormRepository(r.db) }
func (r *txReposGorm) Profiles() repo.ProfileRepository { return NewProfileGormRepository(r.db) }
func (r *txReposGorm) Products() repo.ProductRepository { return NewProductGormRepository(r.db) }
func (r *txReposGorm) CartItems() repo.CartItemRepository {
	return NewCartItemGormRepository(r.db)
}
func (r *txReposGorm) Orders() repo.OrderRepository { return NewOrderGormRepository(r.db) }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository {
	return NewOrderItemGormRepository(r.db)
}
func (r *txReposGorm) DownloadTokens() repo.DownloadTokenRepository {
	return NewDownloadTokenGormRepository(r.db)
}
func (r *txReposGorm) Reviews() repo.ReviewRepository { return NewReviewGormRepository(r.db) }
func (r *txReposGorm) ReviewFeedback() repo.ReviewFeedbackRepository {
	return NewReviewFeedbackGormRepository(r.db)
}
func (r *txReposGorm) Ratings() repo.RatingRepository       { return NewRatingGormRepository(r.db) }
func (r *txReposGorm) Ledger() repo.LedgerRepository        { return NewLedgerGormRepository(r.db) }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository   { return NewAuditLogGormRepository(r.db) }
func (r *txReposGorm) Files() repo.FileRepository           { return NewFileGormRepository(r.db) }
func (r *txReposGorm) WebhookEvents() repo.WebhookEventRepository {
	return NewWebhookEventGormRepository(r.db)
}

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// every repo is rebuilt on the tx handle
		return fn(&txReposGorm{db: tx})
	})
}

// Repos builds the same repository set on a plain connection.
func Repos(db *gorm.DB) repo.TxRepos {
	return &txReposGorm{db: db}
}
