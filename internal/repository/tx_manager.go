package repository

import "context"

// Repositories bound to one database transaction.
type TxRepos interface {
	Users() UserRepository
	Profiles() ProfileRepository
	Products() ProductRepository
	CartItems() CartItemRepository
	Orders() OrderRepository
	OrderItems() OrderItemRepository
	DownloadTokens() DownloadTokenRepository
	Reviews() ReviewRepository
	ReviewFeedback() ReviewFeedbackRepository
	Ratings() RatingRepository
	Ledger() LedgerRepository
	AuditLogs() AuditLogRepository
	WebhookEvents() WebhookEventRepository
	Files() FileRepository
}

// Hides begin/commit/rollback from usecases.
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
