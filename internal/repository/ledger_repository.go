package repository

import (
	"context"

	"planmarket/internal/domain/model"
)

// Append-only money ledger.
type LedgerRepository interface {
	CreateBulk(ctx context.Context, rows []model.Transaction) error
	ListByOrderID(ctx context.Context, orderID string) ([]model.Transaction, error)
	ListBySellerID(ctx context.Context, sellerID string, page, limit int) ([]model.Transaction, int64, error)
	// HasExternalRef reports whether the order already has a row of typ for
	// the given provider reference.
	HasExternalRef(ctx context.Context, orderID string, typ model.TransactionType, ref string) (bool, error)
}
