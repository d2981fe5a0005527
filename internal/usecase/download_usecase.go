package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"
	"planmarket/internal/logging"
	repo "planmarket/internal/repository"
)

const defaultDownloadMime = "application/pdf"

type DownloadUsecase struct {
	tx       repo.TransactionManager
	tokens   repo.DownloadTokenRepository
	orders   repo.OrderRepository
	products repo.ProductRepository
	files    repo.FileRepository
	store    FileStore
	policy   config.Policy
	ids      IDGenerator
	clock    Clock
}

func NewDownloadUsecase(
	tx repo.TransactionManager,
	tokens repo.DownloadTokenRepository,
	orders repo.OrderRepository,
	products repo.ProductRepository,
	files repo.FileRepository,
	store FileStore,
	policy config.Policy,
	ids IDGenerator,
	clock Clock,
) *DownloadUsecase {
	return &DownloadUsecase{
		tx:       tx,
		tokens:   tokens,
		orders:   orders,
		products: products,
		files:    files,
		store:    store,
		policy:   policy,
		ids:      ids,
		clock:    clock,
	}
}

// Download is an open file stream. The caller must close Body.
type Download struct {
	Body        io.ReadCloser
	FileName    string
	ContentType string
	Size        int64
	Remaining   int
}

// Consume spends one download of token and opens the file. The file is
// resolved before the counter moves, so a missing blob costs nothing.
func (u *DownloadUsecase) Consume(ctx context.Context, token, requesterID, ip string) (Download, error) {
	if requesterID == "" {
		return Download{}, unauthorized()
	}
	t, err := u.tokens.FindByToken(ctx, token)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && t.BuyerID != requesterID) {
		return Download{}, notFound(MsgDownloadNotFound)
	}
	if err != nil {
		return Download{}, fmt.Errorf("find download token: %w", err)
	}

	now := u.clock.Now()
	if err := unusableReason(t, now); err != nil {
		return Download{}, err
	}

	p, err := u.products.FindByID(ctx, t.ProductID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && p.FileKey == "") {
		return Download{}, notFound(MsgDownloadFileMissing)
	}
	if err != nil {
		return Download{}, fmt.Errorf("find product: %w", err)
	}

	dl := Download{
		FileName:    path.Base(p.FileKey),
		ContentType: defaultDownloadMime,
	}
	if meta, err := u.files.FindByKey(ctx, p.FileKey); err == nil {
		dl.FileName = meta.FileName
		dl.ContentType = meta.MimeType
		dl.Size = meta.Size
	} else if !errors.Is(err, repo.ErrNotFound) {
		logging.FromContext(ctx).Warn("file metadata lookup failed", "file_key", p.FileKey, "err", err)
	}

	body, err := u.store.Open(ctx, p.FileKey)
	if err != nil {
		logging.FromContext(ctx).Error("open product file failed", "product_id", p.ID, "file_key", p.FileKey, "err", err)
		return Download{}, notFound(MsgDownloadFileMissing)
	}

	ok, err := u.tokens.Consume(ctx, t.ID, now, ip)
	if err != nil {
		body.Close()
		return Download{}, fmt.Errorf("consume download token: %w", err)
	}
	if !ok {
		body.Close()
		// lost a race or crossed a limit between read and update
		fresh, ferr := u.tokens.FindByID(ctx, t.ID)
		if ferr != nil {
			return Download{}, fmt.Errorf("reload download token: %w", ferr)
		}
		if err := unusableReason(fresh, now); err != nil {
			return Download{}, err
		}
		return Download{}, badRequest(MsgDownloadInactive)
	}

	dl.Body = body
	dl.Remaining = t.Remaining() - 1
	logging.FromContext(ctx).Info("download served", "token_id", t.ID, "product_id", t.ProductID, "remaining", dl.Remaining)
	return dl, nil
}

func unusableReason(t model.DownloadToken, now time.Time) error {
	switch {
	case t.DownloadCount >= t.DownloadLimit:
		return badRequest(MsgDownloadLimitExceeded)
	case !now.Before(t.ExpiresAt):
		return badRequest(MsgDownloadExpired)
	case !t.IsActive:
		return badRequest(MsgDownloadInactive)
	}
	return nil
}

func (u *DownloadUsecase) ListForOrder(ctx context.Context, orderID, buyerID string) ([]model.DownloadToken, error) {
	if buyerID == "" {
		return nil, unauthorized()
	}
	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && o.BuyerID != buyerID) {
		return nil, notFound(MsgOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	tokens, err := u.tokens.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list download tokens: %w", err)
	}
	return tokens, nil
}

func (u *DownloadUsecase) ListMine(ctx context.Context, buyerID string) ([]model.DownloadToken, error) {
	if buyerID == "" {
		return nil, unauthorized()
	}
	tokens, err := u.tokens.ListByBuyerID(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list download tokens: %w", err)
	}
	return tokens, nil
}

// Regenerate replaces the secret and resets count and expiry. Only the
// product's seller or an admin may do it, and only for a completed order.
func (u *DownloadUsecase) Regenerate(ctx context.Context, tokenID, actorID string, actorRole model.Role) (model.DownloadToken, error) {
	t, err := u.tokens.FindByID(ctx, tokenID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.DownloadToken{}, notFound(MsgDownloadNotFound)
	}
	if err != nil {
		return model.DownloadToken{}, fmt.Errorf("find download token: %w", err)
	}

	if actorRole != model.RoleAdmin {
		p, err := u.products.FindByID(ctx, t.ProductID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return model.DownloadToken{}, fmt.Errorf("find product: %w", err)
		}
		if err != nil || actorRole != model.RoleSeller || p.SellerID != actorID {
			return model.DownloadToken{}, forbidden(MsgForbidden)
		}
	}

	o, err := u.orders.FindByID(ctx, t.OrderID)
	if err != nil {
		return model.DownloadToken{}, fmt.Errorf("find order: %w", err)
	}
	if o.Status != model.OrderStatusCompleted || o.PaymentStatus == model.PaymentStatusRefunded {
		return model.DownloadToken{}, badRequest(MsgOrderNotCompleted)
	}

	secret, err := u.ids.NewSecret()
	if err != nil {
		return model.DownloadToken{}, fmt.Errorf("generate token secret: %w", err)
	}
	now := u.clock.Now()
	expiresAt := now.Add(u.policy.DownloadTTL)

	var updated model.DownloadToken
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.DownloadTokens().Regenerate(ctx, t.ID, secret, expiresAt, now); err != nil {
			return err
		}
		updated, err = r.DownloadTokens().FindByID(ctx, t.ID)
		if err != nil {
			return err
		}
		beforeJSON, _ := json.Marshal(map[string]any{"download_count": t.DownloadCount, "expires_at": t.ExpiresAt, "is_active": t.IsActive})
		afterJSON, _ := json.Marshal(map[string]any{"download_count": updated.DownloadCount, "expires_at": updated.ExpiresAt, "is_active": updated.IsActive})
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ID:           u.ids.NewID(),
			ActorUserID:  actorID,
			Action:       model.AuditActionRegenerateToken,
			ResourceType: model.AuditResourceDownloadToken,
			ResourceID:   t.ID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    now,
		})
	})
	if err != nil {
		return model.DownloadToken{}, fmt.Errorf("regenerate download token: %w", err)
	}
	return updated, nil
}

// SweepExpired deactivates every token past its expiry. Safe to repeat.
func (u *DownloadUsecase) SweepExpired(ctx context.Context) (int64, error) {
	n, err := u.tokens.DeactivateExpired(ctx, u.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("sweep download tokens: %w", err)
	}
	logging.FromContext(ctx).Info("deactivated expired download tokens", "count", n)
	return n, nil
}
