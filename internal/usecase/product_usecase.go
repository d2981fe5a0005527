package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"planmarket/internal/domain/event"
	"planmarket/internal/domain/model"
	"planmarket/internal/logging"
	repo "planmarket/internal/repository"

	"github.com/shopspring/decimal"
)

// ProductUsecase is the catalog side the purchase pipeline depends on:
// sellers list plans, admins approve them, everyone browses APPROVED ones.
type ProductUsecase struct {
	tx       repo.TransactionManager
	products repo.ProductRepository
	profiles repo.ProfileRepository
	files    repo.FileRepository
	ratings  repo.RatingRepository
	store    FileStore
	notifier Notifier
	ids      IDGenerator
	clock    Clock
}

func NewProductUsecase(
	tx repo.TransactionManager,
	products repo.ProductRepository,
	profiles repo.ProfileRepository,
	files repo.FileRepository,
	ratings repo.RatingRepository,
	store FileStore,
	notifier Notifier,
	ids IDGenerator,
	clock Clock,
) *ProductUsecase {
	return &ProductUsecase{
		tx:       tx,
		products: products,
		profiles: profiles,
		files:    files,
		ratings:  ratings,
		store:    store,
		notifier: notifier,
		ids:      ids,
		clock:    clock,
	}
}

// GET /products query.
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

type ProductDetail struct {
	model.Product
	Rating model.RatingStats `json:"rating"`
}

type ProductInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	// StoredFile id of an uploaded PDF
	FileID string `json:"file_id"`
}

func (u *ProductUsecase) ListPublic(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 || in.Limit < 1 || in.Limit > 100 || len(in.Q) > 100 {
		return ProductListOutput{}, badRequest(MsgInvalidInput)
	}
	if in.MinPrice != nil && in.MinPrice.IsNegative() {
		return ProductListOutput{}, badRequest(MsgInvalidInput)
	}
	if in.MaxPrice != nil && in.MaxPrice.IsNegative() {
		return ProductListOutput{}, badRequest(MsgInvalidInput)
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		return ProductListOutput{}, badRequest(MsgInvalidInput)
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
	default:
		return ProductListOutput{}, badRequest(MsgInvalidInput)
	}

	items, total, err := u.products.ListPublic(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		Category: strings.TrimSpace(in.Category),
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		Sort:     in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, fmt.Errorf("list products: %w", err)
	}
	return ProductListOutput{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

// Detail shows APPROVED products to everyone and any product to its seller.
func (u *ProductUsecase) Detail(ctx context.Context, productID, viewerID string) (ProductDetail, error) {
	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsApproved() && p.SellerID != viewerID) {
		return ProductDetail{}, notFound(MsgProductNotFound)
	}
	if err != nil {
		return ProductDetail{}, fmt.Errorf("find product: %w", err)
	}
	d := ProductDetail{Product: p, Rating: model.ComputeRatingStats(nil)}
	if r, err := u.ratings.FindProduct(ctx, p.ID); err == nil {
		d.Rating = r.RatingStats
	} else if !errors.Is(err, repo.ErrNotFound) {
		logging.FromContext(ctx).Warn("product rating lookup failed", "product_id", p.ID, "err", err)
	}
	return d, nil
}

// Create lists a new plan as PENDING for admin review.
func (u *ProductUsecase) Create(ctx context.Context, sellerID string, in ProductInput) (model.Product, error) {
	if err := u.requireSeller(ctx, sellerID); err != nil {
		return model.Product{}, err
	}
	in, err := validateProductInput(in)
	if err != nil {
		return model.Product{}, err
	}
	now := u.clock.Now()
	p := &model.Product{
		ID:          u.ids.NewID(),
		SellerID:    sellerID,
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Status:      model.ProductStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.FileID != "" {
		if p.FileKey, err = u.fileKey(ctx, sellerID, in.FileID); err != nil {
			return model.Product{}, err
		}
	}
	if err := u.products.Create(ctx, p); err != nil {
		return model.Product{}, fmt.Errorf("create product: %w", err)
	}
	return *p, nil
}

// Update edits the seller's own plan and sends it back to review.
func (u *ProductUsecase) Update(ctx context.Context, sellerID, productID string, in ProductInput) (model.Product, error) {
	p, err := u.ownProduct(ctx, sellerID, productID)
	if err != nil {
		return model.Product{}, err
	}
	in, err = validateProductInput(in)
	if err != nil {
		return model.Product{}, err
	}
	p.Title = in.Title
	p.Description = in.Description
	p.Price = in.Price
	p.Category = in.Category
	if in.FileID != "" {
		if p.FileKey, err = u.fileKey(ctx, sellerID, in.FileID); err != nil {
			return model.Product{}, err
		}
	}
	p.Status = model.ProductStatusPending
	p.UpdatedAt = u.clock.Now()
	if err := u.products.Update(ctx, &p); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Product{}, notFound(MsgProductNotFound)
		}
		return model.Product{}, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

func (u *ProductUsecase) Delete(ctx context.Context, sellerID, productID string) error {
	if _, err := u.ownProduct(ctx, sellerID, productID); err != nil {
		return err
	}
	if err := u.products.SoftDelete(ctx, productID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound(MsgProductNotFound)
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

func (u *ProductUsecase) ListMine(ctx context.Context, sellerID string) ([]model.Product, error) {
	if sellerID == "" {
		return nil, unauthorized()
	}
	items, err := u.products.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list seller products: %w", err)
	}
	return items, nil
}

func (u *ProductUsecase) ListByStatus(ctx context.Context, status model.ProductStatus, page, limit int) (ProductListOutput, error) {
	switch status {
	case model.ProductStatusDraft, model.ProductStatusPending, model.ProductStatusApproved, model.ProductStatusRejected:
	default:
		return ProductListOutput{}, badRequest(MsgInvalidStatus)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	items, total, err := u.products.ListByStatus(ctx, status, page, limit)
	if err != nil {
		return ProductListOutput{}, fmt.Errorf("list products: %w", err)
	}
	return ProductListOutput{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Moderate approves or rejects a plan. Only APPROVED plans can be bought.
func (u *ProductUsecase) Moderate(ctx context.Context, adminID, productID string, status model.ProductStatus, note string) (model.Product, error) {
	if status != model.ProductStatusApproved && status != model.ProductStatusRejected {
		return model.Product{}, badRequest(MsgInvalidStatus)
	}
	var p model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		p, err = r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound(MsgProductNotFound)
		}
		if err != nil {
			return fmt.Errorf("find product: %w", err)
		}
		if status == model.ProductStatusApproved && p.FileKey == "" {
			return badRequest(MsgDownloadFileMissing)
		}
		before := p.Status
		if err := r.Products().UpdateStatus(ctx, p.ID, status); err != nil {
			return fmt.Errorf("update product status: %w", err)
		}
		p.Status = status
		beforeJSON, _ := json.Marshal(map[string]string{"status": string(before)})
		afterJSON, _ := json.Marshal(map[string]string{"status": string(status), "note": strings.TrimSpace(note)})
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ID:           u.ids.NewID(),
			ActorUserID:  adminID,
			Action:       model.AuditActionUpdateProductStatus,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   p.ID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    u.clock.Now(),
		})
	})
	if err != nil {
		return model.Product{}, err
	}

	if u.notifier != nil {
		if err := u.notifier.Notify(ctx, event.Notification{
			Type:        event.NotifyProductModerated,
			RecipientID: p.SellerID,
			Data:        map[string]string{"product_id": p.ID, "status": string(status)},
			OccurredAt:  u.clock.Now(),
		}); err != nil {
			logging.FromContext(ctx).Warn("notification failed", "type", event.NotifyProductModerated, "err", err)
		}
	}
	return p, nil
}

// UploadFile stores a blob for its owner. Sellers upload plan PDFs, buyers
// upload review images.
func (u *ProductUsecase) UploadFile(ctx context.Context, ownerID string, kind model.FileKind, fileName, mimeType string, body io.Reader) (model.StoredFile, error) {
	if ownerID == "" {
		return model.StoredFile{}, unauthorized()
	}
	fileName = path.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return model.StoredFile{}, badRequest(MsgFileInvalid)
	}
	switch kind {
	case model.FileKindProductPDF:
		if mimeType != "application/pdf" {
			return model.StoredFile{}, badRequest(MsgFileInvalid)
		}
	case model.FileKindReviewImage:
		if !strings.HasPrefix(mimeType, "image/") {
			return model.StoredFile{}, badRequest(MsgFileInvalid)
		}
	default:
		return model.StoredFile{}, badRequest(MsgFileInvalid)
	}

	id := u.ids.NewID()
	key := strings.ToLower(string(kind)) + "/" + ownerID + "/" + id + path.Ext(fileName)
	size, err := u.store.Put(ctx, key, body)
	if err != nil {
		return model.StoredFile{}, fmt.Errorf("store file: %w", err)
	}
	f := &model.StoredFile{
		ID:        id,
		OwnerID:   ownerID,
		Key:       key,
		Kind:      kind,
		FileName:  fileName,
		MimeType:  mimeType,
		Size:      size,
		CreatedAt: u.clock.Now(),
	}
	if err := u.files.Create(ctx, f); err != nil {
		return model.StoredFile{}, fmt.Errorf("record file: %w", err)
	}
	return *f, nil
}

func (u *ProductUsecase) requireSeller(ctx context.Context, sellerID string) error {
	if sellerID == "" {
		return unauthorized()
	}
	_, err := u.profiles.FindSellerByUserID(ctx, sellerID)
	if errors.Is(err, repo.ErrNotFound) {
		return forbidden(MsgSellerProfileRequired)
	}
	if err != nil {
		return fmt.Errorf("find seller profile: %w", err)
	}
	return nil
}

func validateProductInput(in ProductInput) (ProductInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.FileID = strings.TrimSpace(in.FileID)
	if in.Title == "" || len(in.Title) > 255 || !in.Price.IsPositive() {
		return in, badRequest(MsgInvalidInput)
	}
	return in, nil
}

// fileKey resolves an uploaded PDF owned by the seller.
func (u *ProductUsecase) fileKey(ctx context.Context, sellerID, fileID string) (string, error) {
	f, err := u.files.FindByID(ctx, fileID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && (f.OwnerID != sellerID || f.Kind != model.FileKindProductPDF)) {
		return "", badRequest(MsgFileNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("find file: %w", err)
	}
	return f.Key, nil
}

func (u *ProductUsecase) ownProduct(ctx context.Context, sellerID, productID string) (model.Product, error) {
	if sellerID == "" {
		return model.Product{}, unauthorized()
	}
	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && p.SellerID != sellerID) {
		return model.Product{}, notFound(MsgProductNotFound)
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("find product: %w", err)
	}
	return p, nil
}
