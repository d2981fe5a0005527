package usecase

import (
	"context"
	"errors"
	"fmt"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"
	"planmarket/internal/logging"
	repo "planmarket/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase is the per-buyer cart. One row per product, capped by policy.
type CartUsecase struct {
	cartItems repo.CartItemRepository
	products  repo.ProductRepository
	profiles  repo.ProfileRepository
	fees      *FeeEngine
	policy    config.Policy
	ids       IDGenerator
	clock     Clock
}

func NewCartUsecase(
	cartItems repo.CartItemRepository,
	products repo.ProductRepository,
	profiles repo.ProfileRepository,
	fees *FeeEngine,
	policy config.Policy,
	ids IDGenerator,
	clock Clock,
) *CartUsecase {
	return &CartUsecase{
		cartItems: cartItems,
		products:  products,
		profiles:  profiles,
		fees:      fees,
		policy:    policy,
		ids:       ids,
		clock:     clock,
	}
}

type CartItemView struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	Title         string          `json:"title"`
	Category      string          `json:"category"`
	SellerID      string          `json:"seller_id"`
	SellerName    string          `json:"seller_name"`
	StoreName     string          `json:"store_name"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PriceChanged  bool            `json:"price_changed"`
	Quantity      int             `json:"quantity"`
}

type CartResponse struct {
	Items           []CartItemView  `json:"items"`
	ItemCount       int             `json:"item_count"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Fees            []FeeLine       `json:"fees"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	PlatformFeeRate decimal.Decimal `json:"platform_fee_rate"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
}

type ExternalCartItem struct {
	ProductID string `json:"product_id"`
}

type CartSyncResult struct {
	ProductID string `json:"product_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type CartSyncSummary struct {
	Added   int              `json:"added"`
	Skipped int              `json:"skipped"`
	Failed  int              `json:"failed"`
	Results []CartSyncResult `json:"results"`
}

const (
	syncAdded   = "added"
	syncSkipped = "skipped"
	syncFailed  = "failed"
)

func (u *CartUsecase) Add(ctx context.Context, buyerID, productID string) (CartItemView, error) {
	if buyerID == "" {
		return CartItemView{}, unauthorized()
	}
	if productID == "" {
		return CartItemView{}, badRequest(MsgInvalidInput)
	}
	if err := u.requireBuyerProfile(ctx, buyerID); err != nil {
		return CartItemView{}, err
	}
	return u.add(ctx, buyerID, productID)
}

func (u *CartUsecase) add(ctx context.Context, buyerID, productID string) (CartItemView, error) {
	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartItemView{}, notFound(MsgProductNotFound)
	}
	if err != nil {
		return CartItemView{}, fmt.Errorf("find product: %w", err)
	}
	if !p.IsApproved() {
		return CartItemView{}, badRequest(MsgProductNotAvailable)
	}
	if p.SellerID == buyerID {
		return CartItemView{}, badRequest(MsgCannotBuyOwnProduct)
	}

	// read-then-write: two concurrent adds may pass the cap together
	n, err := u.cartItems.CountByUserID(ctx, buyerID)
	if err != nil {
		return CartItemView{}, fmt.Errorf("count cart: %w", err)
	}
	if int(n) >= u.policy.CartLimit {
		return CartItemView{}, badRequest(MsgCartLimitExceeded)
	}
	exists, err := u.cartItems.ExistsForProduct(ctx, buyerID, productID)
	if err != nil {
		return CartItemView{}, fmt.Errorf("check cart: %w", err)
	}
	if exists {
		return CartItemView{}, badRequest(MsgCartAlreadyInCart)
	}

	item := &model.CartItem{
		ID:            u.ids.NewID(),
		UserID:        buyerID,
		ProductID:     productID,
		PriceSnapshot: p.Price,
		Quantity:      1,
		AddedAt:       u.clock.Now(),
	}
	if err := u.cartItems.Create(ctx, item); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return CartItemView{}, badRequest(MsgCartAlreadyInCart)
		}
		return CartItemView{}, fmt.Errorf("create cart item: %w", err)
	}

	return CartItemView{
		ID:            item.ID,
		ProductID:     p.ID,
		Title:         p.Title,
		Category:      p.Category,
		SellerID:      p.SellerID,
		PriceSnapshot: item.PriceSnapshot,
		CurrentPrice:  p.Price,
		Quantity:      item.Quantity,
	}, nil
}

// Get prunes items whose product vanished or left APPROVED, then prices the rest.
func (u *CartUsecase) Get(ctx context.Context, buyerID string) (CartResponse, error) {
	return u.Summarize(ctx, buyerID, nil)
}

// Summarize is Get with an optional billing country for country-specific fees.
func (u *CartUsecase) Summarize(ctx context.Context, buyerID string, country *string) (CartResponse, error) {
	if buyerID == "" {
		return CartResponse{}, unauthorized()
	}
	items, err := u.cartItems.ListByUserID(ctx, buyerID)
	if err != nil {
		return CartResponse{}, fmt.Errorf("list cart: %w", err)
	}

	productIDs := make([]string, 0, len(items))
	for _, it := range items {
		productIDs = append(productIDs, it.ProductID)
	}
	products, err := u.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return CartResponse{}, fmt.Errorf("load cart products: %w", err)
	}
	byID := make(map[string]model.Product, len(products))
	sellerIDs := make([]string, 0, len(products))
	for _, p := range products {
		byID[p.ID] = p
		sellerIDs = append(sellerIDs, p.SellerID)
	}

	var stale []string
	live := make([]model.CartItem, 0, len(items))
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok || !p.IsApproved() {
			stale = append(stale, it.ID)
			continue
		}
		live = append(live, it)
	}
	if len(stale) > 0 {
		if err := u.cartItems.DeleteByIDs(ctx, stale); err != nil {
			return CartResponse{}, fmt.Errorf("prune cart: %w", err)
		}
		logging.FromContext(ctx).Info("pruned stale cart items", "buyer_id", buyerID, "count", len(stale))
	}

	sellers := map[string]model.SellerProfile{}
	if len(live) > 0 {
		profiles, err := u.profiles.ListSellersByUserIDs(ctx, sellerIDs)
		if err != nil {
			// enrichment only
			logging.FromContext(ctx).Warn("load seller profiles failed", "buyer_id", buyerID, "err", err)
		}
		for _, sp := range profiles {
			sellers[sp.UserID] = sp
		}
	}

	resp := CartResponse{
		Items:    make([]CartItemView, 0, len(live)),
		Currency: u.policy.Currency,
	}
	for _, it := range live {
		p := byID[it.ProductID]
		sp := sellers[p.SellerID]
		resp.Items = append(resp.Items, CartItemView{
			ID:            it.ID,
			ProductID:     p.ID,
			Title:         p.Title,
			Category:      p.Category,
			SellerID:      p.SellerID,
			SellerName:    sp.DisplayName,
			StoreName:     sp.StoreName,
			PriceSnapshot: it.PriceSnapshot,
			CurrentPrice:  p.Price,
			PriceChanged:  !it.PriceSnapshot.Equal(p.Price),
			Quantity:      it.Quantity,
		})
	}
	resp.ItemCount = len(resp.Items)

	q, err := u.Quote(ctx, resp.Items, country)
	if err != nil {
		return CartResponse{}, err
	}
	resp.Subtotal = q.Subtotal
	resp.Fees = q.Lines
	resp.PlatformFee = q.Fee
	resp.PlatformFeeRate = q.BaseRate
	resp.Total = q.Total
	return resp, nil
}

// FeeQuote is the subtotal and resolved fee lines for a set of cart items.
type FeeQuote struct {
	Subtotal decimal.Decimal
	Lines    []FeeLine
	Fee      decimal.Decimal
	BaseRate decimal.Decimal
	Total    decimal.Decimal
}

// Quote prices items at their current price with the active fee rules.
// Checkout quotes a selected subset the same way the cart quotes everything.
func (u *CartUsecase) Quote(ctx context.Context, items []CartItemView, country *string) (FeeQuote, error) {
	q := FeeQuote{Subtotal: decimal.Zero}
	feeItems := make([]FeeItem, 0, len(items))
	for _, it := range items {
		line := it.CurrentPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		q.Subtotal = q.Subtotal.Add(line)
		feeItems = append(feeItems, FeeItem{ProductID: it.ProductID, Category: it.Category, Amount: line})
	}
	lines, err := u.fees.CalculateFees(ctx, q.Subtotal, feeItems, country, nil)
	if err != nil {
		return FeeQuote{}, err
	}
	q.Lines = lines
	q.Fee = SumFees(lines)
	q.BaseRate = BaseRate(lines)
	q.Total = q.Subtotal.Add(q.Fee)
	return q, nil
}

func (u *CartUsecase) Remove(ctx context.Context, buyerID, itemID string) error {
	if buyerID == "" {
		return unauthorized()
	}
	err := u.cartItems.DeleteOwned(ctx, buyerID, itemID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(MsgCartItemNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func (u *CartUsecase) Clear(ctx context.Context, buyerID string) (int64, error) {
	if buyerID == "" {
		return 0, unauthorized()
	}
	n, err := u.cartItems.DeleteByUserID(ctx, buyerID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	return n, nil
}

// Migrate merges a client-held cart into the server cart. Each item goes
// through the same checks as Add; one failure never stops the rest.
func (u *CartUsecase) Migrate(ctx context.Context, buyerID string, external []ExternalCartItem) (CartSyncSummary, error) {
	if buyerID == "" {
		return CartSyncSummary{}, unauthorized()
	}
	if err := u.requireBuyerProfile(ctx, buyerID); err != nil {
		return CartSyncSummary{}, err
	}

	current, err := u.cartItems.ListByUserID(ctx, buyerID)
	if err != nil {
		return CartSyncSummary{}, fmt.Errorf("list cart: %w", err)
	}
	present := make(map[string]bool, len(current))
	for _, it := range current {
		present[it.ProductID] = true
	}
	count := len(current)

	summary := CartSyncSummary{Results: make([]CartSyncResult, 0, len(external))}
	record := func(productID, status, reason string) {
		switch status {
		case syncAdded:
			summary.Added++
		case syncSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
		summary.Results = append(summary.Results, CartSyncResult{ProductID: productID, Status: status, Reason: reason})
	}

	for _, ext := range external {
		switch {
		case ext.ProductID == "":
			record(ext.ProductID, syncFailed, MsgInvalidInput)
			continue
		case present[ext.ProductID]:
			record(ext.ProductID, syncSkipped, MsgCartAlreadyInCart)
			continue
		case count >= u.policy.CartLimit:
			record(ext.ProductID, syncSkipped, MsgCartLimitExceeded)
			continue
		}

		if _, err := u.add(ctx, buyerID, ext.ProductID); err != nil {
			if he, ok := AsHTTPError(err); ok {
				record(ext.ProductID, syncFailed, he.Message)
				continue
			}
			logging.FromContext(ctx).Error("cart migrate item failed", "buyer_id", buyerID, "product_id", ext.ProductID, "err", err)
			record(ext.ProductID, syncFailed, "internal error")
			continue
		}
		present[ext.ProductID] = true
		count++
		record(ext.ProductID, syncAdded, "")
	}
	return summary, nil
}

// Sync is Migrate followed by a fresh read of the merged cart.
func (u *CartUsecase) Sync(ctx context.Context, buyerID string, external []ExternalCartItem) (CartSyncSummary, CartResponse, error) {
	summary, err := u.Migrate(ctx, buyerID, external)
	if err != nil {
		return CartSyncSummary{}, CartResponse{}, err
	}
	cart, err := u.Get(ctx, buyerID)
	if err != nil {
		return CartSyncSummary{}, CartResponse{}, err
	}
	return summary, cart, nil
}

// SweepAbandoned removes items older than the abandonment window.
func (u *CartUsecase) SweepAbandoned(ctx context.Context) (int64, error) {
	cutoff := u.clock.Now().Add(-u.policy.CartAbandonAfter)
	n, err := u.cartItems.DeleteAddedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep carts: %w", err)
	}
	logging.FromContext(ctx).Info("swept abandoned cart items", "count", n, "cutoff", cutoff)
	return n, nil
}

func (u *CartUsecase) requireBuyerProfile(ctx context.Context, buyerID string) error {
	_, err := u.profiles.FindBuyerByUserID(ctx, buyerID)
	if errors.Is(err, repo.ErrNotFound) {
		return forbidden(MsgBuyerProfileRequired)
	}
	if err != nil {
		return fmt.Errorf("find buyer profile: %w", err)
	}
	return nil
}
