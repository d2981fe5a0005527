package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"
	"planmarket/internal/domain/payment"
	"planmarket/internal/logging"
	repo "planmarket/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	PaymentMethodCard   = "card"
	PaymentMethodPayPal = "paypal"
)

const (
	cancelReasonBuyer   = "cancelled by buyer"
	cancelReasonExpired = "expired"
)

// CheckoutUsecase turns a cart (or part of it) into a PENDING order and a
// hosted payment session. It never touches the cart; a confirmed payment does.
type CheckoutUsecase struct {
	tx         repo.TransactionManager
	cart       *CartUsecase
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	addresses  repo.BillingAddressRepository
	profiles   repo.ProfileRepository
	gateways   map[model.PaymentProvider]payment.Gateway
	sm         *OrderStateMachine
	policy     config.Policy
	publicURL  string
	ids        IDGenerator
	clock      Clock
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	cart *CartUsecase,
	orders repo.OrderRepository,
	orderItems repo.OrderItemRepository,
	addresses repo.BillingAddressRepository,
	profiles repo.ProfileRepository,
	gateways []payment.Gateway,
	sm *OrderStateMachine,
	policy config.Policy,
	publicURL string,
	ids IDGenerator,
	clock Clock,
) *CheckoutUsecase {
	byProvider := make(map[model.PaymentProvider]payment.Gateway, len(gateways))
	for _, g := range gateways {
		byProvider[g.Provider()] = g
	}
	return &CheckoutUsecase{
		tx:         tx,
		cart:       cart,
		orders:     orders,
		orderItems: orderItems,
		addresses:  addresses,
		profiles:   profiles,
		gateways:   byProvider,
		sm:         sm,
		policy:     policy,
		publicURL:  strings.TrimRight(publicURL, "/"),
		ids:        ids,
		clock:      clock,
	}
}

type CreateSessionInput struct {
	BuyerEmail       string                `json:"buyer_email"`
	Billing          *model.BillingDetails `json:"billing"`
	BillingAddressID string                `json:"billing_address_id"`
	SuccessURL       string                `json:"success_url"`
	CancelURL        string                `json:"cancel_url"`
	ProductIDs       []string              `json:"product_ids"`
	PaymentMethod    string                `json:"payment_method"`
}

type CheckoutSession struct {
	OrderID         string          `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	CheckoutURL     string          `json:"checkout_url"`
	SessionID       string          `json:"session_id"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	ExpiresAt       time.Time       `json:"expires_at"`
}

func (u *CheckoutUsecase) CreateSession(ctx context.Context, buyerID string, in CreateSessionInput) (CheckoutSession, error) {
	if buyerID == "" {
		return CheckoutSession{}, unauthorized()
	}
	method := strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if method == "" {
		method = PaymentMethodCard
	}
	gw, err := u.gatewayForMethod(method)
	if err != nil {
		return CheckoutSession{}, err
	}
	email := strings.TrimSpace(in.BuyerEmail)
	if email == "" || !strings.Contains(email, "@") {
		return CheckoutSession{}, badRequest(MsgInvalidInput)
	}
	billing, err := u.resolveBilling(ctx, buyerID, in)
	if err != nil {
		return CheckoutSession{}, err
	}

	cart, err := u.cart.Summarize(ctx, buyerID, &billing.Country)
	if err != nil {
		return CheckoutSession{}, err
	}
	if len(cart.Items) == 0 {
		return CheckoutSession{}, badRequest(MsgCartEmpty)
	}
	selected := selectItems(cart.Items, in.ProductIDs)
	if len(selected) == 0 {
		return CheckoutSession{}, badRequest(MsgCheckoutNoItems)
	}

	// the selection is quoted with the same fee lines the cart shows
	quote, err := u.cart.Quote(ctx, selected, &billing.Country)
	if err != nil {
		return CheckoutSession{}, err
	}
	subtotal, fee, total := quote.Subtotal, quote.Fee, quote.Total

	now := u.clock.Now()
	order := &model.Order{
		ID:              u.ids.NewID(),
		OrderNumber:     u.ids.NewOrderNumber(),
		BuyerID:         buyerID,
		Status:          model.OrderStatusPending,
		PaymentStatus:   model.PaymentStatusPending,
		PaymentMethod:   method,
		PaymentProvider: gw.Provider(),
		Subtotal:        subtotal,
		PlatformFee:     fee,
		PlatformFeeRate: quote.BaseRate,
		TotalAmount:     total,
		SellerAmount:    subtotal,
		Currency:        cart.Currency,
		BuyerEmail:      email,
		Billing:         billing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	items := make([]model.OrderItem, 0, len(selected))
	for _, it := range selected {
		items = append(items, model.OrderItem{
			ID:           u.ids.NewID(),
			OrderID:      order.ID,
			ProductID:    it.ProductID,
			SellerID:     it.SellerID,
			ProductTitle: it.Title,
			Category:     it.Category,
			Price:        it.CurrentPrice,
			Quantity:     it.Quantity,
			SellerName:   it.SellerName,
			StoreName:    it.StoreName,
			CreatedAt:    now,
		})
	}

	if err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := r.OrderItems().CreateBulk(ctx, items); err != nil {
			return fmt.Errorf("create order items: %w", err)
		}
		return nil
	}); err != nil {
		return CheckoutSession{}, err
	}

	expiresAt := now.Add(u.policy.CheckoutSessionTTL)
	req := u.sessionRequest(*order, items, expiresAt, in.SuccessURL, in.CancelURL)
	if gw.Provider() == model.PaymentProviderStripe {
		if dest := u.splitDestination(ctx, items); dest != "" {
			req.DestinationAccount = dest
			req.ApplicationFee = total.Sub(order.SellerAmount)
		}
	}

	sess, err := u.openSession(ctx, gw, req)
	if err != nil {
		// the order stays PENDING; the buyer can reactivate or let it expire
		return CheckoutSession{}, err
	}
	sess.ExpiresAt = expiresAt

	saved, err := u.storeSession(ctx, order.ID, sess, req.DestinationAccount, false)
	if err != nil {
		u.discardSession(ctx, gw, order.ID, sess.SessionID)
		return CheckoutSession{}, err
	}
	return toCheckoutSession(saved), nil
}

// Reactivate issues a fresh session for a PENDING order still inside its
// window. An order past the window is cancelled on the spot. The previous
// session is closed first so only one session can ever take the payment,
// and the new one never outlives the order's window.
func (u *CheckoutUsecase) Reactivate(ctx context.Context, orderID, buyerID string) (CheckoutSession, error) {
	o, err := u.ownedOrder(ctx, orderID, buyerID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if o.Status != model.OrderStatusPending {
		return CheckoutSession{}, badRequest(MsgOrderNotPending)
	}

	now := u.clock.Now()
	deadline := o.CreatedAt.Add(u.policy.CheckoutSessionTTL)
	if !now.Before(deadline) {
		if _, err := u.sm.Cancel(ctx, o.ID, model.SystemActor, cancelReasonExpired); err != nil {
			logging.FromContext(ctx).Error("auto-cancel expired order failed", "order_id", o.ID, "err", err)
		}
		return CheckoutSession{}, badRequest(MsgCheckoutSessionExpire)
	}
	if deadline.Sub(now) < payment.MinSessionLifetime {
		return CheckoutSession{}, badRequest(MsgCheckoutWindowClosing)
	}

	gw, ok := u.gateways[o.PaymentProvider]
	if !ok {
		return CheckoutSession{}, badRequest(MsgPaymentMethodInvalid)
	}
	items, err := u.listItems(ctx, o.ID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if err := u.closePreviousSession(ctx, gw, o); err != nil {
		return CheckoutSession{}, err
	}

	req := u.sessionRequest(o, items, deadline, "", "")
	if o.DestinationAccountID != "" {
		req.DestinationAccount = o.DestinationAccountID
		req.ApplicationFee = o.TotalAmount.Sub(o.SellerAmount)
	}
	sess, err := u.openSession(ctx, gw, req)
	if err != nil {
		return CheckoutSession{}, err
	}
	sess.ExpiresAt = deadline

	saved, err := u.storeSession(ctx, o.ID, sess, req.DestinationAccount, true)
	if err != nil {
		u.discardSession(ctx, gw, o.ID, sess.SessionID)
		return CheckoutSession{}, err
	}
	return toCheckoutSession(saved), nil
}

// closePreviousSession expires the order's current hosted session. A session
// the provider will not expire is only tolerated when nothing was paid on it.
func (u *CheckoutUsecase) closePreviousSession(ctx context.Context, gw payment.Gateway, o model.Order) error {
	expirer, ok := gw.(payment.SessionExpirer)
	if !ok || o.PaymentSessionID == "" {
		return nil
	}
	err := expirer.ExpireSession(ctx, o.PaymentSessionID)
	if err == nil {
		return nil
	}
	st, serr := gw.RetrieveStatus(ctx, o.PaymentSessionID)
	if serr != nil {
		return providerFailure(ctx, o.ID, err)
	}
	switch st.Status {
	case payment.StatusSucceeded, payment.StatusProcessing:
		logging.FromContext(ctx).Info("previous session already paid, not reactivating",
			"order_id", o.ID, "session_id", o.PaymentSessionID, "status", st.Status)
		return conflict(MsgPaymentInProgress)
	case payment.StatusCancelled:
		return nil
	}
	return providerFailure(ctx, o.ID, err)
}

// discardSession expires a session that could not be attached to its order.
func (u *CheckoutUsecase) discardSession(ctx context.Context, gw payment.Gateway, orderID, sessionID string) {
	expirer, ok := gw.(payment.SessionExpirer)
	if !ok {
		return
	}
	if err := expirer.ExpireSession(ctx, sessionID); err != nil {
		logging.FromContext(ctx).Error("expire orphaned session failed", "order_id", orderID, "session_id", sessionID, "err", err)
	}
}

func (u *CheckoutUsecase) Cancel(ctx context.Context, orderID, buyerID string) (model.Order, error) {
	if _, err := u.ownedOrder(ctx, orderID, buyerID); err != nil {
		return model.Order{}, err
	}
	res, err := u.sm.Cancel(ctx, orderID, buyerID, cancelReasonBuyer)
	if err != nil {
		return model.Order{}, err
	}
	return res.Order, nil
}

// Capture completes a wallet order the buyer approved on the provider side.
// The later capture webhook finds the order already paid and does nothing.
func (u *CheckoutUsecase) Capture(ctx context.Context, orderID, buyerID string) (model.Order, error) {
	o, err := u.ownedOrder(ctx, orderID, buyerID)
	if err != nil {
		return model.Order{}, err
	}
	if o.Status == model.OrderStatusCompleted {
		return o, nil
	}
	if o.Status != model.OrderStatusPending && o.Status != model.OrderStatusProcessing {
		return model.Order{}, badRequest(MsgOrderNotPending)
	}
	capturer, ok := u.gateways[o.PaymentProvider].(payment.Capturer)
	if !ok {
		return model.Order{}, badRequest(MsgPaymentCaptureNotNeeded)
	}

	st, err := capturer.Capture(ctx, o.PaymentSessionID)
	if err != nil {
		return model.Order{}, providerFailure(ctx, o.ID, err)
	}

	var res TransitionResult
	switch st.Status {
	case payment.StatusSucceeded:
		res, err = u.sm.MarkPaid(ctx, o.ID, st.PaymentIntentID, buyerID)
		if err == nil && res.RefundDue {
			// the order closed while the buyer was approving
			if rerr := refundClosedOrder(ctx, u.gateways[o.PaymentProvider], u.sm, res.Order, buyerID); rerr != nil {
				return model.Order{}, rerr
			}
			return model.Order{}, badRequest(MsgOrderNotPending)
		}
	case payment.StatusProcessing, payment.StatusPending:
		res, err = u.sm.MarkProcessing(ctx, o.ID, st.PaymentIntentID, buyerID)
	default:
		if _, ferr := u.sm.MarkPaymentFailed(ctx, o.ID, buyerID); ferr != nil {
			logging.FromContext(ctx).Error("mark payment failed", "order_id", o.ID, "err", ferr)
		}
		return model.Order{}, badRequest(MsgPaymentFailed)
	}
	if err != nil {
		return model.Order{}, err
	}
	return res.Order, nil
}

// SweepExpiredPending cancels PENDING orders older than the session window.
func (u *CheckoutUsecase) SweepExpiredPending(ctx context.Context) (int, error) {
	cutoff := u.clock.Now().Add(-u.policy.CheckoutSessionTTL)
	orders, err := u.orders.ListPendingCreatedBefore(ctx, cutoff, u.policy.PendingSweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list expired pending orders: %w", err)
	}
	cancelled := 0
	for _, o := range orders {
		if _, err := u.sm.Cancel(ctx, o.ID, model.SystemActor, cancelReasonExpired); err != nil {
			logging.FromContext(ctx).Warn("cancel expired order failed", "order_id", o.ID, "err", err)
			continue
		}
		cancelled++
	}
	logging.FromContext(ctx).Info("swept expired pending orders", "cancelled", cancelled, "cutoff", cutoff)
	return cancelled, nil
}

// SweepClosedOrderRefunds retries refunds for payments that settled on an
// order after it was cancelled or failed.
func (u *CheckoutUsecase) SweepClosedOrderRefunds(ctx context.Context) (int, error) {
	orders, err := u.orders.ListByPaymentStatus(ctx, model.PaymentStatusCapturedAfterClose, u.policy.PendingSweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list unrefunded closed orders: %w", err)
	}
	refunded := 0
	for _, o := range orders {
		if err := refundClosedOrder(ctx, u.gateways[o.PaymentProvider], u.sm, o, model.SystemActor); err != nil {
			logging.FromContext(ctx).Warn("refund on closed order failed", "order_id", o.ID, "err", err)
			continue
		}
		refunded++
	}
	return refunded, nil
}

func (u *CheckoutUsecase) gatewayForMethod(method string) (payment.Gateway, error) {
	var provider model.PaymentProvider
	switch method {
	case PaymentMethodCard:
		provider = model.PaymentProviderStripe
	case PaymentMethodPayPal:
		provider = model.PaymentProviderPayPal
	default:
		return nil, badRequest(MsgPaymentMethodInvalid)
	}
	gw, ok := u.gateways[provider]
	if !ok {
		return nil, badRequest(MsgPaymentMethodInvalid)
	}
	return gw, nil
}

func (u *CheckoutUsecase) resolveBilling(ctx context.Context, buyerID string, in CreateSessionInput) (model.BillingDetails, error) {
	if in.BillingAddressID != "" {
		a, err := u.addresses.FindByID(ctx, in.BillingAddressID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && a.UserID != buyerID) {
			return model.BillingDetails{}, notFound(MsgAddressNotFound)
		}
		if err != nil {
			return model.BillingDetails{}, fmt.Errorf("find billing address: %w", err)
		}
		return a.Snapshot(), nil
	}
	if in.Billing == nil || strings.TrimSpace(in.Billing.Name) == "" || strings.TrimSpace(in.Billing.Country) == "" {
		return model.BillingDetails{}, badRequest(MsgBillingRequired)
	}
	b := *in.Billing
	b.Country = strings.ToUpper(strings.TrimSpace(b.Country))
	if len(b.Country) != 2 {
		return model.BillingDetails{}, badRequest(MsgBillingRequired)
	}
	return b, nil
}

// splitDestination returns the seller's connected account when every item
// belongs to that one seller.
func (u *CheckoutUsecase) splitDestination(ctx context.Context, items []model.OrderItem) string {
	sellerID := ""
	for _, it := range items {
		if sellerID != "" && it.SellerID != sellerID {
			return ""
		}
		sellerID = it.SellerID
	}
	sp, err := u.profiles.FindSellerByUserID(ctx, sellerID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			logging.FromContext(ctx).Warn("load seller for split payment failed", "seller_id", sellerID, "err", err)
		}
		return ""
	}
	return sp.StripeAccountID
}

func (u *CheckoutUsecase) sessionRequest(o model.Order, items []model.OrderItem, expiresAt time.Time, successURL, cancelURL string) payment.SessionRequest {
	if successURL == "" {
		successURL = u.publicURL + "/checkout/success?order=" + o.OrderNumber
	}
	if cancelURL == "" {
		cancelURL = u.publicURL + "/checkout/cancel?order=" + o.OrderNumber
	}
	lines := make([]payment.LineItem, 0, len(items)+1)
	for _, it := range items {
		lines = append(lines, payment.LineItem{
			ProductID: it.ProductID,
			Name:      it.ProductTitle,
			Amount:    it.Price,
			Quantity:  it.Quantity,
		})
	}
	if o.PlatformFee.IsPositive() {
		lines = append(lines, payment.LineItem{Name: "Platform fee", Amount: o.PlatformFee, Quantity: 1})
	}
	return payment.SessionRequest{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		BuyerEmail:  o.BuyerEmail,
		Currency:    o.Currency,
		Amount:      o.TotalAmount,
		Items:       lines,
		SuccessURL:  successURL,
		CancelURL:   cancelURL,
		ExpiresAt:   expiresAt,
	}
}

// openSession falls back to a platform-collected charge when the adapter
// cannot split.
func (u *CheckoutUsecase) openSession(ctx context.Context, gw payment.Gateway, req payment.SessionRequest) (payment.Session, error) {
	sess, err := gw.CreateSession(ctx, req)
	if errors.Is(err, payment.ErrSplitUnsupported) {
		logging.FromContext(ctx).Info("split payment unsupported, charging platform account", "order_id", req.OrderID, "provider", gw.Provider())
		req.DestinationAccount = ""
		req.ApplicationFee = decimal.Zero
		sess, err = gw.CreateSession(ctx, req)
	}
	if err != nil {
		return payment.Session{}, providerFailure(ctx, req.OrderID, err)
	}
	return sess, nil
}

// storeSession writes the session onto the locked row. An order that a
// webhook or the sweep already moved out of PENDING is left untouched.
func (u *CheckoutUsecase) storeSession(ctx context.Context, orderID string, sess payment.Session, destination string, reactivation bool) (model.Order, error) {
	var saved model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := lockOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		if o.Status != model.OrderStatusPending {
			return badRequest(MsgOrderNotPending)
		}
		now := u.clock.Now()
		expiresAt := sess.ExpiresAt
		o.PaymentSessionID = sess.SessionID
		// a new session means a new charge; the old intent no longer applies
		if sess.PaymentIntentID != "" || reactivation {
			o.PaymentIntentID = sess.PaymentIntentID
		}
		o.CheckoutURL = sess.CheckoutURL
		o.SessionExpiresAt = &expiresAt
		o.DestinationAccountID = destination
		if reactivation {
			o.ReactivatedAt = &now
			o.ReactivationCount++
		}
		o.UpdatedAt = now
		if err := r.Orders().Save(ctx, &o); err != nil {
			return fmt.Errorf("save checkout session: %w", err)
		}
		saved = o
		return nil
	})
	return saved, err
}

func (u *CheckoutUsecase) ownedOrder(ctx context.Context, orderID, buyerID string) (model.Order, error) {
	if buyerID == "" {
		return model.Order{}, unauthorized()
	}
	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && o.BuyerID != buyerID) {
		return model.Order{}, notFound(MsgOrderNotFound)
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("find order: %w", err)
	}
	return o, nil
}

func (u *CheckoutUsecase) listItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	items, err := u.orderItems.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return items, nil
}

func selectItems(items []CartItemView, productIDs []string) []CartItemView {
	if len(productIDs) == 0 {
		return items
	}
	want := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		want[id] = true
	}
	out := make([]CartItemView, 0, len(productIDs))
	for _, it := range items {
		if want[it.ProductID] {
			out = append(out, it)
		}
	}
	return out
}

// providerFailure logs the provider error and turns it into a BadRequest
// carrying the provider's message.
func providerFailure(ctx context.Context, orderID string, err error) error {
	var pe *payment.ProviderError
	if errors.As(err, &pe) {
		logging.FromContext(ctx).Warn("payment provider call failed",
			"order_id", orderID, "provider", pe.Provider, "op", pe.Op, "err", err)
		return NewHTTPErrorWithDetail(http.StatusBadRequest, MsgPaymentFailed, pe.Message)
	}
	if errors.Is(err, payment.ErrSplitUnsupported) {
		return badRequest(MsgPaymentSplitUnsupported)
	}
	logging.FromContext(ctx).Error("payment provider call failed", "order_id", orderID, "err", err)
	return NewHTTPErrorWithDetail(http.StatusBadRequest, MsgPaymentFailed, err.Error())
}

func toCheckoutSession(o model.Order) CheckoutSession {
	cs := CheckoutSession{
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		CheckoutURL:     o.CheckoutURL,
		SessionID:       o.PaymentSessionID,
		PaymentIntentID: o.PaymentIntentID,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
	}
	if o.SessionExpiresAt != nil {
		cs.ExpiresAt = *o.SessionExpiresAt
	}
	return cs
}
