package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"planmarket/internal/domain/event"
	"planmarket/internal/domain/model"
	"planmarket/internal/domain/payment"
	repo "planmarket/internal/repository"
	"planmarket/internal/testutil"
	"planmarket/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// List / Detail
// =====================

func TestAdminOrders_ListValidation(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()

	_, err := m.admin.List(ctx, repo.AdminOrderListFilter{Page: 0, Limit: 20})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgInvalidInput)

	_, err = m.admin.List(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 101})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgInvalidInput)

	_, err = m.admin.List(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 20, Status: "SHIPPED"})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgInvalidStatus)
}

func TestAdminOrders_ListFilters(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "20.00")
	b1 := testutil.CreateBuyer(t, m.db)
	b2 := testutil.CreateBuyer(t, m.db)

	testutil.CreateOrder(t, m.db, b1.ID, model.OrderStatusPending, p)
	m.paidOrder(t, b1.ID, p)
	m.paidOrder(t, b2.ID, p)

	all, err := m.admin.List(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)

	completed, err := m.admin.List(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 20, Status: string(model.OrderStatusCompleted)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), completed.Total)
	for _, o := range completed.Items {
		assert.Equal(t, string(model.OrderStatusCompleted), o.Status)
		require.Len(t, o.Items, 1)
	}

	mine, err := m.admin.List(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 20, BuyerID: &b2.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), mine.Total)
	assert.Equal(t, b2.ID, mine.Items[0].BuyerID)
}

func TestAdminOrders_Detail(t *testing.T) {
	m := newMarket(t)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "20.00")
	buyer := testutil.CreateBuyer(t, m.db)
	o, _ := testutil.CreateOrder(t, m.db, buyer.ID, model.OrderStatusPending, p)

	out, err := m.admin.Detail(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, out.OrderNumber)
	require.Len(t, out.Items, 1)
	assert.Equal(t, p.ID, out.Items[0].ProductID)

	_, err = m.admin.Detail(context.Background(), "missing")
	assertHTTPError(t, err, http.StatusNotFound, usecase.MsgOrderNotFound)
}

// =====================
// Refund
// =====================

func TestAdminOrders_RefundFull(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "20.00")
	buyer := testutil.CreateBuyer(t, m.db)
	admin := testutil.CreateAdmin(t, m.db)
	o := m.paidOrder(t, buyer.ID, p)

	m.stripe.On("Refund", mock.Anything, mock.MatchedBy(func(r payment.RefundRequest) bool {
		return r.PaymentRef == o.PaymentIntentID && r.Amount.IsZero() && r.Reason == "file was corrupt"
	})).Return(payment.RefundResult{RefundID: "re_1", Status: "succeeded"}, nil).Once()

	out, err := m.admin.Refund(ctx, admin.ID, o.ID, usecase.AdminRefundInput{Reason: "  file was corrupt "})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, out.PaymentStatus)
	assert.Equal(t, string(model.OrderStatusCompleted), out.Status)

	for _, tok := range m.tokens(t, o.ID) {
		assert.False(t, tok.IsActive)
	}
	assert.Contains(t, m.notifier.Types(), event.NotifyOrderRefunded)

	trail, err := m.admin.AuditTrail(ctx, o.ID)
	require.NoError(t, err)
	var byAdmin int
	for _, l := range trail {
		if l.ActorUserID == admin.ID {
			byAdmin++
			assert.Contains(t, l.AfterJSON, model.PaymentStatusRefunded)
		}
	}
	assert.Equal(t, 1, byAdmin)

	// a second refund is refused before reaching the processor
	_, err = m.admin.Refund(ctx, admin.ID, o.ID, usecase.AdminRefundInput{})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgOrderNotRefundable)
	m.stripe.AssertExpectations(t)
}

func TestAdminOrders_RefundPartialUsesProcessorAmount(t *testing.T) {
	m := newMarket(t)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "20.00")
	buyer := testutil.CreateBuyer(t, m.db)
	o := m.paidOrder(t, buyer.ID, p)

	m.stripe.On("Refund", mock.Anything, mock.Anything).
		Return(payment.RefundResult{RefundID: "re_2", Status: "pending", Amount: d("5.00")}, nil).Once()

	_, err := m.admin.Refund(context.Background(), "admin", o.ID, usecase.AdminRefundInput{Amount: d("5")})
	require.NoError(t, err)

	var tx model.Transaction
	require.NoError(t, m.db.Where("order_id = ? AND type = ?", o.ID, model.TransactionRefund).First(&tx).Error)
	assert.True(t, d("5").Equal(tx.Amount), "refund ledger %s", tx.Amount)
	assert.Equal(t, "re_2", tx.ExternalRef)
}

func TestAdminOrders_RefundInSteps(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "20.00")
	buyer := testutil.CreateBuyer(t, m.db)
	o := m.paidOrder(t, buyer.ID, p) // 22.00 charged

	m.stripe.On("Refund", mock.Anything, mock.MatchedBy(func(r payment.RefundRequest) bool {
		return r.Amount.Equal(d("5"))
	})).Return(payment.RefundResult{RefundID: "re_a", Status: "succeeded"}, nil).Once()
	m.stripe.On("Refund", mock.Anything, mock.MatchedBy(func(r payment.RefundRequest) bool {
		return r.Amount.Equal(d("7"))
	})).Return(payment.RefundResult{RefundID: "re_b", Status: "succeeded"}, nil).Once()

	out, err := m.admin.Refund(ctx, "admin", o.ID, usecase.AdminRefundInput{Amount: d("5")})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPartiallyRefunded, out.PaymentStatus)
	out, err = m.admin.Refund(ctx, "admin", o.ID, usecase.AdminRefundInput{Amount: d("7")})
	require.NoError(t, err)
	assert.True(t, d("12").Equal(out.RefundedAmount))
	for _, tk := range m.tokens(t, o.ID) {
		assert.True(t, tk.IsActive)
	}
	assert.Equal(t, int64(2), m.count(t, &model.Transaction{}, "order_id = ? AND type = ?", o.ID, model.TransactionRefund))

	// only the 10.00 left can be refunded
	_, err = m.admin.Refund(ctx, "admin", o.ID, usecase.AdminRefundInput{Amount: d("10.01")})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgInvalidInput)

	m.stripe.On("Refund", mock.Anything, mock.MatchedBy(func(r payment.RefundRequest) bool {
		return r.Amount.IsZero()
	})).Return(payment.RefundResult{RefundID: "re_c", Status: "succeeded", Amount: d("10")}, nil).Once()
	out, err = m.admin.Refund(ctx, "admin", o.ID, usecase.AdminRefundInput{})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, out.PaymentStatus)
	for _, tk := range m.tokens(t, o.ID) {
		assert.False(t, tk.IsActive)
	}
	m.stripe.AssertExpectations(t)
}

func TestAdminOrders_RefundRejected(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "20.00")
	buyer := testutil.CreateBuyer(t, m.db)

	pending, _ := testutil.CreateOrder(t, m.db, buyer.ID, model.OrderStatusPending, p)
	_, err := m.admin.Refund(ctx, "admin", pending.ID, usecase.AdminRefundInput{})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgOrderNotRefundable)

	paid := m.paidOrder(t, buyer.ID, p)
	_, err = m.admin.Refund(ctx, "admin", paid.ID, usecase.AdminRefundInput{Amount: d("1000")})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgInvalidInput)

	_, err = m.admin.Refund(ctx, "admin", paid.ID, usecase.AdminRefundInput{Amount: decimal.NewFromInt(-1)})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgInvalidInput)

	_, err = m.admin.Refund(ctx, "admin", "missing", usecase.AdminRefundInput{})
	assertHTTPError(t, err, http.StatusNotFound, usecase.MsgOrderNotFound)

	m.stripe.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestAdminOrders_RefundProviderFailureKeepsOrder(t *testing.T) {
	m := newMarket(t)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "20.00")
	buyer := testutil.CreateBuyer(t, m.db)
	o := m.paidOrder(t, buyer.ID, p)

	m.stripe.On("Refund", mock.Anything, mock.Anything).Return(payment.RefundResult{}, &payment.ProviderError{
		Provider: model.PaymentProviderStripe,
		Op:       "refund",
		Message:  "Charge has already been refunded.",
		Err:      errors.New("stripe 400"),
	}).Once()

	_, err := m.admin.Refund(context.Background(), "admin", o.ID, usecase.AdminRefundInput{})
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, usecase.MsgPaymentFailed, he.Message)
	assert.Equal(t, "Charge has already been refunded.", he.Detail)

	assert.Equal(t, model.PaymentStatusSucceeded, m.reload(t, o.ID).PaymentStatus)
	for _, tok := range m.tokens(t, o.ID) {
		assert.True(t, tok.IsActive)
	}
}

// =====================
// Cancel
// =====================

func TestAdminOrders_Cancel(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "20.00")
	buyer := testutil.CreateBuyer(t, m.db)
	admin := testutil.CreateAdmin(t, m.db)

	pending, _ := testutil.CreateOrder(t, m.db, buyer.ID, model.OrderStatusPending, p)
	out, err := m.admin.Cancel(ctx, admin.ID, pending.ID, "")
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusCancelled), out.Status)
	assert.NotNil(t, out.CancelledAt)

	paid := m.paidOrder(t, buyer.ID, p)
	_, err = m.admin.Cancel(ctx, admin.ID, paid.ID, "fraud")
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgOrderNotPending)
}
