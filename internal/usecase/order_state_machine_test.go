package usecase_test

import (
	"context"
	"testing"
	"time"

	"planmarket/internal/domain/event"
	"planmarket/internal/domain/model"
	"planmarket/internal/infra/notify"
	infrarepo "planmarket/internal/infra/repository"
	"planmarket/internal/testutil"
	"planmarket/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_MarkPaidCompletesOrder(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, m.db)
	s1 := testutil.CreateSeller(t, m.db, "")
	s2 := testutil.CreateSeller(t, m.db, "")
	p1 := testutil.CreateProduct(t, m.db, s1.ID, "30.00")
	p2 := testutil.CreateProduct(t, m.db, s2.ID, "20.00")
	unrelated := testutil.CreateProduct(t, m.db, s2.ID, "5.00")
	for _, p := range []model.Product{p1, p2, unrelated} {
		_, err := m.cart.Add(ctx, buyer.ID, p.ID)
		require.NoError(t, err)
	}
	o, _ := testutil.CreateOrder(t, m.db, buyer.ID, model.OrderStatusPending, p1, p2)

	res, err := m.sm.MarkPaid(ctx, o.ID, "pi_123", model.SystemActor)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.OrderStatusCompleted, res.Order.Status)
	assert.Equal(t, model.PaymentStatusSucceeded, res.Order.PaymentStatus)
	assert.Equal(t, "pi_123", res.Order.PaymentIntentID)
	require.NotNil(t, res.Order.PaidAt)
	require.NotNil(t, res.Order.CompletedAt)

	tokens := m.tokens(t, o.ID)
	require.Len(t, tokens, 2)
	assert.NotEqual(t, tokens[0].Token, tokens[1].Token)
	for _, tk := range tokens {
		assert.Equal(t, m.policy.DownloadLimit, tk.DownloadLimit)
		assert.True(t, tk.IsActive)
		assert.True(t, testutil.Epoch.Add(m.policy.DownloadTTL).Equal(tk.ExpiresAt))
	}

	// only the purchased products leave the cart
	cart, err := m.cart.Get(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, unrelated.ID, cart.Items[0].ProductID)

	assert.Equal(t, int64(2), m.count(t, &model.Transaction{}, "order_id = ? AND type = ?", o.ID, model.TransactionSale))
	assert.Equal(t, int64(1), m.count(t, &model.Transaction{}, "order_id = ? AND type = ?", o.ID, model.TransactionPlatformFee))
	assert.Equal(t, int64(1), m.count(t, &model.AuditLog{}, "resource_id = ?", o.ID))

	types := m.notifier.Types()
	assert.Contains(t, types, event.NotifyOrderPaid)
	sold := 0
	for _, typ := range types {
		if typ == event.NotifyProductSold {
			sold++
		}
	}
	assert.Equal(t, 2, sold)
}

func TestStateMachine_MarkPaidIsIdempotent(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, m.db)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "10.00")
	o := m.paidOrder(t, buyer.ID, p)
	sent := len(m.notifier.Sent)

	res, err := m.sm.MarkPaid(ctx, o.ID, "pi_other", model.SystemActor)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, model.OrderStatusCompleted, res.Order.Status)
	assert.NotEqual(t, "pi_other", res.Order.PaymentIntentID)
	assert.Len(t, m.tokens(t, o.ID), 1)
	assert.Equal(t, int64(1), m.count(t, &model.Transaction{}, "order_id = ? AND type = ?", o.ID, model.TransactionSale))
	assert.Len(t, m.notifier.Sent, sent)
}

func TestStateMachine_MarkPaidOnCancelledIsRefundDue(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, m.db)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "10.00")
	o, _ := testutil.CreateOrder(t, m.db, buyer.ID, model.OrderStatusPending, p)

	_, err := m.sm.Cancel(ctx, o.ID, buyer.ID, "changed my mind")
	require.NoError(t, err)

	res, err := m.sm.MarkPaid(ctx, o.ID, "pi_late", model.SystemActor)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.RefundDue)

	saved := m.reload(t, o.ID)
	assert.Equal(t, model.OrderStatusCancelled, saved.Status)
	assert.Equal(t, model.PaymentStatusCapturedAfterClose, saved.PaymentStatus)
	assert.Equal(t, "pi_late", saved.PaymentIntentID)
	require.NotNil(t, saved.PaidAt)
	assert.Empty(t, m.tokens(t, o.ID))
	assert.Equal(t, int64(0), m.count(t, &model.Transaction{}, "order_id = ?", o.ID))
	assert.NotContains(t, m.notifier.Types(), event.NotifyOrderPaid)

	// a redelivery still asks for the refund until it is recorded
	res, err = m.sm.MarkPaid(ctx, o.ID, "pi_late", model.SystemActor)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.True(t, res.RefundDue)

	_, err = m.sm.MarkRefunded(ctx, o.ID, usecase.RefundUpdate{Ref: "re_late"}, model.SystemActor)
	require.NoError(t, err)
	res, err = m.sm.MarkPaid(ctx, o.ID, "pi_late", model.SystemActor)
	require.NoError(t, err)
	assert.False(t, res.RefundDue)
	assert.Equal(t, model.PaymentStatusRefunded, m.reload(t, o.ID).PaymentStatus)
}

func TestStateMachine_PaymentFailure(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, m.db)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "10.00")

	pending, _ := testutil.CreateOrder(t, m.db, buyer.ID, model.OrderStatusPending, p)
	res, err := m.sm.MarkPaymentFailed(ctx, pending.ID, model.SystemActor)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.OrderStatusPending, res.Order.Status)
	assert.Equal(t, model.PaymentStatusFailed, res.Order.PaymentStatus)

	// still retryable, and a repeat changes nothing
	res, err = m.sm.MarkPaymentFailed(ctx, pending.ID, model.SystemActor)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	settling, _ := testutil.CreateOrder(t, m.db, buyer.ID, model.OrderStatusPending, p)
	res, err = m.sm.MarkProcessing(ctx, settling.ID, "pi_async", model.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, res.Order.Status)

	res, err = m.sm.MarkPaymentFailed(ctx, settling.ID, model.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFailed, res.Order.Status)
}

func TestStateMachine_ProcessingThenPaid(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, m.db)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "10.00")
	o, _ := testutil.CreateOrder(t, m.db, buyer.ID, model.OrderStatusPending, p)

	_, err := m.sm.MarkProcessing(ctx, o.ID, "pi_async", model.SystemActor)
	require.NoError(t, err)
	res, err := m.sm.MarkPaid(ctx, o.ID, "", model.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, res.Order.Status)
	assert.Equal(t, "pi_async", res.Order.PaymentIntentID)
}

func TestStateMachine_CancelOnlyPending(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, m.db)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "10.00")
	o := m.paidOrder(t, buyer.ID, p)

	_, err := m.sm.Cancel(ctx, o.ID, buyer.ID, "too late")
	assertErrContains(t, err, "order.notPending")
}

func TestStateMachine_RefundDeactivatesTokens(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, m.db)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "10.00")
	o := m.paidOrder(t, buyer.ID, p)

	res, err := m.sm.MarkRefunded(ctx, o.ID, usecase.RefundUpdate{}, "admin-1")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.OrderStatusCompleted, res.Order.Status)
	assert.Equal(t, model.PaymentStatusRefunded, res.Order.PaymentStatus)
	assert.True(t, o.TotalAmount.Equal(res.Order.RefundedAmount))
	for _, tk := range m.tokens(t, o.ID) {
		assert.False(t, tk.IsActive)
	}

	var refund model.Transaction
	require.NoError(t, m.db.Where("order_id = ? AND type = ?", o.ID, model.TransactionRefund).First(&refund).Error)
	assert.True(t, o.TotalAmount.Equal(refund.Amount))

	res, err = m.sm.MarkRefunded(ctx, o.ID, usecase.RefundUpdate{}, "admin-1")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, int64(1), m.count(t, &model.Transaction{}, "order_id = ? AND type = ?", o.ID, model.TransactionRefund))
}

func TestStateMachine_PartialRefundsEachGetALedgerRow(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, m.db)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "10.00")
	o := m.paidOrder(t, buyer.ID, p) // 10.00 + 1.00 fee

	res, err := m.sm.MarkRefunded(ctx, o.ID, usecase.RefundUpdate{Ref: "re_1", Amount: d("5")}, "admin-1")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.PaymentStatusPartiallyRefunded, res.Order.PaymentStatus)

	// the provider reports the running total on the second refund
	res, err = m.sm.MarkRefunded(ctx, o.ID, usecase.RefundUpdate{Ref: "re_2", Amount: d("4"), RefundedTotal: d("9")}, model.SystemActor)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.PaymentStatusPartiallyRefunded, res.Order.PaymentStatus)
	assert.True(t, d("9").Equal(res.Order.RefundedAmount))
	for _, tk := range m.tokens(t, o.ID) {
		assert.True(t, tk.IsActive)
	}

	// the same refund seen again, and a stale running total, change nothing
	res, err = m.sm.MarkRefunded(ctx, o.ID, usecase.RefundUpdate{Ref: "re_2", Amount: d("4")}, model.SystemActor)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	res, err = m.sm.MarkRefunded(ctx, o.ID, usecase.RefundUpdate{Ref: "evt_old", RefundedTotal: d("5")}, model.SystemActor)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	var rows []model.Transaction
	require.NoError(t, m.db.Where("order_id = ? AND type = ?", o.ID, model.TransactionRefund).Order("amount desc").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.True(t, d("5").Equal(rows[0].Amount))
	assert.Equal(t, "re_1", rows[0].ExternalRef)
	assert.True(t, d("4").Equal(rows[1].Amount))

	// the rest of the charge
	res, err = m.sm.MarkRefunded(ctx, o.ID, usecase.RefundUpdate{Ref: "re_3"}, "admin-1")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.PaymentStatusRefunded, res.Order.PaymentStatus)
	assert.True(t, o.TotalAmount.Equal(res.Order.RefundedAmount))
	for _, tk := range m.tokens(t, o.ID) {
		assert.False(t, tk.IsActive)
	}
	var last model.Transaction
	require.NoError(t, m.db.Where("order_id = ? AND external_ref = ?", o.ID, "re_3").First(&last).Error)
	assert.True(t, d("2").Equal(last.Amount), "remaining %s", last.Amount)
}

func TestStateMachine_RefundUnpaidRejected(t *testing.T) {
	m := newMarket(t)
	buyer := testutil.CreateBuyer(t, m.db)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "10.00")
	o, _ := testutil.CreateOrder(t, m.db, buyer.ID, model.OrderStatusPending, p)

	_, err := m.sm.MarkRefunded(context.Background(), o.ID, usecase.RefundUpdate{}, "admin-1")
	assertErrContains(t, err, "order.notRefundable")
}

func TestStateMachine_ExpireSessionOnlyForCurrentSession(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, m.db)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "10.00")
	o, _ := testutil.CreateOrder(t, m.db, buyer.ID, model.OrderStatusPending, p)

	res, err := m.sm.ExpireSession(ctx, o.ID, "cs_replaced", model.SystemActor)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, model.OrderStatusPending, m.reload(t, o.ID).Status)
	assert.NotContains(t, m.notifier.Types(), event.NotifyOrderCancelled)

	res, err = m.sm.ExpireSession(ctx, o.ID, o.PaymentSessionID, model.SystemActor)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	saved := m.reload(t, o.ID)
	assert.Equal(t, model.OrderStatusCancelled, saved.Status)
	assert.Equal(t, "expired", saved.CancellationReason)

	// already closed
	res, err = m.sm.ExpireSession(ctx, o.ID, o.PaymentSessionID, model.SystemActor)
	require.NoError(t, err)
	assert.False(t, res.Applied)
}

func TestStateMachine_CancelledPaymentOnlyForCurrentCharge(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, m.db)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "10.00")
	o, _ := testutil.CreateOrder(t, m.db, buyer.ID, model.OrderStatusPending, p)

	res, err := m.sm.MarkPaymentCancelled(ctx, o.ID, "pi_from_old_session", model.SystemActor)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, model.OrderStatusPending, m.reload(t, o.ID).Status)

	res, err = m.sm.MarkPaymentCancelled(ctx, o.ID, o.PaymentSessionID, model.SystemActor)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.OrderStatusFailed, res.Order.Status)
}

// sleepyNotifier takes delay per delivery, like a broker that is down.
type sleepyNotifier struct {
	testutil.RecordingNotifier
	delay time.Duration
}

func (s *sleepyNotifier) Notify(ctx context.Context, n event.Notification) error {
	time.Sleep(s.delay)
	return s.RecordingNotifier.Notify(ctx, n)
}

func TestStateMachine_SlowNotifierDoesNotDelayTransitions(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	slow := &sleepyNotifier{delay: 300 * time.Millisecond}
	dispatcher := notify.NewDispatcher(slow, 16, time.Second)
	sm := usecase.NewOrderStateMachine(infrarepo.NewTxManagerGorm(m.db), dispatcher, m.policy, usecase.RandomIDs{}, m.clock)

	buyer := testutil.CreateBuyer(t, m.db)
	s1 := testutil.CreateSeller(t, m.db, "")
	s2 := testutil.CreateSeller(t, m.db, "")
	p1 := testutil.CreateProduct(t, m.db, s1.ID, "10.00")
	p2 := testutil.CreateProduct(t, m.db, s2.ID, "12.00")
	o, _ := testutil.CreateOrder(t, m.db, buyer.ID, model.OrderStatusPending, p1, p2)

	start := time.Now()
	res, err := sm.MarkPaid(ctx, o.ID, "pi_fast", model.SystemActor)
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Less(t, elapsed, slow.delay, "transition waited for notifications")

	// buyer plus one per seller, all delivered once the queue drains
	require.NoError(t, dispatcher.Close())
	assert.Len(t, slow.Types(), 3)
}

func TestStateMachine_DisputeLifecycle(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, m.db)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "10.00")
	o := m.paidOrder(t, buyer.ID, p)

	res, err := m.sm.OpenDispute(ctx, o.ID, testutil.Money("0"), model.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDisputed, res.Order.Status)
	assert.False(t, m.tokens(t, o.ID)[0].IsActive)
	assert.Equal(t, int64(1), m.count(t, &model.Transaction{}, "order_id = ? AND type = ?", o.ID, model.TransactionChargeback))

	res, err = m.sm.CloseDispute(ctx, o.ID, true, model.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, res.Order.Status)
	assert.Equal(t, model.PaymentStatusDisputeWon, res.Order.PaymentStatus)
	assert.True(t, m.tokens(t, o.ID)[0].IsActive)
}

func TestStateMachine_LostDisputeStaysDisputed(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, m.db)
	seller := testutil.CreateSeller(t, m.db, "")
	p := testutil.CreateProduct(t, m.db, seller.ID, "10.00")
	o := m.paidOrder(t, buyer.ID, p)

	_, err := m.sm.OpenDispute(ctx, o.ID, testutil.Money("10"), model.SystemActor)
	require.NoError(t, err)
	res, err := m.sm.CloseDispute(ctx, o.ID, false, model.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDisputed, res.Order.Status)
	assert.Equal(t, model.PaymentStatusDisputeLost, res.Order.PaymentStatus)
	assert.False(t, m.tokens(t, o.ID)[0].IsActive)
}
