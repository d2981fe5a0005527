package usecase_test

import (
	"context"
	"testing"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"
	"planmarket/internal/domain/payment"
	"planmarket/internal/infra/cache"
	infrarepo "planmarket/internal/infra/repository"
	"planmarket/internal/testutil"
	"planmarket/internal/usecase"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// market wires every usecase over one in-memory database with fake
// gateways, notifier and blob store.
type market struct {
	db       *gorm.DB
	clock    *testutil.FixedClock
	notifier *testutil.RecordingNotifier
	store    *testutil.MemFileStore
	stripe   *testutil.MockGateway
	paypal   *testutil.MockWallet
	policy   config.Policy

	cart      *usecase.CartUsecase
	checkout  *usecase.CheckoutUsecase
	sm        *usecase.OrderStateMachine
	orders    *usecase.OrderUsecase
	downloads *usecase.DownloadUsecase
	reviews   *usecase.ReviewUsecase
	webhooks  *usecase.WebhookUsecase
	admin     *usecase.AdminOrderUsecase
}

func newMarket(t *testing.T) *market {
	t.Helper()
	return newMarketWithPolicy(t, config.DefaultPolicy())
}

func newMarketWithPolicy(t *testing.T, policy config.Policy) *market {
	t.Helper()
	gdb := testutil.NewDB(t)
	m := &market{
		db:       gdb,
		clock:    testutil.NewClock(),
		notifier: &testutil.RecordingNotifier{},
		store:    testutil.NewMemFileStore(),
		stripe:   testutil.NewMockGateway(model.PaymentProviderStripe),
		paypal:   testutil.NewMockWallet(),
		policy:   policy,
	}
	ids := usecase.RandomIDs{}
	tx := infrarepo.NewTxManagerGorm(gdb)

	orderRepo := infrarepo.NewOrderGormRepository(gdb)
	orderItemRepo := infrarepo.NewOrderItemGormRepository(gdb)
	productRepo := infrarepo.NewProductGormRepository(gdb)
	profileRepo := infrarepo.NewProfileGormRepository(gdb)
	fileRepo := infrarepo.NewFileGormRepository(gdb)
	gateways := []payment.Gateway{m.stripe, m.paypal}

	fees := usecase.NewFeeEngine(infrarepo.NewFeeConfigGormRepository(gdb), policy)
	m.cart = usecase.NewCartUsecase(infrarepo.NewCartItemGormRepository(gdb), productRepo, profileRepo, fees, policy, ids, m.clock)
	m.sm = usecase.NewOrderStateMachine(tx, m.notifier, policy, ids, m.clock)
	m.checkout = usecase.NewCheckoutUsecase(tx, m.cart, orderRepo, orderItemRepo,
		infrarepo.NewBillingAddressGormRepository(gdb), profileRepo, gateways, m.sm,
		policy, "https://plans.example.com/", ids, m.clock)
	m.orders = usecase.NewOrderUsecase(orderRepo, orderItemRepo)
	m.downloads = usecase.NewDownloadUsecase(tx, infrarepo.NewDownloadTokenGormRepository(gdb),
		orderRepo, productRepo, fileRepo, m.store, policy, ids, m.clock)
	m.reviews = usecase.NewReviewUsecase(tx, infrarepo.NewReviewGormRepository(gdb),
		infrarepo.NewReviewFeedbackGormRepository(gdb), infrarepo.NewRatingGormRepository(gdb),
		orderRepo, orderItemRepo, fileRepo, m.notifier, policy, ids, m.clock)
	m.webhooks = usecase.NewWebhookUsecase(infrarepo.NewWebhookEventGormRepository(gdb), orderRepo,
		gateways, m.sm, cache.NewMemoryEventCache(100, policy.WebhookDedupTTL), ids, m.clock)
	m.admin = usecase.NewAdminOrderUsecase(orderRepo, orderItemRepo,
		infrarepo.NewAuditLogGormRepository(gdb), gateways, m.sm)
	return m
}

func (m *market) reload(t *testing.T, orderID string) model.Order {
	t.Helper()
	var o model.Order
	require.NoError(t, m.db.First(&o, "id = ?", orderID).Error)
	return o
}

func (m *market) tokens(t *testing.T, orderID string) []model.DownloadToken {
	t.Helper()
	var list []model.DownloadToken
	require.NoError(t, m.db.Where("order_id = ?", orderID).Order("created_at").Find(&list).Error)
	return list
}

func (m *market) count(t *testing.T, table interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, m.db.Model(table).Where(query, args...).Count(&n).Error)
	return n
}

// paidOrder runs a real MarkPaid so tokens and ledger rows exist.
func (m *market) paidOrder(t *testing.T, buyerID string, products ...model.Product) model.Order {
	t.Helper()
	o, _ := testutil.CreateOrder(t, m.db, buyerID, model.OrderStatusPending, products...)
	res, err := m.sm.MarkPaid(context.Background(), o.ID, "pi_"+o.ID[:8], model.SystemActor)
	require.NoError(t, err)
	require.True(t, res.Applied)
	return res.Order
}

func defaultBilling() *model.BillingDetails {
	return &model.BillingDetails{
		Name:       "Ada Buyer",
		Line1:      "1 Main St",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "us",
	}
}
