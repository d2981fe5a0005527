package usecase_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"
	infrarepo "planmarket/internal/infra/repository"
	"planmarket/internal/testutil"
	"planmarket/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newCartUsecase(t *testing.T, gdb *gorm.DB, policy config.Policy, clock *testutil.FixedClock) *usecase.CartUsecase {
	t.Helper()
	fees := usecase.NewFeeEngine(infrarepo.NewFeeConfigGormRepository(gdb), policy)
	return usecase.NewCartUsecase(
		infrarepo.NewCartItemGormRepository(gdb),
		infrarepo.NewProductGormRepository(gdb),
		infrarepo.NewProfileGormRepository(gdb),
		fees,
		policy,
		usecase.RandomIDs{},
		clock,
	)
}

func TestCart_AddAndSummarize(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, gdb)
	seller := testutil.CreateSeller(t, gdb, "")
	p1 := testutil.CreateProduct(t, gdb, seller.ID, "30.00")
	p2 := testutil.CreateProduct(t, gdb, seller.ID, "19.99")

	uc := newCartUsecase(t, gdb, config.DefaultPolicy(), testutil.NewClock())

	view, err := uc.Add(ctx, buyer.ID, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, view.ProductID)
	assert.True(t, testutil.Money("30").Equal(view.PriceSnapshot))

	_, err = uc.Add(ctx, buyer.ID, p2.ID)
	require.NoError(t, err)

	cart, err := uc.Get(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.ItemCount)
	assert.True(t, testutil.Money("49.99").Equal(cart.Subtotal), "subtotal %s", cart.Subtotal)
	assert.True(t, testutil.Money("5.00").Equal(cart.PlatformFee), "fee %s", cart.PlatformFee)
	assert.True(t, testutil.Money("54.99").Equal(cart.Total))
	assert.Equal(t, "Workshop", cart.Items[0].StoreName)
	assert.Equal(t, "usd", cart.Currency)
}

func TestCart_AddRejections(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, gdb)
	seller := testutil.CreateSeller(t, gdb, "")
	approved := testutil.CreateProduct(t, gdb, seller.ID, "10.00")
	pending := testutil.CreateProduct(t, gdb, seller.ID, "10.00")
	require.NoError(t, gdb.Model(&model.Product{}).Where("id = ?", pending.ID).
		Update("status", model.ProductStatusPending).Error)

	uc := newCartUsecase(t, gdb, config.DefaultPolicy(), testutil.NewClock())

	_, err := uc.Add(ctx, "", approved.ID)
	assertHTTPError(t, err, http.StatusUnauthorized, usecase.MsgUnauthorized)

	_, err = uc.Add(ctx, buyer.ID, "missing")
	assertHTTPError(t, err, http.StatusNotFound, usecase.MsgProductNotFound)

	_, err = uc.Add(ctx, buyer.ID, pending.ID)
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgProductNotAvailable)

	_, err = uc.Add(ctx, buyer.ID, approved.ID)
	require.NoError(t, err)
	_, err = uc.Add(ctx, buyer.ID, approved.ID)
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgCartAlreadyInCart)

	// a seller account has no buyer profile
	_, err = uc.Add(ctx, seller.ID, approved.ID)
	assertHTTPError(t, err, http.StatusForbidden, usecase.MsgBuyerProfileRequired)
}

func TestCart_CannotBuyOwnProduct(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, gdb)
	own := testutil.CreateProduct(t, gdb, buyer.ID, "10.00")

	uc := newCartUsecase(t, gdb, config.DefaultPolicy(), testutil.NewClock())
	_, err := uc.Add(ctx, buyer.ID, own.ID)
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgCannotBuyOwnProduct)
}

func TestCart_LimitExceeded(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, gdb)
	seller := testutil.CreateSeller(t, gdb, "")

	policy := config.DefaultPolicy()
	policy.CartLimit = 2
	uc := newCartUsecase(t, gdb, policy, testutil.NewClock())

	for i := 0; i < 2; i++ {
		p := testutil.CreateProduct(t, gdb, seller.ID, "5.00")
		_, err := uc.Add(ctx, buyer.ID, p.ID)
		require.NoError(t, err)
	}
	extra := testutil.CreateProduct(t, gdb, seller.ID, "5.00")
	_, err := uc.Add(ctx, buyer.ID, extra.ID)
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgCartLimitExceeded)
}

func TestCart_GetPrunesUnavailableAndFlagsPriceChange(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, gdb)
	seller := testutil.CreateSeller(t, gdb, "")
	keep := testutil.CreateProduct(t, gdb, seller.ID, "10.00")
	gone := testutil.CreateProduct(t, gdb, seller.ID, "10.00")

	uc := newCartUsecase(t, gdb, config.DefaultPolicy(), testutil.NewClock())
	_, err := uc.Add(ctx, buyer.ID, keep.ID)
	require.NoError(t, err)
	_, err = uc.Add(ctx, buyer.ID, gone.ID)
	require.NoError(t, err)

	require.NoError(t, gdb.Model(&model.Product{}).Where("id = ?", keep.ID).Update("price", "12.00").Error)
	require.NoError(t, gdb.Model(&model.Product{}).Where("id = ?", gone.ID).
		Update("status", model.ProductStatusRejected).Error)

	cart, err := uc.Get(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.True(t, cart.Items[0].PriceChanged)
	assert.True(t, testutil.Money("12").Equal(cart.Subtotal))

	var rows int64
	require.NoError(t, gdb.Model(&model.CartItem{}).Where("user_id = ?", buyer.ID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestCart_SummarizeUsesCountryRule(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, gdb)
	seller := testutil.CreateSeller(t, gdb, "")
	p := testutil.CreateProduct(t, gdb, seller.ID, "100.00")
	de := "DE"
	require.NoError(t, gdb.Create(&model.FeeConfig{
		ID:       "fee-de",
		Name:     "DE platform",
		Type:     model.FeeTypePlatform,
		Country:  &de,
		Rate:     testutil.Money("7"),
		Priority: 5,
		IsActive: true,
	}).Error)

	uc := newCartUsecase(t, gdb, config.DefaultPolicy(), testutil.NewClock())
	_, err := uc.Add(ctx, buyer.ID, p.ID)
	require.NoError(t, err)

	local, err := uc.Summarize(ctx, buyer.ID, nil)
	require.NoError(t, err)
	assert.True(t, testutil.Money("10").Equal(local.PlatformFee))

	country := "de"
	german, err := uc.Summarize(ctx, buyer.ID, &country)
	require.NoError(t, err)
	assert.True(t, testutil.Money("7").Equal(german.PlatformFee), "fee %s", german.PlatformFee)
}

func TestCart_RemoveAndClear(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, gdb)
	other := testutil.CreateBuyer(t, gdb)
	seller := testutil.CreateSeller(t, gdb, "")
	p1 := testutil.CreateProduct(t, gdb, seller.ID, "10.00")
	p2 := testutil.CreateProduct(t, gdb, seller.ID, "10.00")

	uc := newCartUsecase(t, gdb, config.DefaultPolicy(), testutil.NewClock())
	v1, err := uc.Add(ctx, buyer.ID, p1.ID)
	require.NoError(t, err)
	_, err = uc.Add(ctx, buyer.ID, p2.ID)
	require.NoError(t, err)

	err = uc.Remove(ctx, other.ID, v1.ID)
	assertHTTPError(t, err, http.StatusNotFound, usecase.MsgCartItemNotFound)

	require.NoError(t, uc.Remove(ctx, buyer.ID, v1.ID))

	n, err := uc.Clear(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCart_MigrateReportsPerItem(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, gdb)
	seller := testutil.CreateSeller(t, gdb, "")
	inCart := testutil.CreateProduct(t, gdb, seller.ID, "10.00")
	fresh := testutil.CreateProduct(t, gdb, seller.ID, "10.00")
	overCap := testutil.CreateProduct(t, gdb, seller.ID, "10.00")

	policy := config.DefaultPolicy()
	policy.CartLimit = 2
	uc := newCartUsecase(t, gdb, policy, testutil.NewClock())
	_, err := uc.Add(ctx, buyer.ID, inCart.ID)
	require.NoError(t, err)

	summary, cart, err := uc.Sync(ctx, buyer.ID, []usecase.ExternalCartItem{
		{ProductID: inCart.ID},
		{ProductID: "missing"},
		{ProductID: fresh.ID},
		{ProductID: overCap.ID},
		{ProductID: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 2, summary.Failed)
	require.Len(t, summary.Results, 5)
	assert.Equal(t, usecase.MsgProductNotFound, summary.Results[1].Reason)
	assert.Equal(t, usecase.MsgCartLimitExceeded, summary.Results[3].Reason)
	assert.Equal(t, 2, cart.ItemCount)
}

func TestCart_SweepAbandoned(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, gdb)
	seller := testutil.CreateSeller(t, gdb, "")
	old := testutil.CreateProduct(t, gdb, seller.ID, "10.00")
	recent := testutil.CreateProduct(t, gdb, seller.ID, "10.00")

	clock := testutil.NewClock()
	policy := config.DefaultPolicy()
	uc := newCartUsecase(t, gdb, policy, clock)

	_, err := uc.Add(ctx, buyer.ID, old.ID)
	require.NoError(t, err)
	clock.Advance(policy.CartAbandonAfter)
	_, err = uc.Add(ctx, buyer.ID, recent.ID)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	n, err := uc.SweepAbandoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	cart, err := uc.Get(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, recent.ID, cart.Items[0].ProductID)
}
