package usecase_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"planmarket/internal/domain/event"
	"planmarket/internal/domain/model"
	infrarepo "planmarket/internal/infra/repository"
	"planmarket/internal/testutil"
	"planmarket/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type productEnv struct {
	uc       *usecase.ProductUsecase
	store    *testutil.MemFileStore
	notifier *testutil.RecordingNotifier
}

func newProductEnv(gdb *gorm.DB) productEnv {
	env := productEnv{store: testutil.NewMemFileStore(), notifier: &testutil.RecordingNotifier{}}
	env.uc = usecase.NewProductUsecase(
		infrarepo.NewTxManagerGorm(gdb),
		infrarepo.NewProductGormRepository(gdb),
		infrarepo.NewProfileGormRepository(gdb),
		infrarepo.NewFileGormRepository(gdb),
		infrarepo.NewRatingGormRepository(gdb),
		env.store,
		env.notifier,
		usecase.RandomIDs{},
		testutil.NewClock(),
	)
	return env
}

func planInput(title, price, fileID string) usecase.ProductInput {
	return usecase.ProductInput{
		Title:       title,
		Description: "Cut list and drawings",
		Price:       d(price),
		Category:    " tables ",
		FileID:      fileID,
	}
}

func uploadPDF(t *testing.T, env productEnv, ownerID string) model.StoredFile {
	t.Helper()
	f, err := env.uc.UploadFile(context.Background(), ownerID, model.FileKindProductPDF,
		"dining-table.pdf", "application/pdf", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	return f
}

// =====================
// Create / Upload
// =====================

func TestProduct_CreateRequiresSeller(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	buyer := testutil.CreateBuyer(t, gdb)
	env := newProductEnv(gdb)

	_, err := env.uc.Create(ctx, buyer.ID, planInput("Table", "25.00", ""))
	assertHTTPError(t, err, http.StatusForbidden, usecase.MsgSellerProfileRequired)

	_, err = env.uc.Create(ctx, "", planInput("Table", "25.00", ""))
	assertHTTPError(t, err, http.StatusUnauthorized, usecase.MsgUnauthorized)
}

func TestProduct_CreateValidation(t *testing.T) {
	gdb := testutil.NewDB(t)
	seller := testutil.CreateSeller(t, gdb, "acct_1")
	env := newProductEnv(gdb)

	cases := map[string]usecase.ProductInput{
		"blank title":    planInput("   ", "25.00", ""),
		"long title":     planInput(strings.Repeat("x", 256), "25.00", ""),
		"zero price":     planInput("Table", "0", ""),
		"negative price": planInput("Table", "-1.00", ""),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.uc.Create(context.Background(), seller.ID, in)
			assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgInvalidInput)
		})
	}
}

func TestProduct_UploadFileRules(t *testing.T) {
	gdb := testutil.NewDB(t)
	seller := testutil.CreateSeller(t, gdb, "acct_1")
	env := newProductEnv(gdb)

	cases := map[string]struct {
		kind model.FileKind
		name string
		mime string
	}{
		"pdf with image mime": {model.FileKindProductPDF, "a.pdf", "image/png"},
		"image with pdf mime": {model.FileKindReviewImage, "a.png", "application/pdf"},
		"unknown kind":        {model.FileKind("AVATAR"), "a.png", "image/png"},
		"empty name":          {model.FileKindProductPDF, "  ", "application/pdf"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.uc.UploadFile(context.Background(), seller.ID, tc.kind, tc.name, tc.mime, strings.NewReader("x"))
			assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgFileInvalid)
		})
	}
	assert.Empty(t, env.store.Blobs)

	_, err := env.uc.UploadFile(context.Background(), "", model.FileKindProductPDF, "a.pdf", "application/pdf", strings.NewReader("x"))
	assertHTTPError(t, err, http.StatusUnauthorized, usecase.MsgUnauthorized)
}

func TestProduct_UploadThenCreatePending(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, gdb, "acct_1")
	env := newProductEnv(gdb)

	f := uploadPDF(t, env, seller.ID)
	assert.Equal(t, "product_pdf/"+seller.ID+"/"+f.ID+".pdf", f.Key)
	assert.Equal(t, int64(8), f.Size)
	assert.Equal(t, []byte("%PDF-1.7"), env.store.Blobs[f.Key])

	p, err := env.uc.Create(ctx, seller.ID, planInput(" Dining table ", "120.00", f.ID))
	require.NoError(t, err)
	assert.Equal(t, model.ProductStatusPending, p.Status)
	assert.Equal(t, "Dining table", p.Title)
	assert.Equal(t, "tables", p.Category)
	assert.Equal(t, f.Key, p.FileKey)

	mine, err := env.uc.ListMine(ctx, seller.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, p.ID, mine[0].ID)
}

func TestProduct_CreateRejectsForeignFile(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, gdb, "acct_1")
	other := testutil.CreateSeller(t, gdb, "acct_2")
	env := newProductEnv(gdb)

	foreign := uploadPDF(t, env, other.ID)
	image := testutil.CreateReviewImage(t, gdb, seller.ID)

	for name, fileID := range map[string]string{
		"other seller": foreign.ID,
		"review image": image.ID,
		"missing":      "nope",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.uc.Create(ctx, seller.ID, planInput("Table", "25.00", fileID))
			assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgFileNotFound)
		})
	}
}

// =====================
// Detail / Moderate
// =====================

func TestProduct_DetailHiddenUntilApproved(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, gdb, "acct_1")
	buyer := testutil.CreateBuyer(t, gdb)
	env := newProductEnv(gdb)

	p, err := env.uc.Create(ctx, seller.ID, planInput("Table", "25.00", uploadPDF(t, env, seller.ID).ID))
	require.NoError(t, err)

	_, err = env.uc.Detail(ctx, p.ID, buyer.ID)
	assertHTTPError(t, err, http.StatusNotFound, usecase.MsgProductNotFound)
	_, err = env.uc.Detail(ctx, p.ID, "")
	assertHTTPError(t, err, http.StatusNotFound, usecase.MsgProductNotFound)

	own, err := env.uc.Detail(ctx, p.ID, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductStatusPending, own.Status)
	assert.Equal(t, 0, own.Rating.TotalReviews)

	_, err = env.uc.Detail(ctx, "missing", seller.ID)
	assertHTTPError(t, err, http.StatusNotFound, usecase.MsgProductNotFound)
}

func TestProduct_ModerateApprove(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, gdb, "acct_1")
	admin := testutil.CreateAdmin(t, gdb)
	buyer := testutil.CreateBuyer(t, gdb)
	env := newProductEnv(gdb)

	p, err := env.uc.Create(ctx, seller.ID, planInput("Table", "25.00", uploadPDF(t, env, seller.ID).ID))
	require.NoError(t, err)

	got, err := env.uc.Moderate(ctx, admin.ID, p.ID, model.ProductStatusApproved, " looks good ")
	require.NoError(t, err)
	assert.Equal(t, model.ProductStatusApproved, got.Status)

	visible, err := env.uc.Detail(ctx, p.ID, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, visible.ID)

	var audits []model.AuditLog
	require.NoError(t, gdb.Where("resource_id = ?", p.ID).Find(&audits).Error)
	require.Len(t, audits, 1)
	assert.Equal(t, admin.ID, audits[0].ActorUserID)
	assert.Equal(t, model.AuditActionUpdateProductStatus, audits[0].Action)
	assert.JSONEq(t, `{"status":"PENDING"}`, audits[0].BeforeJSON)
	assert.JSONEq(t, `{"status":"APPROVED","note":"looks good"}`, audits[0].AfterJSON)

	require.Len(t, env.notifier.Sent, 1)
	n := env.notifier.Sent[0]
	assert.Equal(t, event.NotifyProductModerated, n.Type)
	assert.Equal(t, seller.ID, n.RecipientID)
	assert.Equal(t, "APPROVED", n.Data["status"])
}

func TestProduct_ModerateRejections(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, gdb, "acct_1")
	admin := testutil.CreateAdmin(t, gdb)
	env := newProductEnv(gdb)

	noFile, err := env.uc.Create(ctx, seller.ID, planInput("Table", "25.00", ""))
	require.NoError(t, err)

	_, err = env.uc.Moderate(ctx, admin.ID, noFile.ID, model.ProductStatusApproved, "")
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgDownloadFileMissing)

	_, err = env.uc.Moderate(ctx, admin.ID, noFile.ID, model.ProductStatusDraft, "")
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgInvalidStatus)

	_, err = env.uc.Moderate(ctx, admin.ID, "missing", model.ProductStatusRejected, "")
	assertHTTPError(t, err, http.StatusNotFound, usecase.MsgProductNotFound)

	// rejection needs no file
	got, err := env.uc.Moderate(ctx, admin.ID, noFile.ID, model.ProductStatusRejected, "no drawings")
	require.NoError(t, err)
	assert.Equal(t, model.ProductStatusRejected, got.Status)
	assert.Equal(t, []event.NotificationType{event.NotifyProductModerated}, env.notifier.Types())
}

func TestProduct_ModerateSurvivesNotifierFailure(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, gdb, "acct_1")
	admin := testutil.CreateAdmin(t, gdb)
	env := newProductEnv(gdb)
	env.notifier.Err = assert.AnError

	p, err := env.uc.Create(ctx, seller.ID, planInput("Table", "25.00", uploadPDF(t, env, seller.ID).ID))
	require.NoError(t, err)

	got, err := env.uc.Moderate(ctx, admin.ID, p.ID, model.ProductStatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, model.ProductStatusApproved, got.Status)
}

// =====================
// Listing
// =====================

func TestProduct_ListPublic(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, gdb, "acct_1")
	env := newProductEnv(gdb)

	cheap := testutil.CreateProduct(t, gdb, seller.ID, "12.00")
	mid := testutil.CreateProduct(t, gdb, seller.ID, "25.00")
	dear := testutil.CreateProduct(t, gdb, seller.ID, "40.00")
	_, err := env.uc.Create(ctx, seller.ID, planInput("Pending plan", "30.00", ""))
	require.NoError(t, err)

	out, err := env.uc.ListPublic(ctx, usecase.ListProductsInput{Page: 1, Limit: 10, Sort: "price_asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Total)
	require.Len(t, out.Items, 3)
	assert.Equal(t, []string{cheap.ID, mid.ID, dear.ID},
		[]string{out.Items[0].ID, out.Items[1].ID, out.Items[2].ID})

	minP, maxP := d("20.00"), d("30.00")
	out, err = env.uc.ListPublic(ctx, usecase.ListProductsInput{Page: 1, Limit: 10, MinPrice: &minP, MaxPrice: &maxP})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, mid.ID, out.Items[0].ID)

	out, err = env.uc.ListPublic(ctx, usecase.ListProductsInput{Page: 2, Limit: 2, Sort: "price_desc"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Total)
	require.Len(t, out.Items, 1)
	assert.Equal(t, cheap.ID, out.Items[0].ID)

	out, err = env.uc.ListPublic(ctx, usecase.ListProductsInput{Page: 1, Limit: 10, Q: "OAK", Category: "tables"})
	require.NoError(t, err)
	assert.Empty(t, out.Items)
}

func TestProduct_ListPublicValidation(t *testing.T) {
	gdb := testutil.NewDB(t)
	env := newProductEnv(gdb)
	neg := d("-1")
	lo, hi := d("50"), d("10")

	cases := map[string]usecase.ListProductsInput{
		"page zero":    {Page: 0, Limit: 10},
		"limit zero":   {Page: 1, Limit: 0},
		"limit 101":    {Page: 1, Limit: 101},
		"long query":   {Page: 1, Limit: 10, Q: strings.Repeat("q", 101)},
		"negative min": {Page: 1, Limit: 10, MinPrice: &neg},
		"negative max": {Page: 1, Limit: 10, MaxPrice: &neg},
		"min over max": {Page: 1, Limit: 10, MinPrice: &lo, MaxPrice: &hi},
		"bad sort":     {Page: 1, Limit: 10, Sort: "rating"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.uc.ListPublic(context.Background(), in)
			assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgInvalidInput)
		})
	}
}

func TestProduct_ListByStatus(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, gdb, "acct_1")
	env := newProductEnv(gdb)

	testutil.CreateProduct(t, gdb, seller.ID, "12.00")
	pending, err := env.uc.Create(ctx, seller.ID, planInput("Pending plan", "30.00", ""))
	require.NoError(t, err)

	out, err := env.uc.ListByStatus(ctx, model.ProductStatusPending, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Page)
	assert.Equal(t, 20, out.Limit)
	require.Len(t, out.Items, 1)
	assert.Equal(t, pending.ID, out.Items[0].ID)

	_, err = env.uc.ListByStatus(ctx, model.ProductStatus("ARCHIVED"), 1, 10)
	assertHTTPError(t, err, http.StatusBadRequest, usecase.MsgInvalidStatus)
}

// =====================
// Update / Delete
// =====================

func TestProduct_UpdateSendsBackToReview(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, gdb, "acct_1")
	other := testutil.CreateSeller(t, gdb, "acct_2")
	env := newProductEnv(gdb)
	p := testutil.CreateProduct(t, gdb, seller.ID, "12.00")

	_, err := env.uc.Update(ctx, other.ID, p.ID, planInput("Mine now", "1.00", ""))
	assertHTTPError(t, err, http.StatusNotFound, usecase.MsgProductNotFound)

	got, err := env.uc.Update(ctx, seller.ID, p.ID, planInput("Walnut bookshelf", "15.50", ""))
	require.NoError(t, err)
	assert.Equal(t, model.ProductStatusPending, got.Status)
	assert.True(t, decimal.RequireFromString("15.50").Equal(got.Price))
	assert.Equal(t, p.FileKey, got.FileKey)

	var stored model.Product
	require.NoError(t, gdb.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, model.ProductStatusPending, stored.Status)
	assert.Equal(t, "Walnut bookshelf", stored.Title)
}

func TestProduct_DeleteOwnOnly(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	seller := testutil.CreateSeller(t, gdb, "acct_1")
	other := testutil.CreateSeller(t, gdb, "acct_2")
	env := newProductEnv(gdb)
	p := testutil.CreateProduct(t, gdb, seller.ID, "12.00")

	assertHTTPError(t, env.uc.Delete(ctx, other.ID, p.ID), http.StatusNotFound, usecase.MsgProductNotFound)
	assertHTTPError(t, env.uc.Delete(ctx, "", p.ID), http.StatusUnauthorized, usecase.MsgUnauthorized)

	require.NoError(t, env.uc.Delete(ctx, seller.ID, p.ID))
	_, err := env.uc.Detail(ctx, p.ID, seller.ID)
	assertHTTPError(t, err, http.StatusNotFound, usecase.MsgProductNotFound)
}
