package testutil

import (
	"testing"
	"time"

	"planmarket/internal/domain/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Epoch is the fixed "now" used by FixedClock.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type FixedClock struct {
	T time.Time
}

func NewClock() *FixedClock { return &FixedClock{T: Epoch} }

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }

func Money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func CreateBuyer(t *testing.T, gdb *gorm.DB) model.User {
	t.Helper()
	u := model.User{
		ID:        uuid.NewString(),
		Email:     "buyer-" + uuid.NewString()[:8] + "@example.com",
		Password:  "x",
		Role:      model.RoleBuyer,
		IsActive:  true,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
	require.NoError(t, gdb.Create(&u).Error)
	require.NoError(t, gdb.Create(&model.BuyerProfile{
		ID:          uuid.NewString(),
		UserID:      u.ID,
		DisplayName: "Buyer",
		CreatedAt:   Epoch,
	}).Error)
	return u
}

// CreateSeller seeds a seller. A non-empty stripeAccount enables split payments.
func CreateSeller(t *testing.T, gdb *gorm.DB, stripeAccount string) model.User {
	t.Helper()
	u := model.User{
		ID:        uuid.NewString(),
		Email:     "seller-" + uuid.NewString()[:8] + "@example.com",
		Password:  "x",
		Role:      model.RoleSeller,
		IsActive:  true,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
	require.NoError(t, gdb.Create(&u).Error)
	require.NoError(t, gdb.Create(&model.SellerProfile{
		ID:              uuid.NewString(),
		UserID:          u.ID,
		StoreName:       "Workshop",
		DisplayName:     "Seller",
		StripeAccountID: stripeAccount,
		CreatedAt:       Epoch,
	}).Error)
	return u
}

func CreateAdmin(t *testing.T, gdb *gorm.DB) model.User {
	t.Helper()
	u := model.User{
		ID:        uuid.NewString(),
		Email:     "admin-" + uuid.NewString()[:8] + "@example.com",
		Password:  "x",
		Role:      model.RoleAdmin,
		IsActive:  true,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
	require.NoError(t, gdb.Create(&u).Error)
	return u
}

// CreateProduct seeds an APPROVED product with an uploaded PDF key.
func CreateProduct(t *testing.T, gdb *gorm.DB, sellerID, price string) model.Product {
	t.Helper()
	id := uuid.NewString()
	p := model.Product{
		ID:          id,
		SellerID:    sellerID,
		Title:       "Oak bookshelf " + id[:6],
		Description: "Plans",
		Price:       Money(price),
		Category:    "shelving",
		Status:      model.ProductStatusApproved,
		FileKey:     "product_pdf/" + sellerID + "/" + id + ".pdf",
		CreatedAt:   Epoch,
		UpdatedAt:   Epoch,
	}
	require.NoError(t, gdb.Create(&p).Error)
	require.NoError(t, gdb.Create(&model.StoredFile{
		ID:        uuid.NewString(),
		OwnerID:   sellerID,
		Key:       p.FileKey,
		Kind:      model.FileKindProductPDF,
		FileName:  "bookshelf.pdf",
		MimeType:  "application/pdf",
		Size:      4,
		CreatedAt: Epoch,
	}).Error)
	return p
}

func CreateReviewImage(t *testing.T, gdb *gorm.DB, ownerID string) model.StoredFile {
	t.Helper()
	id := uuid.NewString()
	f := model.StoredFile{
		ID:        id,
		OwnerID:   ownerID,
		Key:       "review_image/" + ownerID + "/" + id + ".png",
		Kind:      model.FileKindReviewImage,
		FileName:  "photo.png",
		MimeType:  "image/png",
		Size:      10,
		CreatedAt: Epoch,
	}
	require.NoError(t, gdb.Create(&f).Error)
	return f
}

// CreateOrder seeds an order in status with one item per product.
func CreateOrder(t *testing.T, gdb *gorm.DB, buyerID string, status model.OrderStatus, products ...model.Product) (model.Order, []model.OrderItem) {
	t.Helper()
	subtotal := decimal.Zero
	for _, p := range products {
		subtotal = subtotal.Add(p.Price)
	}
	fee := subtotal.Mul(decimal.NewFromInt(10)).Div(decimal.NewFromInt(100)).Round(2)
	o := model.Order{
		ID:               uuid.NewString(),
		OrderNumber:      "ORD-" + uuid.NewString()[:12],
		BuyerID:          buyerID,
		Status:           status,
		PaymentStatus:    model.PaymentStatusPending,
		PaymentMethod:    "card",
		PaymentProvider:  model.PaymentProviderStripe,
		Subtotal:         subtotal,
		PlatformFee:      fee,
		PlatformFeeRate:  decimal.NewFromInt(10),
		TotalAmount:      subtotal.Add(fee),
		SellerAmount:     subtotal,
		Currency:         "usd",
		BuyerEmail:       "buyer@example.com",
		PaymentSessionID: "cs_" + uuid.NewString()[:10],
		CreatedAt:        Epoch,
		UpdatedAt:        Epoch,
	}
	if status == model.OrderStatusCompleted {
		paid := Epoch
		o.PaidAt = &paid
		o.CompletedAt = &paid
		o.PaymentStatus = model.PaymentStatusSucceeded
		o.PaymentIntentID = "pi_" + uuid.NewString()[:10]
	}
	require.NoError(t, gdb.Create(&o).Error)

	items := make([]model.OrderItem, 0, len(products))
	for _, p := range products {
		items = append(items, model.OrderItem{
			ID:           uuid.NewString(),
			OrderID:      o.ID,
			ProductID:    p.ID,
			SellerID:     p.SellerID,
			ProductTitle: p.Title,
			Category:     p.Category,
			Price:        p.Price,
			Quantity:     1,
			CreatedAt:    Epoch,
		})
	}
	if len(items) > 0 {
		require.NoError(t, gdb.Create(&items).Error)
	}
	return o, items
}
