package products

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/clock"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (Service, *Repository, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	repo := NewRepository(db)
	svc, err := NewService(repo, clock.NewManual(testNow))
	require.NoError(t, err)
	return svc, repo, db
}

func seedSeller(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	user := models.User{Email: username + "@example.com", Username: username, PasswordHash: "x", Role: enums.RoleUser}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedProduct(t *testing.T, db *gorm.DB, sellerID uuid.UUID, price string, stock int, created time.Time) models.Product {
	t.Helper()
	product := models.Product{
		SellerID:    sellerID,
		Title:       "Vintage lamp",
		Description: "Brass",
		Price:       decimal.RequireFromString(price),
		Quantity:    stock,
		Status:      enums.ProductStatusAvailable,
		Images:      []string{"https://img.example.com/lamp.jpg"},
		CreatedAt:   created,
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

func TestGetProductReturnsSnapshotWithSeller(t *testing.T) {
	svc, _, db := newTestService(t)
	seller := seedSeller(t, db, "lampshop")
	product := seedProduct(t, db, seller.ID, "10.00", 3, testNow)

	snap, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, "lampshop", snap.SellerName)
	assert.Equal(t, 3, snap.Stock)
	assert.True(t, snap.Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, snap.Available())
	assert.Equal(t, []string{"https://img.example.com/lamp.jpg"}, snap.Images)
}

func TestGetProductNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.GetProduct(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeProductNotFound))
}

func TestGetProductsSkipsMissingIDs(t *testing.T) {
	svc, _, db := newTestService(t)
	seller := seedSeller(t, db, "s1")
	a := seedProduct(t, db, seller.ID, "1.00", 1, testNow)
	b := seedProduct(t, db, seller.ID, "2.00", 1, testNow)

	got, err := svc.GetProducts(context.Background(), []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "s1", got[b.ID].SellerName)
}

func TestListProductsPaginatesNewestFirst(t *testing.T) {
	svc, _, db := newTestService(t)
	seller := seedSeller(t, db, "pager")
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		p := seedProduct(t, db, seller.ID, "5.00", 1, testNow.Add(time.Duration(i)*time.Minute))
		ids = append(ids, p.ID)
	}
	sold := seedProduct(t, db, seller.ID, "5.00", 0, testNow.Add(time.Hour))
	require.NoError(t, db.Model(&sold).Update("status", enums.ProductStatusSold).Error)

	first, err := svc.ListProducts(context.Background(), pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Products, 2)
	assert.Equal(t, ids[2], first.Products[0].ID)
	assert.Equal(t, ids[1], first.Products[1].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListProducts(context.Background(), pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Products, 1)
	assert.Equal(t, ids[0], second.Products[0].ID)
	assert.Empty(t, second.NextCursor)
}

func TestListProductsRejectsBadCursor(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ListProducts(context.Background(), pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestCreateProductValidation(t *testing.T) {
	svc, _, db := newTestService(t)
	seller := seedSeller(t, db, "maker")
	past := testNow.Add(-time.Hour)

	cases := []struct {
		name  string
		input CreateProductInput
	}{
		{"missing title", CreateProductInput{Description: "d", Price: decimal.NewFromInt(1), Images: []string{"a"}}},
		{"missing images", CreateProductInput{Title: "t", Description: "d", Price: decimal.NewFromInt(1)}},
		{"zero price", CreateProductInput{Title: "t", Description: "d", Images: []string{"a"}}},
		{"auction in past", CreateProductInput{Title: "t", Description: "d", Price: decimal.NewFromInt(1), Images: []string{"a"}, IsAuction: true, AuctionEndTime: &past}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateProduct(context.Background(), seller.ID, tc.input)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestCreateProductDefaultsQuantityAndStatus(t *testing.T) {
	svc, _, db := newTestService(t)
	seller := seedSeller(t, db, "maker")

	dto, err := svc.CreateProduct(context.Background(), seller.ID, CreateProductInput{
		Title:       "  Chair ",
		Description: "Oak",
		Price:       decimal.RequireFromString("49.999"),
		Images:      []string{"https://img.example.com/chair.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Chair", dto.Title)
	assert.Equal(t, 1, dto.Quantity)
	assert.Equal(t, enums.ProductStatusAvailable, dto.Status)
	assert.True(t, dto.Price.Equal(decimal.RequireFromString("50")))
	assert.Equal(t, "maker", dto.SellerName)
}

func TestDecrementStockAndRestock(t *testing.T) {
	_, repo, db := newTestService(t)
	seller := seedSeller(t, db, "stock")
	product := seedProduct(t, db, seller.ID, "3.00", 2, testNow)
	ctx := context.Background()

	ok, err := repo.DecrementStock(ctx, product.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok, "cannot take more than available")

	ok, err = repo.DecrementStock(ctx, product.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Quantity)
	assert.Equal(t, enums.ProductStatusSold, reloaded.Status)

	require.NoError(t, repo.Restock(ctx, product.ID, 1))
	reloaded, err = repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Quantity)
	assert.Equal(t, enums.ProductStatusAvailable, reloaded.Status)
}
