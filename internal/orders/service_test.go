package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/address"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/clock"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/retry"
)

type fixture struct {
	svc     Service
	carts   cart.Service
	db      *gorm.DB
	clock   *clock.Manual
	buyer   models.User
	shop    models.User
	admin   models.User
	address models.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	clk := clock.NewManual(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))

	productRepo := products.NewRepository(conn)
	catalog, err := products.NewService(productRepo, clk)
	require.NoError(t, err)
	cartRepo := cart.NewRepository(conn)
	carts, err := cart.NewService(cart.ServiceParams{
		Repo:    cartRepo,
		Tx:      client,
		Catalog: catalog,
		Clock:   clk,
		Retry:   retry.Disabled(),
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Carts:     cartRepo,
		Addresses: address.NewRepository(conn),
		Products:  productRepo,
		Inventory: products.NewInventory(productRepo),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Tx:        client,
		Clock:     clk,
		Retry:     retry.Disabled(),
	})
	require.NoError(t, err)

	f := &fixture{svc: svc, carts: carts, db: conn, clock: clk}
	f.buyer = f.user(t, "buyer", enums.RoleUser)
	f.shop = f.user(t, "shop", enums.RoleUser)
	f.admin = f.user(t, "admin", enums.RoleAdmin)
	f.address = f.addressFor(t, f.buyer)
	return f
}

func (f *fixture) user(t *testing.T, name string, role enums.Role) models.User {
	t.Helper()
	u := models.User{Email: name + "@example.com", Username: name, PasswordHash: "x", Role: role}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) addressFor(t *testing.T, u models.User) models.Address {
	t.Helper()
	a := models.Address{
		UserID:    u.ID,
		FullName:  "Ada Buyer",
		Phone:     "555-0100",
		Street:    "1 Main St",
		City:      "Springfield",
		State:     "IL",
		Country:   "US",
		IsDefault: true,
	}
	require.NoError(t, f.db.Create(&a).Error)
	return a
}

func (f *fixture) product(t *testing.T, title, price string, stock int) models.Product {
	t.Helper()
	p := models.Product{
		SellerID:    f.shop.ID,
		Title:       title,
		Description: "Good condition",
		Price:       decimal.RequireFromString(price),
		Quantity:    stock,
		Status:      enums.ProductStatusAvailable,
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) addToCart(t *testing.T, p models.Product, n int) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), f.buyer.ID, cart.ItemInput{ProductID: p.ID.String(), Quantity: &n})
	require.NoError(t, err)
}

// placed checks out a single-item cart and returns the new order.
func (f *fixture) placed(t *testing.T) *OrderDTO {
	t.Helper()
	p := f.product(t, "Lamp", "15.00", 5)
	f.addToCart(t, p, 1)
	order, err := f.svc.PlaceOrder(context.Background(), f.buyer.ID, PlaceOrderInput{AddressID: f.address.ID.String()})
	require.NoError(t, err)
	return order
}

func (f *fixture) completed(t *testing.T) *OrderDTO {
	t.Helper()
	order := f.placed(t)
	done, err := f.svc.CompleteOrder(context.Background(), f.admin.ID, order.ID.String())
	require.NoError(t, err)
	return done
}

func (f *fixture) events(t *testing.T, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.db.Where("event_type = ?", eventType).Find(&rows).Error)
	return rows
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) models.Product {
	t.Helper()
	var p models.Product
	require.NoError(t, f.db.First(&p, "id = ?", id).Error)
	return p
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, pkgerrors.CodeOf(err), "unexpected error: %v", err)
}

func TestPlaceOrderConvertsActiveLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	camera := f.product(t, "Camera", "10.00", 3)
	lens := f.product(t, "Lens", "25.50", 1)
	tripod := f.product(t, "Tripod", "40.00", 2)
	f.addToCart(t, camera, 2)
	f.addToCart(t, lens, 1)
	f.addToCart(t, tripod, 1)
	require.NoError(t, f.db.Model(&models.CartLine{}).
		Where("product_id = ?", tripod.ID).
		Update("status", enums.CartLineStatusSavedForLater).Error)

	order, err := f.svc.PlaceOrder(ctx, f.buyer.ID, PlaceOrderInput{AddressID: f.address.ID.String()})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusShipping, order.Status)
	assert.True(t, order.TotalPrice.Equal(decimal.RequireFromString("45.50")), "total %s", order.TotalPrice)
	assert.Equal(t, f.address.ID, order.AddressID)
	assert.Equal(t, "Springfield", order.ShippingAddress.City)
	require.Len(t, order.Items, 2)
	byProduct := map[uuid.UUID]OrderItemDTO{}
	for _, item := range order.Items {
		byProduct[item.ProductID] = item
	}
	assert.Equal(t, 2, byProduct[camera.ID].Quantity)
	assert.True(t, byProduct[camera.ID].LineTotal.Equal(decimal.RequireFromString("20")))
	assert.Equal(t, "Lens", byProduct[lens.ID].Title)

	assert.Equal(t, 1, f.stock(t, camera.ID).Quantity)
	soldOut := f.stock(t, lens.ID)
	assert.Equal(t, 0, soldOut.Quantity)
	assert.Equal(t, enums.ProductStatusSold, soldOut.Status)
	assert.Equal(t, 2, f.stock(t, tripod.ID).Quantity)

	remaining, err := f.carts.GetCart(ctx, f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, remaining.Items, 1)
	assert.Equal(t, tripod.ID, remaining.Items[0].ProductID)
	assert.Equal(t, 1, remaining.TotalItems)
	assert.True(t, remaining.TotalAmount.Equal(decimal.RequireFromString("40")))

	created := f.events(t, enums.EventOrderCreated)
	require.Len(t, created, 1)
	assert.Equal(t, order.ID, created[0].AggregateID)
}

func TestPlaceOrderPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranger := f.user(t, "stranger", enums.RoleUser)
	foreign := f.addressFor(t, stranger)

	_, err := f.svc.PlaceOrder(ctx, f.buyer.ID, PlaceOrderInput{AddressID: f.address.ID.String()})
	requireCode(t, err, pkgerrors.CodeEmptyCart)

	_, err = f.svc.PlaceOrder(ctx, f.buyer.ID, PlaceOrderInput{AddressID: "nope"})
	requireCode(t, err, pkgerrors.CodeInvalidAddressID)

	_, err = f.svc.PlaceOrder(ctx, f.buyer.ID, PlaceOrderInput{})
	requireCode(t, err, pkgerrors.CodeMissingFields)

	f.addToCart(t, f.product(t, "Mug", "4.00", 3), 1)
	_, err = f.svc.PlaceOrder(ctx, f.buyer.ID, PlaceOrderInput{AddressID: foreign.ID.String()})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.svc.PlaceOrder(ctx, uuid.Nil, PlaceOrderInput{AddressID: f.address.ID.String()})
	requireCode(t, err, pkgerrors.CodeInvalidUserID)
}

func TestPlaceOrderRollsBackOnStockShortfall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plenty := f.product(t, "Plate", "3.00", 10)
	scarce := f.product(t, "Vase", "30.00", 2)
	f.addToCart(t, plenty, 4)
	f.addToCart(t, scarce, 2)
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", scarce.ID).Update("quantity", 1).Error)

	_, err := f.svc.PlaceOrder(ctx, f.buyer.ID, PlaceOrderInput{AddressID: f.address.ID.String()})
	requireCode(t, err, pkgerrors.CodeInsufficientStock)

	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, 10, f.stock(t, plenty.ID).Quantity)
	unchanged, err := f.carts.GetCart(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Len(t, unchanged.Items, 2)
	assert.Empty(t, f.events(t, enums.EventOrderCreated))
}

func TestReturnRequestIsUniquePerOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.completed(t)

	got, err := f.svc.RequestReturn(ctx, f.buyer.ID, order.ID.String(), ReturnInput{Reason: "  arrived broken "})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReturnRequested, got.Status)
	require.NotNil(t, got.ReturnRequest)
	assert.Equal(t, "arrived broken", got.ReturnRequest.Reason)
	assert.Equal(t, enums.ReturnRequestStatusPending, got.ReturnRequest.Status)

	_, err = f.svc.RequestReturn(ctx, f.buyer.ID, order.ID.String(), ReturnInput{Reason: "again"})
	requireCode(t, err, pkgerrors.CodeDuplicateReturnRequest)

	var count int64
	require.NoError(t, f.db.Model(&models.ReturnRequest{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.Len(t, f.events(t, enums.EventReturnRequested), 1)
}

func TestRequestReturnRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placed(t)
	other := f.user(t, "other", enums.RoleUser)

	_, err := f.svc.RequestReturn(ctx, f.buyer.ID, order.ID.String(), ReturnInput{Reason: "changed my mind"})
	requireCode(t, err, pkgerrors.CodeOrderNotEligible)

	_, err = f.svc.RequestReturn(ctx, other.ID, order.ID.String(), ReturnInput{Reason: "mine now"})
	requireCode(t, err, pkgerrors.CodeOrderNotFound)

	_, err = f.svc.RequestReturn(ctx, f.buyer.ID, uuid.NewString(), ReturnInput{Reason: "ghost"})
	requireCode(t, err, pkgerrors.CodeOrderNotFound)

	_, err = f.svc.RequestReturn(ctx, f.buyer.ID, "order-1", ReturnInput{Reason: "bad id"})
	requireCode(t, err, pkgerrors.CodeInvalidOrderID)

	_, err = f.svc.RequestReturn(ctx, f.buyer.ID, order.ID.String(), ReturnInput{Reason: "   "})
	requireCode(t, err, pkgerrors.CodeMissingFields)

	_, err = f.svc.RequestReturn(ctx, uuid.Nil, order.ID.String(), ReturnInput{Reason: "x"})
	requireCode(t, err, pkgerrors.CodeInvalidUserID)

	unchanged, err := f.svc.GetOrder(ctx, f.buyer.ID, order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipping, unchanged.Status)
	assert.Nil(t, unchanged.ReturnRequest)
}

func TestResolveReturn(t *testing.T) {
	t.Run("approve", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		order := f.completed(t)
		_, err := f.svc.RequestReturn(ctx, f.buyer.ID, order.ID.String(), ReturnInput{Reason: "wrong size"})
		require.NoError(t, err)

		got, err := f.svc.ResolveReturn(ctx, f.admin.ID, order.ID.String(), ResolveReturnInput{Approve: true})
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusReturned, got.Status)
		require.NotNil(t, got.ReturnRequest)
		assert.Equal(t, enums.ReturnRequestStatusApproved, got.ReturnRequest.Status)
		assert.NotNil(t, got.ReturnRequest.ResolvedAt)

		_, err = f.svc.ResolveReturn(ctx, f.admin.ID, order.ID.String(), ResolveReturnInput{Approve: false})
		requireCode(t, err, pkgerrors.CodeStateConflict)
		assert.Len(t, f.events(t, enums.EventReturnResolved), 1)
	})

	t.Run("reject keeps the single request", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		order := f.completed(t)
		_, err := f.svc.RequestReturn(ctx, f.buyer.ID, order.ID.String(), ReturnInput{Reason: "scratched"})
		require.NoError(t, err)

		got, err := f.svc.ResolveReturn(ctx, f.admin.ID, order.ID.String(), ResolveReturnInput{Approve: false})
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusCompleted, got.Status)
		assert.Equal(t, enums.ReturnRequestStatusRejected, got.ReturnRequest.Status)

		_, err = f.svc.RequestReturn(ctx, f.buyer.ID, order.ID.String(), ReturnInput{Reason: "please"})
		requireCode(t, err, pkgerrors.CodeDuplicateReturnRequest)
	})

	t.Run("no request", func(t *testing.T) {
		f := newFixture(t)
		order := f.completed(t)
		_, err := f.svc.ResolveReturn(context.Background(), f.admin.ID, order.ID.String(), ResolveReturnInput{Approve: true})
		requireCode(t, err, pkgerrors.CodeNotFound)
	})
}

func TestCancelOrderRestocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Chair", "80.00", 1)
	f.addToCart(t, p, 1)
	order, err := f.svc.PlaceOrder(ctx, f.buyer.ID, PlaceOrderInput{AddressID: f.address.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, enums.ProductStatusSold, f.stock(t, p.ID).Status)

	other := f.user(t, "other", enums.RoleUser)
	_, err = f.svc.CancelOrder(ctx, other.ID, order.ID.String())
	requireCode(t, err, pkgerrors.CodeOrderNotFound)

	got, err := f.svc.CancelOrder(ctx, f.buyer.ID, order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, got.Status)
	restocked := f.stock(t, p.ID)
	assert.Equal(t, 1, restocked.Quantity)
	assert.Equal(t, enums.ProductStatusAvailable, restocked.Status)

	_, err = f.svc.CancelOrder(ctx, f.buyer.ID, order.ID.String())
	requireCode(t, err, pkgerrors.CodeInvalidTransition)
	assert.Equal(t, 1, f.stock(t, p.ID).Quantity, "a repeated cancel must not restock again")
	_, err = f.svc.CompleteOrder(ctx, f.admin.ID, order.ID.String())
	requireCode(t, err, pkgerrors.CodeInvalidTransition)
}

func TestCompleteOrderOnlyFromShipping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.completed(t)
	assert.Equal(t, enums.OrderStatusCompleted, order.Status)

	_, err := f.svc.CompleteOrder(ctx, f.admin.ID, order.ID.String())
	requireCode(t, err, pkgerrors.CodeInvalidTransition)

	_, err = f.svc.RequestReturn(ctx, f.buyer.ID, order.ID.String(), ReturnInput{Reason: "late"})
	require.NoError(t, err)
	_, err = f.svc.CompleteOrder(ctx, f.admin.ID, order.ID.String())
	requireCode(t, err, pkgerrors.CodeInvalidTransition)

	changed := f.events(t, enums.EventOrderStatusChanged)
	assert.Len(t, changed, 2)
}

func TestGetOrderHistoryNewestFirstWithSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.svc.GetOrderHistory(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	first := f.completed(t)
	f.clock.Advance(time.Hour)
	second := f.placed(t)
	_, err = f.svc.RequestReturn(ctx, f.buyer.ID, first.ID.String(), ReturnInput{Reason: "dented"})
	require.NoError(t, err)

	require.NoError(t, f.db.Delete(&models.Address{}, "id = ?", f.address.ID).Error)

	history, err := f.svc.GetOrderHistory(ctx, f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
	assert.Nil(t, history[0].ReturnRequest)
	require.NotNil(t, history[1].ReturnRequest)
	for _, order := range history {
		assert.Equal(t, "1 Main St", order.ShippingAddress.Street)
		require.Len(t, order.Items, 1)
		assert.True(t, order.Items[0].LineTotal.Equal(decimal.RequireFromString("15")))
	}

	other := f.user(t, "other", enums.RoleUser)
	_, err = f.svc.GetOrder(ctx, other.ID, first.ID.String())
	requireCode(t, err, pkgerrors.CodeOrderNotFound)
	theirs, err := f.svc.GetOrderHistory(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func TestOrderItemsKeepCartOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	titles := []string{"Radio", "Atlas", "Mirror", "Bowl", "Kettle"}
	for _, title := range titles {
		f.addToCart(t, f.product(t, title, "3.00", 4), 1)
	}
	placed, err := f.svc.PlaceOrder(ctx, f.buyer.ID, PlaceOrderInput{AddressID: f.address.ID.String()})
	require.NoError(t, err)

	itemTitles := func(items []OrderItemDTO) []string {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.Title)
		}
		return out
	}
	assert.Equal(t, titles, itemTitles(placed.Items))

	detail, err := f.svc.GetOrder(ctx, f.buyer.ID, placed.ID.String())
	require.NoError(t, err)
	assert.Equal(t, titles, itemTitles(detail.Items))

	history, err := f.svc.GetOrderHistory(ctx, f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, titles, itemTitles(history[0].Items))
}
