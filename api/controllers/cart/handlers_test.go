package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	cartsvc "github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

type stubCartService struct {
	lastUser    uuid.UUID
	lastInput   cartsvc.ItemInput
	lastRemoved string
	err         error
}

func (s *stubCartService) result() (*cartsvc.CartDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &cartsvc.CartDTO{Status: enums.CartStatusActive, Items: []cartsvc.LineDTO{}, TotalAmount: decimal.Zero}, nil
}

func (s *stubCartService) AddItem(_ context.Context, userID uuid.UUID, input cartsvc.ItemInput) (*cartsvc.CartDTO, error) {
	s.lastUser, s.lastInput = userID, input
	return s.result()
}

func (s *stubCartService) UpdateQuantity(_ context.Context, userID uuid.UUID, input cartsvc.ItemInput) (*cartsvc.CartDTO, error) {
	s.lastUser, s.lastInput = userID, input
	return s.result()
}

func (s *stubCartService) RemoveItem(_ context.Context, userID uuid.UUID, productID string) (*cartsvc.CartDTO, error) {
	s.lastUser, s.lastRemoved = userID, productID
	return s.result()
}

func (s *stubCartService) Clear(_ context.Context, userID uuid.UUID) (*cartsvc.CartDTO, error) {
	s.lastUser = userID
	return s.result()
}

func (s *stubCartService) GetCart(_ context.Context, userID uuid.UUID) (*cartsvc.CartDTO, error) {
	s.lastUser = userID
	return s.result()
}

func newRouter(svc cartsvc.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/cart", CartFetch(svc, nil))
	r.Delete("/cart", CartClear(svc, nil))
	r.Post("/cart/items", CartAddItem(svc, nil))
	r.Put("/cart/items", CartUpdateQuantity(svc, nil))
	r.Delete("/cart/items/{productId}", CartRemoveItem(svc, nil))
	return r
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestCartAddItemPassesInput(t *testing.T) {
	svc := &stubCartService{}
	userID := uuid.New()
	productID := uuid.NewString()

	req := authed(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":"`+productID+`","quantity":3}`)), userID)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, svc.lastUser)
	assert.Equal(t, productID, svc.lastInput.ProductID)
	require.NotNil(t, svc.lastInput.Quantity)
	assert.Equal(t, 3, *svc.lastInput.Quantity)
}

func TestCartAddItemLeavesQuantityUnsetWhenOmitted(t *testing.T) {
	svc := &stubCartService{}
	req := authed(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":"p"}`)), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.lastInput.Quantity)
}

func TestCartAddItemRejectsFractionalQuantity(t *testing.T) {
	svc := &stubCartService{}
	req := authed(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":"p","quantity":2.5}`)), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeInvalidQuantity), errorCode(t, rec))
	assert.Equal(t, uuid.Nil, svc.lastUser)
}

func TestCartRemoveItemUsesPathParam(t *testing.T) {
	svc := &stubCartService{}
	req := authed(httptest.NewRequest(http.MethodDelete, "/cart/items/abc", nil), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", svc.lastRemoved)
}

func TestCartMapsServiceErrors(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeItemNotFound, "item not found in cart")}
	req := authed(httptest.NewRequest(http.MethodPut, "/cart/items", strings.NewReader(`{"productId":"p","quantity":1}`)), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeItemNotFound), errorCode(t, rec))
}

func TestCartRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubCartService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
