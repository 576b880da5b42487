package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	cartsvc "github.com/angelmondragon/marketplace-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// itemRequest keeps quantity raw so a fractional or non-numeric value is
// reported as INVALID_QUANTITY instead of a body decoding error.
type itemRequest struct {
	ProductID string          `json:"productId"`
	Quantity  json.RawMessage `json:"quantity"`
}

func (req itemRequest) toInput() (cartsvc.ItemInput, error) {
	input := cartsvc.ItemInput{ProductID: req.ProductID}
	raw := bytes.TrimSpace(req.Quantity)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return input, nil
	}
	var qty int
	if err := json.Unmarshal(raw, &qty); err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeInvalidQuantity, err, "quantity must be a whole number").
			WithDetails(map[string]any{"quantity": string(raw)})
	}
	input.Quantity = &qty
	return input, nil
}

// CartFetch returns the caller's cart joined with live product data.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.GetCart(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}

func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return itemHandler(svc, cartsvc.Service.AddItem, logg)
}

func CartUpdateQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return itemHandler(svc, cartsvc.Service.UpdateQuantity, logg)
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.RemoveItem(r.Context(), userID, chi.URLParam(r, "productId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.Clear(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}

type itemMutation func(svc cartsvc.Service, ctx context.Context, userID uuid.UUID, input cartsvc.ItemInput) (*cartsvc.CartDTO, error)

func itemHandler(svc cartsvc.Service, apply itemMutation, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body itemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := apply(svc, r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}
