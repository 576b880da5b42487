package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// ItemInput is the add/update payload. ProductID stays a string so the
// service can distinguish a missing id from a malformed one.
type ItemInput struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

// CartDTO is the cart as returned to callers. A user without a cart gets
// the zero-valued form with an empty Items slice.
type CartDTO struct {
	ID           *uuid.UUID       `json:"id,omitempty"`
	Status       enums.CartStatus `json:"status"`
	Items        []LineDTO        `json:"items"`
	TotalItems   int              `json:"totalItems"`
	TotalAmount  decimal.Decimal  `json:"totalAmount"`
	LastActivity *time.Time       `json:"lastActivity,omitempty"`
}

// LineDTO joins a stored line with the live product and seller.
type LineDTO struct {
	ProductID     uuid.UUID            `json:"productId"`
	SellerID      uuid.UUID            `json:"sellerId"`
	SellerName    string               `json:"sellerName,omitempty"`
	Title         string               `json:"title,omitempty"`
	Images        []string             `json:"images,omitempty"`
	Quantity      int                  `json:"quantity"`
	PriceAtTime   decimal.Decimal      `json:"priceAtTime"`
	LineTotal     decimal.Decimal      `json:"lineTotal"`
	CurrentPrice  *decimal.Decimal     `json:"currentPrice,omitempty"`
	Stock         *int                 `json:"stock,omitempty"`
	ProductStatus enums.ProductStatus  `json:"productStatus,omitempty"`
	PriceChanged  bool                 `json:"priceChanged"`
	Status        enums.CartLineStatus `json:"status"`
	AddedAt       time.Time            `json:"addedAt"`
}

func emptyCart() *CartDTO {
	return &CartDTO{
		Status:      enums.CartStatusActive,
		Items:       []LineDTO{},
		TotalAmount: decimal.Zero,
	}
}

func newCartDTO(cart *models.Cart, catalog map[uuid.UUID]products.Snapshot) *CartDTO {
	id := cart.ID
	activity := cart.LastActivity
	dto := &CartDTO{
		ID:           &id,
		Status:       cart.Status,
		Items:        make([]LineDTO, 0, len(cart.Lines)),
		TotalItems:   cart.TotalItems,
		TotalAmount:  cart.TotalAmount,
		LastActivity: &activity,
	}
	for _, line := range cart.Lines {
		item := LineDTO{
			ProductID:   line.ProductID,
			SellerID:    line.SellerID,
			Quantity:    line.Quantity,
			PriceAtTime: line.PriceAtTime,
			LineTotal:   line.PriceAtTime.Mul(decimal.NewFromInt(int64(line.Quantity))),
			Status:      line.Status,
			AddedAt:     line.AddedAt,
		}
		if snap, ok := catalog[line.ProductID]; ok {
			price := snap.Price
			stock := snap.Stock
			item.SellerName = snap.SellerName
			item.Title = snap.Title
			item.Images = snap.Images
			item.CurrentPrice = &price
			item.Stock = &stock
			item.ProductStatus = snap.Status
			item.PriceChanged = !price.Equal(line.PriceAtTime)
		}
		dto.Items = append(dto.Items, item)
	}
	return dto
}
