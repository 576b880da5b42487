package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// PlaceOrderInput selects the shipping address for checkout.
type PlaceOrderInput struct {
	AddressID string `json:"addressId"`
}

// ReturnInput carries the buyer's reason for a return.
type ReturnInput struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (in ReturnInput) trimmed() string {
	return strings.TrimSpace(in.Reason)
}

// ResolveReturnInput is the admin decision on a pending return.
type ResolveReturnInput struct {
	Approve bool `json:"approve"`
}

type OrderItemDTO struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"productId"`
	SellerID  uuid.UUID       `json:"sellerId"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type ReturnRequestDTO struct {
	ID         uuid.UUID                 `json:"id"`
	OrderID    uuid.UUID                 `json:"orderId"`
	UserID     uuid.UUID                 `json:"userId"`
	Reason     string                    `json:"reason"`
	Status     enums.ReturnRequestStatus `json:"status"`
	CreatedAt  time.Time                 `json:"createdAt"`
	ResolvedAt *time.Time                `json:"resolvedAt,omitempty"`
}

type OrderDTO struct {
	ID              uuid.UUID             `json:"id"`
	BuyerID         uuid.UUID             `json:"buyerId"`
	AddressID       uuid.UUID             `json:"addressId"`
	OrderDate       time.Time             `json:"orderDate"`
	Status          enums.OrderStatus     `json:"status"`
	TotalPrice      decimal.Decimal       `json:"totalPrice"`
	ShippingAddress types.AddressSnapshot `json:"shippingAddress"`
	Items           []OrderItemDTO        `json:"items"`
	ReturnRequest   *ReturnRequestDTO     `json:"returnRequest,omitempty"`
}

func newReturnRequestDTO(r *models.ReturnRequest) *ReturnRequestDTO {
	if r == nil {
		return nil
	}
	return &ReturnRequestDTO{
		ID:         r.ID,
		OrderID:    r.OrderID,
		UserID:     r.UserID,
		Reason:     r.Reason,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		ResolvedAt: r.ResolvedAt,
	}
}

func newOrderDTO(order models.Order, items []models.OrderItem, ret *models.ReturnRequest) OrderDTO {
	dto := OrderDTO{
		ID:              order.ID,
		BuyerID:         order.BuyerID,
		AddressID:       order.AddressID,
		OrderDate:       order.OrderDate,
		Status:          order.Status,
		TotalPrice:      order.TotalPrice,
		ShippingAddress: order.ShippingAddress,
		Items:           make([]OrderItemDTO, 0, len(items)),
		ReturnRequest:   newReturnRequestDTO(ret),
	}
	for _, item := range items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
		})
	}
	return dto
}
