package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when checkout turns a cart into an order.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID       `json:"orderId"`
	BuyerID    uuid.UUID       `json:"buyerId"`
	ItemCount  int             `json:"itemCount"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	OrderDate  time.Time       `json:"orderDate"`
}

// OrderStatusChangedEvent is emitted for every order state transition.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"orderId"`
	BuyerID uuid.UUID         `json:"buyerId"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// ReturnRequestedEvent is emitted when a buyer opens a return.
type ReturnRequestedEvent struct {
	ReturnRequestID uuid.UUID `json:"returnRequestId"`
	OrderID         uuid.UUID `json:"orderId"`
	UserID          uuid.UUID `json:"userId"`
	Reason          string    `json:"reason"`
}

// ReturnResolvedEvent is emitted when an admin approves or rejects a return.
type ReturnResolvedEvent struct {
	ReturnRequestID uuid.UUID                 `json:"returnRequestId"`
	OrderID         uuid.UUID                 `json:"orderId"`
	Status          enums.ReturnRequestStatus `json:"status"`
}
