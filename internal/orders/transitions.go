package orders

import (
	"fmt"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusShipping:        {enums.OrderStatusCompleted, enums.OrderStatusCancelled},
	enums.OrderStatusCompleted:       {enums.OrderStatusReturnRequested},
	enums.OrderStatusReturnRequested: {enums.OrderStatusReturned, enums.OrderStatusCompleted},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns INVALID_TRANSITION for any move outside the table.
func ValidateTransition(from, to enums.OrderStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return invalidTransition(from, to)
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("order cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}
