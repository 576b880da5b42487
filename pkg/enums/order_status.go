package enums

import "fmt"

// OrderStatus is the lifecycle state of a placed order.
//
//	shipping -> completed -> return_requested -> returned
//	shipping -> cancelled
//	return_requested -> completed (return rejected)
type OrderStatus string

const (
	OrderStatusShipping        OrderStatus = "shipping"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusReturnRequested OrderStatus = "return_requested"
	OrderStatusReturned        OrderStatus = "returned"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusShipping,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusReturnRequested,
	OrderStatusReturned,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
