package enums

import "fmt"

// CartLineStatus marks whether a line participates in checkout.
type CartLineStatus string

const (
	CartLineStatusActive        CartLineStatus = "active"
	CartLineStatusSavedForLater CartLineStatus = "saved_for_later"
	CartLineStatusUnavailable   CartLineStatus = "unavailable"
)

var validCartLineStatuses = []CartLineStatus{
	CartLineStatusActive,
	CartLineStatusSavedForLater,
	CartLineStatusUnavailable,
}

func (s CartLineStatus) String() string {
	return string(s)
}

func (s CartLineStatus) IsValid() bool {
	for _, candidate := range validCartLineStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseCartLineStatus(value string) (CartLineStatus, error) {
	for _, candidate := range validCartLineStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart line status %q", value)
}
