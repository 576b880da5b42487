package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// AddressSnapshot is the denormalized shipping address frozen onto an order.
// It survives deletion or edits of the source address.
type AddressSnapshot struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	Country  string `json:"country"`
}

// Value stores the snapshot as JSON.
func (a AddressSnapshot) Value() (driver.Value, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address snapshot: %w", err)
	}
	return string(raw), nil
}

// Scan decodes a JSON snapshot from jsonb or text columns.
func (a *AddressSnapshot) Scan(value any) error {
	if value == nil {
		*a = AddressSnapshot{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("address snapshot: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*a = AddressSnapshot{}
		return nil
	}
	return json.Unmarshal(raw, a)
}
