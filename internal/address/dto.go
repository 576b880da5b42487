package address

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// AddressInput creates an address. Every text field is required.
type AddressInput struct {
	FullName  string `json:"fullName"`
	Phone     string `json:"phone"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Country   string `json:"country"`
	IsDefault bool   `json:"isDefault"`
}

// UpdateAddressInput is a partial update; nil fields are left untouched.
type UpdateAddressInput struct {
	FullName  *string `json:"fullName"`
	Phone     *string `json:"phone"`
	Street    *string `json:"street"`
	City      *string `json:"city"`
	State     *string `json:"state"`
	Country   *string `json:"country"`
	IsDefault *bool   `json:"isDefault"`
}

type AddressDTO struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"fullName"`
	Phone     string    `json:"phone"`
	Street    string    `json:"street"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Country   string    `json:"country"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func FromModel(a models.Address) AddressDTO {
	return AddressDTO{
		ID:        a.ID,
		FullName:  a.FullName,
		Phone:     a.Phone,
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		Country:   a.Country,
		IsDefault: a.IsDefault,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (in AddressInput) trimmed() AddressInput {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Street = strings.TrimSpace(in.Street)
	in.City = strings.TrimSpace(in.City)
	in.State = strings.TrimSpace(in.State)
	in.Country = strings.TrimSpace(in.Country)
	return in
}

func (in AddressInput) missing() []string {
	fields := []struct {
		name  string
		value string
	}{
		{"fullName", in.FullName},
		{"phone", in.Phone},
		{"street", in.Street},
		{"city", in.City},
		{"state", in.State},
		{"country", in.Country},
	}
	var out []string
	for _, f := range fields {
		if f.value == "" {
			out = append(out, f.name)
		}
	}
	return out
}

// columns returns the non-nil text fields keyed by column name, plus the
// names of any that were provided but blank.
func (in UpdateAddressInput) columns() (map[string]any, []string) {
	values := map[string]any{}
	var blank []string
	set := func(column, field string, v *string) {
		if v == nil {
			return
		}
		trimmed := strings.TrimSpace(*v)
		if trimmed == "" {
			blank = append(blank, field)
			return
		}
		values[column] = trimmed
	}
	set("full_name", "fullName", in.FullName)
	set("phone", "phone", in.Phone)
	set("street", "street", in.Street)
	set("city", "city", in.City)
	set("state", "state", in.State)
	set("country", "country", in.Country)
	return values, blank
}
