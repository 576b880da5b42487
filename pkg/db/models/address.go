package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Address is an entry in a user's address book.
type Address struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	FullName  string    `gorm:"column:full_name;not null"`
	Phone     string    `gorm:"column:phone;not null"`
	Street    string    `gorm:"column:street;not null"`
	City      string    `gorm:"column:city;not null"`
	State     string    `gorm:"column:state;not null"`
	Country   string    `gorm:"column:country;not null"`
	IsDefault bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Address) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// Snapshot freezes the address for embedding into an order.
func (a Address) Snapshot() types.AddressSnapshot {
	return types.AddressSnapshot{
		FullName: a.FullName,
		Phone:    a.Phone,
		Street:   a.Street,
		City:     a.City,
		State:    a.State,
		Country:  a.Country,
	}
}
