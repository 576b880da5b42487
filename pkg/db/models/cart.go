package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Cart is the single cart owned by a user. Totals are derived from Lines and
// rewritten on every mutation; Version guards concurrent writers.
type Cart struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	UserID       uuid.UUID        `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Status       enums.CartStatus `gorm:"column:status;not null;default:'active'"`
	TotalItems   int              `gorm:"column:total_items;not null;default:0"`
	TotalAmount  decimal.Decimal  `gorm:"column:total_amount;type:numeric(12,2);not null;default:0"`
	Version      int              `gorm:"column:version;not null;default:0"`
	LastActivity time.Time        `gorm:"column:last_activity;not null"`
	Lines        []CartLine       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CartLine is one product entry in a cart. PriceAtTime is captured when the
// line is first added and never refreshed from the catalog.
type CartLine struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	CartID      uuid.UUID            `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_cart_lines_cart_product,priority:1"`
	ProductID   uuid.UUID            `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_cart_lines_cart_product,priority:2"`
	SellerID    uuid.UUID            `gorm:"column:seller_id;type:uuid;not null"`
	Quantity    int                  `gorm:"column:quantity;not null"`
	PriceAtTime decimal.Decimal      `gorm:"column:price_at_time;type:numeric(12,2);not null"`
	Status      enums.CartLineStatus `gorm:"column:status;not null;default:'active'"`
	Position    int                  `gorm:"column:position;not null"`
	AddedAt     time.Time            `gorm:"column:added_at;not null"`
}

func (l *CartLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
