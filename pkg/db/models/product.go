package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Product is a seller listing. Quantity is the live stock count.
type Product struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID       uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	Title          string              `gorm:"column:title;not null"`
	Description    string              `gorm:"column:description;not null"`
	Price          decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity       int                 `gorm:"column:quantity;not null"`
	Status         enums.ProductStatus `gorm:"column:status;not null;default:'available'"`
	IsAuction      bool                `gorm:"column:is_auction;not null;default:false"`
	AuctionEndTime *time.Time          `gorm:"column:auction_end_time"`
	Images         []string            `gorm:"column:images;type:jsonb;serializer:json"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
