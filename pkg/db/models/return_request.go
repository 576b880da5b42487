package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// ReturnRequest is the single return request allowed per order.
type ReturnRequest struct {
	ID         uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	UserID     uuid.UUID                 `gorm:"column:user_id;type:uuid;not null"`
	Reason     string                    `gorm:"column:reason;not null"`
	Status     enums.ReturnRequestStatus `gorm:"column:status;not null;default:'pending'"`
	ResolvedAt *time.Time                `gorm:"column:resolved_at"`
	CreatedAt  time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *ReturnRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
