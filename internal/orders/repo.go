package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/repo"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Repository persists orders, their items and return requests.
type Repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.Bind(tx)}
}

// Create inserts the order together with its items.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	return r.base.DB(ctx).Create(order).Error
}

// LockOrder loads the order row for update. Items are not loaded.
func (r *Repository) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.base.ForUpdate(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.base.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByBuyer returns the buyer's orders newest first.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.base.DB(ctx).
		Where("buyer_id = ?", buyerID).
		Order("order_date DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

// ItemsByOrders groups the items of orderIDs by order.
func (r *Repository) ItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]models.OrderItem, error) {
	out := make(map[uuid.UUID][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	var rows []models.OrderItem
	if err := r.base.DB(ctx).Where("order_id IN ?", orderIDs).Order("position ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.OrderID] = append(out[row.OrderID], row)
	}
	return out, nil
}

// UpdateStatus moves the order from one status to another. It reports false
// when the order was no longer in from.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error) {
	res := r.base.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindReturnByOrder returns nil without error when the order has no return.
func (r *Repository) FindReturnByOrder(ctx context.Context, orderID uuid.UUID) (*models.ReturnRequest, error) {
	var ret models.ReturnRequest
	err := r.base.DB(ctx).Where("order_id = ?", orderID).First(&ret).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *Repository) CreateReturn(ctx context.Context, ret *models.ReturnRequest) error {
	return r.base.DB(ctx).Create(ret).Error
}

// ResolveReturn closes a pending return. It reports false when the request
// was already resolved.
func (r *Repository) ResolveReturn(ctx context.Context, id uuid.UUID, status enums.ReturnRequestStatus, at time.Time) (bool, error) {
	res := r.base.DB(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status = ?", id, enums.ReturnRequestStatusPending).
		Updates(map[string]any{"status": status, "resolved_at": at, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReturnsByOrders maps order ids to their return request.
func (r *Repository) ReturnsByOrders(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]models.ReturnRequest, error) {
	out := make(map[uuid.UUID]models.ReturnRequest, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	var rows []models.ReturnRequest
	if err := r.base.DB(ctx).Where("order_id IN ?", orderIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.OrderID] = row
	}
	return out, nil
}
