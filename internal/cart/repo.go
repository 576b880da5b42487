package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/internal/repo"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// ErrStaleCart is returned by SaveTotals when the stored version moved on.
var ErrStaleCart = errors.New("cart version changed")

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	base repo.Base
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	return &Repository{base: r.base.Bind(tx)}
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// FindByUser loads the user's cart with lines in insertion order.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.base.DB(ctx).
		Preload("Lines", orderedLines).
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// LockByUser loads the cart row under a row lock, then its lines.
func (r *Repository) LockByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.base.ForUpdate(ctx).Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return nil, err
	}
	if err := orderedLines(r.base.DB(ctx)).Where("cart_id = ?", cart.ID).Find(&cart.Lines).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// EnsureCart inserts an empty active cart for the user unless one exists.
func (r *Repository) EnsureCart(ctx context.Context, userID uuid.UUID, at time.Time) error {
	cart := &models.Cart{
		UserID:       userID,
		Status:       enums.CartStatusActive,
		TotalAmount:  decimal.Zero,
		LastActivity: at,
	}
	return r.base.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(cart).Error
}

// ReplaceLines atomically replaces cart lines for the provided cart.
func (r *Repository) ReplaceLines(ctx context.Context, cartID uuid.UUID, lines []models.CartLine) error {
	tx := r.base.DB(ctx)
	if err := tx.Where("cart_id = ?", cartID).Delete(&models.CartLine{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		lines[i].CartID = cartID
	}
	return tx.Create(&lines).Error
}

// SaveTotals writes status, totals and activity if the stored version still
// matches cart.Version, then advances cart.Version.
func (r *Repository) SaveTotals(ctx context.Context, cart *models.Cart) error {
	res := r.base.DB(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND version = ?", cart.ID, cart.Version).
		Updates(map[string]any{
			"status":        cart.Status,
			"total_items":   cart.TotalItems,
			"total_amount":  cart.TotalAmount,
			"last_activity": cart.LastActivity,
			"version":       gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleCart
	}
	cart.Version++
	return nil
}

// MarkAbandoned flags active carts with lines whose last activity is older
// than idleSince.
func (r *Repository) MarkAbandoned(ctx context.Context, idleSince time.Time) (int64, error) {
	res := r.base.DB(ctx).
		Model(&models.Cart{}).
		Where("status = ? AND total_items > 0 AND last_activity < ?", enums.CartStatusActive, idleSince).
		Updates(map[string]any{
			"status":  enums.CartStatusAbandoned,
			"version": gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}
