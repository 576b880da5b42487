package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/repo"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Repository persists product listings and their stock counters.
type Repository struct {
	base repo.Base
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.Bind(tx)}
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.base.DB(ctx).Create(product).Error
}

// FindByID loads a product. Missing rows surface gorm.ErrRecordNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.base.DB(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads every product in ids; missing ids are simply absent.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Product
	if err := r.base.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SellerNames maps seller ids to usernames.
func (r *Repository) SellerNames(ctx context.Context, sellerIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(sellerIDs))
	if len(sellerIDs) == 0 {
		return names, nil
	}
	var users []models.User
	if err := r.base.DB(ctx).
		Select("id", "username").
		Where("id IN ?", sellerIDs).
		Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID] = u.Username
	}
	return names, nil
}

// ListAvailable returns available products newest first, keyed by the
// (created_at, id) cursor. limit should already include the look-ahead row.
func (r *Repository) ListAvailable(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Product, error) {
	query := r.base.DB(ctx).Where("status = ?", enums.ProductStatusAvailable)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Product
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DecrementStock removes qty units if at least qty remain and the product is
// still available. The listing flips to sold when stock reaches zero.
// It reports false when the guard did not match.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.base.DB(ctx).
		Model(&models.Product{}).
		Where("id = ? AND quantity >= ? AND status = ?", id, qty, enums.ProductStatusAvailable).
		Updates(map[string]any{
			"quantity": gorm.Expr("quantity - ?", qty),
			"status":   gorm.Expr("CASE WHEN quantity - ? <= 0 THEN ? ELSE status END", qty, enums.ProductStatusSold),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Restock returns qty units to stock, reopening a sold-out listing.
func (r *Repository) Restock(ctx context.Context, id uuid.UUID, qty int) error {
	return r.base.DB(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quantity": gorm.Expr("quantity + ?", qty),
			"status":   gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", enums.ProductStatusSold, enums.ProductStatusAvailable),
		}).Error
}
