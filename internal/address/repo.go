package address

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/repo"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// Repository persists address book entries.
type Repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.Bind(tx)}
}

// LockOwner takes a row lock on the owning user so concurrent address book
// writes for the same user run one at a time.
func (r *Repository) LockOwner(ctx context.Context, userID uuid.UUID) error {
	var user models.User
	return r.base.ForUpdate(ctx).Select("id").Where("id = ?", userID).First(&user).Error
}

// ListByUser returns the default address first, then newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	var rows []models.Address
	err := r.base.DB(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC").
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.base.DB(ctx).Model(&models.Address{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// FindOwned matches on (id, user_id); another user's address is not found.
func (r *Repository) FindOwned(ctx context.Context, userID, id uuid.UUID) (*models.Address, error) {
	var addr models.Address
	if err := r.base.DB(ctx).Where("id = ? AND user_id = ?", id, userID).First(&addr).Error; err != nil {
		return nil, err
	}
	return &addr, nil
}

// FindDefault returns the user's default address.
func (r *Repository) FindDefault(ctx context.Context, userID uuid.UUID) (*models.Address, error) {
	var addr models.Address
	if err := r.base.DB(ctx).Where("user_id = ? AND is_default = ?", userID, true).First(&addr).Error; err != nil {
		return nil, err
	}
	return &addr, nil
}

// OldestOther returns the earliest created address of the user other than
// exceptID.
func (r *Repository) OldestOther(ctx context.Context, userID, exceptID uuid.UUID) (*models.Address, error) {
	var addr models.Address
	err := r.base.DB(ctx).
		Where("user_id = ? AND id <> ?", userID, exceptID).
		Order("created_at ASC").
		Order("id ASC").
		First(&addr).Error
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func (r *Repository) Create(ctx context.Context, addr *models.Address) error {
	return r.base.DB(ctx).Create(addr).Error
}

// DemoteAll clears is_default on every address of the user.
func (r *Repository) DemoteAll(ctx context.Context, userID uuid.UUID) error {
	return r.base.DB(ctx).
		Model(&models.Address{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}

// UpdateColumns applies values to the owned address and reports whether it matched.
func (r *Repository) UpdateColumns(ctx context.Context, userID, id uuid.UUID, values map[string]any) (bool, error) {
	res := r.base.DB(ctx).
		Model(&models.Address{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return r.base.DB(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Address{}).Error
}
