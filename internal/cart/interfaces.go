package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	LockByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	EnsureCart(ctx context.Context, userID uuid.UUID, at time.Time) error
	ReplaceLines(ctx context.Context, cartID uuid.UUID, lines []models.CartLine) error
	SaveTotals(ctx context.Context, cart *models.Cart) error
}

// Catalog is the read-only product lookup used to validate mutations and
// decorate lines at read time.
type Catalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*products.Snapshot, error)
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]products.Snapshot, error)
}
