package products

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// Inventory adjusts stock inside a caller-owned transaction.
type Inventory struct {
	repo *Repository
}

func NewInventory(repo *Repository) *Inventory {
	return &Inventory{repo: repo}
}

// Reserve takes qty units out of stock. It fails with INSUFFICIENT_STOCK if
// the listing no longer has qty available units.
func (i *Inventory) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	ok, err := i.repo.WithTx(tx).DecrementStock(ctx, productID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("product %s no longer has %d in stock", productID, qty)).
			WithDetails(map[string]any{"productId": productID})
	}
	return nil
}

// Release returns qty units to stock.
func (i *Inventory) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if err := i.repo.WithTx(tx).Restock(ctx, productID, qty); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock product")
	}
	return nil
}
