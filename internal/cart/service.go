package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/clock"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/retry"
)

const defaultMaxLineQuantity = 999

// Service is the CartManager: one cart per user, mutated only through these
// operations.
type Service interface {
	AddItem(ctx context.Context, userID uuid.UUID, input ItemInput) (*CartDTO, error)
	UpdateQuantity(ctx context.Context, userID uuid.UUID, input ItemInput) (*CartDTO, error)
	RemoveItem(ctx context.Context, userID uuid.UUID, productID string) (*CartDTO, error)
	Clear(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	GetCart(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
}

// ServiceParams bundles the cart service dependencies.
type ServiceParams struct {
	Repo            CartRepository
	Tx              db.TxRunner
	Catalog         Catalog
	Clock           clock.Clock
	Retry           retry.Policy
	Metrics         *metrics.CommerceMetrics
	Logger          *logger.Logger
	MaxLineQuantity int
}

type service struct {
	repo    CartRepository
	tx      db.TxRunner
	catalog Catalog
	clock   clock.Clock
	retry   retry.Policy
	metrics *metrics.CommerceMetrics
	logg    *logger.Logger
	maxQty  int
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if params.Clock == nil {
		params.Clock = clock.System{}
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.MaxLineQuantity <= 0 {
		params.MaxLineQuantity = defaultMaxLineQuantity
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		catalog: params.Catalog,
		clock:   params.Clock,
		retry:   params.Retry,
		metrics: params.Metrics,
		logg:    params.Logger,
		maxQty:  params.MaxLineQuantity,
	}, nil
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input ItemInput) (*CartDTO, error) {
	return s.mutate(ctx, "add_item", userID, func(ctx context.Context) (*models.Cart, error) {
		return s.addItem(ctx, userID, input)
	})
}

func (s *service) UpdateQuantity(ctx context.Context, userID uuid.UUID, input ItemInput) (*CartDTO, error) {
	return s.mutate(ctx, "update_quantity", userID, func(ctx context.Context) (*models.Cart, error) {
		return s.updateQuantity(ctx, userID, input)
	})
}

func (s *service) RemoveItem(ctx context.Context, userID uuid.UUID, productID string) (*CartDTO, error) {
	return s.mutate(ctx, "remove_item", userID, func(ctx context.Context) (*models.Cart, error) {
		return s.removeItem(ctx, userID, productID)
	})
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	return s.mutate(ctx, "clear", userID, func(ctx context.Context) (*models.Cart, error) {
		return s.clear(ctx, userID)
	})
}

// mutate runs op under the retry policy, records the outcome and returns the
// freshly joined cart. Once the write has committed the call succeeds: a
// failed reload falls back to the committed cart without catalog data.
func (s *service) mutate(ctx context.Context, op string, userID uuid.UUID, fn func(ctx context.Context) (*models.Cart, error)) (*CartDTO, error) {
	ctx = s.logg.WithOperation(ctx, "cart."+op)
	if userID == uuid.Nil {
		err := pkgerrors.New(pkgerrors.CodeInvalidUserID, "user id is required")
		s.metrics.CartOp(op, err)
		return nil, err
	}
	var committed *models.Cart
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		cart, err := fn(ctx)
		if err != nil {
			return err
		}
		committed = cart
		return nil
	})
	s.metrics.CartOp(op, err)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeCartVersionConflict) {
			s.logg.Warn(ctx, "cart write conflict persisted after retries")
		}
		return nil, err
	}

	dto, err := s.GetCart(ctx, userID)
	if err != nil {
		s.logg.Error(ctx, "cart reload after write failed", err)
		return newCartDTO(committed, nil), nil
	}
	return dto, nil
}

// write locks the user's cart inside one transaction, lets fn edit it and
// persists the result. ensure creates the cart row first when missing.
func (s *service) write(ctx context.Context, userID uuid.UUID, ensure bool, fn func(cart *models.Cart) error) (*models.Cart, error) {
	now := s.clock.Now()
	var saved *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var (
			cart *models.Cart
			err  error
		)
		if ensure {
			if err := repo.EnsureCart(ctx, userID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
			}
			cart, err = repo.LockByUser(ctx, userID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
			}
		} else {
			cart, err = s.lockExisting(ctx, repo, userID)
			if err != nil {
				return err
			}
		}
		if err := fn(cart); err != nil {
			return err
		}
		if err := s.persist(ctx, repo, cart); err != nil {
			return err
		}
		saved = cart
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *service) addItem(ctx context.Context, userID uuid.UUID, input ItemInput) (*models.Cart, error) {
	productID, err := parseProductID(input.ProductID, pkgerrors.CodeMissingProductID)
	if err != nil {
		return nil, err
	}
	qty := 1
	if input.Quantity != nil {
		qty = *input.Quantity
	}
	if qty < 1 || qty > s.maxQty {
		return nil, s.invalidQuantity(qty)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Available() {
		return nil, pkgerrors.New(pkgerrors.CodeProductUnavailable, "product is not available").
			WithDetails(map[string]any{"productStatus": product.Status})
	}
	if product.Stock < qty {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("only %d left in stock", product.Stock)).
			WithDetails(map[string]any{"availableQuantity": product.Stock})
	}
	if product.IsAuction {
		return nil, pkgerrors.New(pkgerrors.CodeAuctionNotAllowed, "auction products cannot be added to cart")
	}

	now := s.clock.Now()
	return s.write(ctx, userID, true, func(cart *models.Cart) error {
		if idx := findLine(cart.Lines, productID); idx >= 0 {
			line := &cart.Lines[idx]
			merged := line.Quantity + qty
			if merged > product.Stock {
				return pkgerrors.New(pkgerrors.CodeExceedStockLimit, fmt.Sprintf("total quantity cannot exceed %d", product.Stock)).
					WithDetails(map[string]any{
						"currentInCart": line.Quantity,
						"requestedAdd":  qty,
						"maxAllowed":    product.Stock,
					})
			}
			if merged > s.maxQty {
				return s.invalidQuantity(merged)
			}
			line.Quantity = merged
			line.AddedAt = now
			return nil
		}
		cart.Lines = append(cart.Lines, models.CartLine{
			ProductID:   product.ID,
			SellerID:    product.SellerID,
			Quantity:    qty,
			PriceAtTime: product.Price,
			Status:      enums.CartLineStatusActive,
			AddedAt:     now,
		})
		return nil
	})
}

func (s *service) updateQuantity(ctx context.Context, userID uuid.UUID, input ItemInput) (*models.Cart, error) {
	if strings.TrimSpace(input.ProductID) == "" || input.Quantity == nil {
		return nil, pkgerrors.New(pkgerrors.CodeMissingRequiredFields, "productId and quantity are required")
	}
	productID, err := parseProductID(input.ProductID, pkgerrors.CodeMissingRequiredFields)
	if err != nil {
		return nil, err
	}
	qty := *input.Quantity
	if qty > s.maxQty {
		return nil, s.invalidQuantity(qty)
	}

	// A vanished product does not block the update; only a known stock
	// level is enforced.
	var product *products.Snapshot
	if qty > 0 {
		product, err = s.catalog.GetProduct(ctx, productID)
		if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeProductNotFound) {
			return nil, err
		}
	}

	now := s.clock.Now()
	return s.write(ctx, userID, false, func(cart *models.Cart) error {
		idx := findLine(cart.Lines, productID)
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeItemNotFound, "product is not in the cart")
		}
		if qty <= 0 {
			cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
			return nil
		}
		if product != nil && qty > product.Stock {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("only %d left in stock", product.Stock)).
				WithDetails(map[string]any{"availableQuantity": product.Stock})
		}
		cart.Lines[idx].Quantity = qty
		cart.Lines[idx].AddedAt = now
		return nil
	})
}

func (s *service) removeItem(ctx context.Context, userID uuid.UUID, rawProductID string) (*models.Cart, error) {
	productID, err := parseProductID(rawProductID, pkgerrors.CodeMissingProductID)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, userID, false, func(cart *models.Cart) error {
		idx := findLine(cart.Lines, productID)
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeItemNotFound, "product is not in the cart")
		}
		cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
		return nil
	})
}

func (s *service) clear(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return s.write(ctx, userID, true, func(cart *models.Cart) error {
		cart.Lines = nil
		cart.Status = enums.CartStatusActive
		return nil
	})
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidUserID, "user id is required")
	}
	cart, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return emptyCart(), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	ids := make([]uuid.UUID, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		ids = append(ids, line.ProductID)
	}
	catalog, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	return newCartDTO(cart, catalog), nil
}

func (s *service) lockExisting(ctx context.Context, repo CartRepository, userID uuid.UUID) (*models.Cart, error) {
	cart, err := repo.LockByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeCartNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

// persist rewrites lines and totals as one unit. A concurrent writer that got
// there first turns into a retryable version conflict.
func (s *service) persist(ctx context.Context, repo CartRepository, cart *models.Cart) error {
	ApplyTotals(cart, s.clock.Now())
	if err := repo.ReplaceLines(ctx, cart.ID, cart.Lines); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeCartVersionConflict, err, "cart lines changed concurrently")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write cart lines")
	}
	if err := repo.SaveTotals(ctx, cart); err != nil {
		if errors.Is(err, ErrStaleCart) {
			return pkgerrors.Wrap(pkgerrors.CodeCartVersionConflict, err, "cart modified concurrently")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write cart")
	}
	return nil
}

func (s *service) invalidQuantity(qty int) error {
	return pkgerrors.New(pkgerrors.CodeInvalidQuantity, fmt.Sprintf("quantity must be between 1 and %d", s.maxQty)).
		WithDetails(map[string]any{"quantity": qty})
}

func parseProductID(raw string, missing pkgerrors.Code) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(missing, "product id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeInvalidProductID, "product id is malformed")
	}
	return id, nil
}

func findLine(lines []models.CartLine, productID uuid.UUID) int {
	for i := range lines {
		if lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}
