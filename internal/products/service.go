package products

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/clock"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Service exposes the catalog: point-in-time lookups for the cart and
// checkout plus the public listing endpoints.
type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Snapshot, error)
	GetProductDetail(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, params pagination.Params) (*ListResult, error)
	CreateProduct(ctx context.Context, sellerID uuid.UUID, input CreateProductInput) (*ProductDTO, error)
}

type service struct {
	repo  *Repository
	clock clock.Clock
}

// NewService builds the catalog service.
func NewService(repo *Repository, clk clock.Clock) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &service{repo: repo, clock: clk}, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	names, err := s.repo.SellerNames(ctx, []uuid.UUID{product.SellerID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	snap := newSnapshot(*product, names[product.SellerID])
	return &snap, nil
}

func (s *service) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Snapshot, error) {
	rows, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	sellerIDs := make([]uuid.UUID, 0, len(rows))
	seen := make(map[uuid.UUID]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.SellerID]; ok {
			continue
		}
		seen[row.SellerID] = struct{}{}
		sellerIDs = append(sellerIDs, row.SellerID)
	}
	names, err := s.repo.SellerNames(ctx, sellerIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sellers")
	}
	out := make(map[uuid.UUID]Snapshot, len(rows))
	for _, row := range rows {
		out[row.ID] = newSnapshot(row, names[row.SellerID])
	}
	return out, nil
}

func (s *service) GetProductDetail(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	names, err := s.repo.SellerNames(ctx, []uuid.UUID{product.SellerID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	dto := newProductDTO(*product, names[product.SellerID])
	return &dto, nil
}

func (s *service) ListProducts(ctx context.Context, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListAvailable(ctx, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}

	rows, next := pagination.Trim(rows, limit, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	result := &ListResult{Products: make([]ProductDTO, 0, len(rows)), NextCursor: next}

	sellerIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		sellerIDs = append(sellerIDs, row.SellerID)
	}
	names, err := s.repo.SellerNames(ctx, sellerIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sellers")
	}
	for _, row := range rows {
		result.Products = append(result.Products, newProductDTO(row, names[row.SellerID]))
	}
	return result, nil
}

func (s *service) CreateProduct(ctx context.Context, sellerID uuid.UUID, input CreateProductInput) (*ProductDTO, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidUserID, "seller id is required")
	}
	if err := validateCreate(input, s.clock.Now()); err != nil {
		return nil, err
	}

	quantity := input.Quantity
	if quantity == 0 {
		quantity = 1
	}
	product := &models.Product{
		SellerID:       sellerID,
		Title:          strings.TrimSpace(input.Title),
		Description:    strings.TrimSpace(input.Description),
		Price:          input.Price.Round(2),
		Quantity:       quantity,
		Status:         enums.ProductStatusAvailable,
		IsAuction:      input.IsAuction,
		AuctionEndTime: input.AuctionEndTime,
		Images:         input.Images,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return s.GetProductDetail(ctx, product.ID)
}

func validateCreate(input CreateProductInput, now time.Time) error {
	missing := []string{}
	if strings.TrimSpace(input.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(input.Description) == "" {
		missing = append(missing, "description")
	}
	if len(input.Images) == 0 {
		missing = append(missing, "images")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "missing required fields").
			WithDetails(map[string]any{"fields": missing})
	}
	if !input.Price.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	if input.Quantity < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if input.IsAuction {
		if input.AuctionEndTime == nil || !input.AuctionEndTime.After(now) {
			return pkgerrors.New(pkgerrors.CodeValidation, "auction end time must be in the future")
		}
	}
	return nil
}
