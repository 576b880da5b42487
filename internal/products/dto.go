package products

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Snapshot is the point-in-time view of a product consumed by the cart and
// checkout flows. SellerName is joined from users at read time.
type Snapshot struct {
	ID         uuid.UUID
	SellerID   uuid.UUID
	SellerName string
	Title      string
	Price      decimal.Decimal
	Stock      int
	Status     enums.ProductStatus
	IsAuction  bool
	Images     []string
}

// Available reports whether the listing can currently be bought.
func (s Snapshot) Available() bool {
	return s.Status == enums.ProductStatusAvailable
}

func newSnapshot(p models.Product, sellerName string) Snapshot {
	return Snapshot{
		ID:         p.ID,
		SellerID:   p.SellerID,
		SellerName: sellerName,
		Title:      p.Title,
		Price:      p.Price,
		Stock:      p.Quantity,
		Status:     p.Status,
		IsAuction:  p.IsAuction,
		Images:     p.Images,
	}
}

// ProductDTO is the API representation of a listing.
type ProductDTO struct {
	ID             uuid.UUID           `json:"id"`
	SellerID       uuid.UUID           `json:"sellerId"`
	SellerName     string              `json:"sellerName,omitempty"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Price          decimal.Decimal     `json:"price"`
	Quantity       int                 `json:"quantity"`
	Status         enums.ProductStatus `json:"status"`
	IsAuction      bool                `json:"isAuction"`
	AuctionEndTime *time.Time          `json:"auctionEndTime,omitempty"`
	Images         []string            `json:"images"`
	CreatedAt      time.Time           `json:"createdAt"`
}

func newProductDTO(p models.Product, sellerName string) ProductDTO {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return ProductDTO{
		ID:             p.ID,
		SellerID:       p.SellerID,
		SellerName:     sellerName,
		Title:          p.Title,
		Description:    p.Description,
		Price:          p.Price,
		Quantity:       p.Quantity,
		Status:         p.Status,
		IsAuction:      p.IsAuction,
		AuctionEndTime: p.AuctionEndTime,
		Images:         images,
		CreatedAt:      p.CreatedAt,
	}
}

// CreateProductInput is the validated payload for a new listing.
type CreateProductInput struct {
	Title          string
	Description    string
	Price          decimal.Decimal
	Quantity       int
	Images         []string
	IsAuction      bool
	AuctionEndTime *time.Time
}

// ListResult is one page of available listings.
type ListResult struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"nextCursor,omitempty"`
}
