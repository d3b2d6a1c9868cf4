package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item as the fulfillment core sees it:
// a read-only snapshot owned by the catalog service.
type Product struct {
	ID        string
	Title     string
	BasePrice decimal.Decimal
	Category  string
	Images    []string
	IsActive  bool
	Sizes     []Size
}

// Size is a sellable variant of a product with its own stock counter.
// PriceOverride, when set, supersedes the product's BasePrice.
type Size struct {
	ID            string
	Label         string
	Stock         int
	PriceOverride *decimal.Decimal
}

// FindSize returns the size with the given ID, or nil if the product
// has no such size.
func (p *Product) FindSize(sizeID string) *Size {
	for i := range p.Sizes {
		if p.Sizes[i].ID == sizeID {
			return &p.Sizes[i]
		}
	}
	return nil
}

// UnitPrice resolves the effective price for a size: the override when
// present, the product base price otherwise.
func (p *Product) UnitPrice(s *Size) decimal.Decimal {
	if s != nil && s.PriceOverride != nil {
		return *s.PriceOverride
	}
	return p.BasePrice
}

// FirstImage returns the primary product image, or "" when the catalog
// entry carries none.
func (p *Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Repository defines the read operations the fulfillment core needs
// from the product catalog.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
