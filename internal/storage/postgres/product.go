package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/belshop/fulfillment/internal/domain/product"
)

const (
	getProductsByIDsSQL = `SELECT id, title, base_price, category, images, is_active
		FROM products WHERE id = ANY($1)`

	getSizesByProductIDsSQL = `SELECT id, product_id, label, stock, price_override
		FROM product_sizes WHERE product_id = ANY($1) ORDER BY product_id, id`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByIDs fetches the requested products with their sizes in two batch
// queries. Missing IDs are simply absent from the result; the caller
// decides whether that is an error.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products: %w", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products: %w", err)
	}
	if len(products) == 0 {
		return nil, nil
	}

	byID := make(map[string]int, len(products))
	for i, p := range products {
		byID[p.ID] = i
	}

	sizeRows, err := r.pool.Query(ctx, getSizesByProductIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting product sizes: %w", err)
	}
	defer sizeRows.Close()

	for sizeRows.Next() {
		var (
			s         product.Size
			productID string
			override  decimal.NullDecimal
		)
		if err := sizeRows.Scan(&s.ID, &productID, &s.Label, &s.Stock, &override); err != nil {
			return nil, fmt.Errorf("scanning product size: %w", err)
		}
		if override.Valid {
			v := override.Decimal
			s.PriceOverride = &v
		}
		if i, ok := byID[productID]; ok {
			products[i].Sizes = append(products[i].Sizes, s)
		}
	}
	if err := sizeRows.Err(); err != nil {
		return nil, fmt.Errorf("getting product sizes: %w", err)
	}

	return products, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Title, &p.BasePrice, &p.Category, &p.Images, &p.IsActive)
	return p, err
}
