package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/belshop/fulfillment/internal/domain/inventory"
)

const (
	reserveStockSQL = `UPDATE product_sizes SET stock = stock - $3
		WHERE id = $2 AND product_id = $1 AND stock >= $3`

	releaseStockSQL = `UPDATE product_sizes SET stock = stock + $3
		WHERE id = $2 AND product_id = $1`

	getStockSQL = `SELECT stock FROM product_sizes WHERE id = $2 AND product_id = $1`
)

var _ inventory.Ledger = (*InventoryLedger)(nil)

// InventoryLedger implements inventory.Ledger on PostgreSQL. The check
// and the decrement are one conditional UPDATE, so two orders racing
// for the same size serialize on the row and at most one wins the last
// units.
type InventoryLedger struct {
	db Querier
}

// NewInventoryLedger returns an InventoryLedger that uses the given
// pool or transaction.
func NewInventoryLedger(db Querier) *InventoryLedger {
	return &InventoryLedger{db: db}
}

// Reserve decrements stock by qty only when enough remains. A zero-row
// update is disambiguated with a follow-up read: either the size does
// not exist or the remaining stock was short.
func (l *InventoryLedger) Reserve(ctx context.Context, productID, sizeID string, qty int) error {
	tag, err := l.db.Exec(ctx, reserveStockSQL, productID, sizeID, qty)
	if err != nil {
		return fmt.Errorf("reserving %d of size %q: %w", qty, sizeID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var available int
	err = l.db.QueryRow(ctx, getStockSQL, productID, sizeID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inventory.ErrSizeNotFound
		}
		return fmt.Errorf("checking stock of size %q: %w", sizeID, err)
	}

	return &inventory.InsufficientStockError{
		ProductID: productID,
		SizeID:    sizeID,
		Available: available,
		Requested: qty,
	}
}

// Release unconditionally adds qty back to the size's stock.
func (l *InventoryLedger) Release(ctx context.Context, productID, sizeID string, qty int) error {
	tag, err := l.db.Exec(ctx, releaseStockSQL, productID, sizeID, qty)
	if err != nil {
		return fmt.Errorf("releasing %d of size %q: %w", qty, sizeID, err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrSizeNotFound
	}
	return nil
}
