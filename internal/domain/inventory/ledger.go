// Package inventory defines the atomic stock ledger the fulfillment
// core reserves against. The check and the decrement must be one
// conditional write: a read-then-write sequence is unsafe when two
// orders race for the same size.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrSizeNotFound is returned when the referenced product size does not
// exist in the ledger.
var ErrSizeNotFound = errors.New("product size not found")

// InsufficientStockError reports a reservation that failed because the
// remaining stock is smaller than the requested quantity.
type InsufficientStockError struct {
	ProductID string
	SizeID    string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product %s size %s: available %d, requested %d",
		e.ProductID, e.SizeID, e.Available, e.Requested)
}

// Ledger is the per-size stock counter.
//
// Reserve decrements stock by qty only if the current stock is at least
// qty, reporting ErrSizeNotFound or *InsufficientStockError otherwise.
// Release unconditionally adds stock back; it exists for compensating
// logic (order cancellation) and is never called on the forward path.
type Ledger interface {
	Reserve(ctx context.Context, productID, sizeID string, qty int) error
	Release(ctx context.Context, productID, sizeID string, qty int) error
}
