package order

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for order operations.
var (
	ErrNotFound   = errors.New("order not found")
	ErrEmptyItems = errors.New("items required")
	// ErrConflict reports a transactional unit that lost a race against
	// a concurrently committing unit. The operation had no effect and is
	// safe to retry.
	ErrConflict = errors.New("order conflicts with a concurrent update")
)

// ValidationError reports malformed or missing input, detected before
// any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InvalidQuantityError indicates a cart line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductUnavailableError indicates a cart line referencing a product
// that is missing from the catalog or switched off.
type ProductUnavailableError struct {
	ProductID string
	Title     string
	Missing   bool
}

func (e *ProductUnavailableError) Error() string {
	if e.Missing {
		return fmt.Sprintf("Product with ID %s not found.", e.ProductID)
	}
	return fmt.Sprintf("Product %q is currently unavailable.", e.Title)
}

// InvalidSizeError indicates a cart line referencing a size the product
// does not have.
type InvalidSizeError struct {
	ProductID string
	SizeID    string
	Title     string
}

func (e *InvalidSizeError) Error() string {
	return fmt.Sprintf("Invalid size ID %s for product %q.", e.SizeID, e.Title)
}

// CouponRejectedError carries the coupon engine's soft-failure message
// when a creation request named a coupon that does not apply. The
// original message is preserved for the caller.
type CouponRejectedError struct {
	Message string
}

func (e *CouponRejectedError) Error() string {
	return e.Message
}

// IllegalTransitionError indicates a status change the lifecycle does
// not permit.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// TransactionError wraps an infrastructure failure observed inside a
// transactional unit after its rollback guarantee has been honored. The
// caller sees a generic message; the cause stays attached for logs.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("Failed to %s. Please try again.", e.Op)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// ShippingAddress is the customer destination embedded in an order.
type ShippingAddress struct {
	CustomerName string `json:"customerName"`
	Mobile       string `json:"mobile"`
	District     string `json:"district"`
	AddressLine  string `json:"addressLine"`
	PostalCode   string `json:"postalCode,omitempty"`
}

// Item is an immutable snapshot of one ordered line. Prices and labels
// are resolved at order time; later catalog edits never change it.
type Item struct {
	ProductID     string          `json:"productId"`
	ProductSizeID string          `json:"productSizeId"`
	Title         string          `json:"title"`
	Size          string          `json:"size"`
	Image         string          `json:"image,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
}

// HistoryEntry is one record in an order's append-only status trail.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	ChangedBy string    `json:"changedBy,omitempty"`
	ChangedAt time.Time `json:"changedAt"`
}

// Order is the durable result of a fulfilled cart. It is created once
// by the fulfillment core, mutated only through status transitions, and
// never deleted.
type Order struct {
	ID              string
	TrackingNumber  string
	ShippingAddress ShippingAddress
	Items           []Item
	OrderNote       string
	Subtotal        decimal.Decimal
	Shipping        decimal.Decimal
	CouponID        string
	DiscountAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
	PaymentStatus   PaymentStatus
	Status          Status
	StatusHistory   []HistoryEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// appendHistory records a new trail entry and syncs the order status to
// the most recent entry.
func (o *Order) appendHistory(status Status, note, changedBy string, at time.Time) {
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{
		Status:    status,
		Note:      note,
		ChangedBy: changedBy,
		ChangedAt: at,
	})
	o.Status = status
	o.UpdatedAt = at
}
