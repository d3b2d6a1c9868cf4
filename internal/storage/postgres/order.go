package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/belshop/fulfillment/internal/domain/coupon"
	"github.com/belshop/fulfillment/internal/domain/inventory"
	"github.com/belshop/fulfillment/internal/domain/order"
)

const (
	orderColumns = `id, tracking_number, shipping_address, items, order_note,
		subtotal, shipping, coupon_id, discount_amount, total_amount,
		payment_status, status, status_history, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (id, tracking_number, shipping_address, items, order_note,
		subtotal, shipping, coupon_id, discount_amount, total_amount,
		payment_status, status, status_history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	saveOrderSQL = `UPDATE orders SET payment_status = $2, status = $3,
		status_history = $4, updated_at = $5 WHERE id = $1`

	findOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	findOrderForTrackingSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 <> '' AND tracking_number = $1)
		   OR ($2 <> '' AND shipping_address->>'mobile' = $2)
		ORDER BY created_at DESC`

	countOrdersSQL = `SELECT count(*) FROM orders`

	trackingConstraint = "orders_tracking_number_key"
)

// listSortColumns whitelists the sortable columns for admin listing.
var listSortColumns = map[string]string{
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"total_amount": "total_amount",
	"status":       "status",
}

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL. Its WithinTx
// is the transactional unit the coordinator runs reservations, coupon
// usage, and order writes inside.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// WithinTx runs fn inside one database transaction. Serialization
// failures and deadlocks surface as order.ErrConflict so callers know
// the unit had no effect and can retry.
func (s *OrderStore) WithinTx(ctx context.Context, fn func(tx order.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&orderTx{tx: tx})
	})
	if err != nil && retryableConflict(err) {
		return fmt.Errorf("%w: %s", order.ErrConflict, err)
	}
	return err
}

// FindByID returns a single order, or order.ErrNotFound.
func (s *OrderStore) FindByID(ctx context.Context, id string) (*order.Order, error) {
	return findOrderByID(ctx, s.pool, id, "")
}

// FindForTracking returns the orders matching a tracking number or a
// shipping mobile, newest first.
func (s *OrderStore) FindForTracking(ctx context.Context, trackingNumber, mobile string) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, findOrderForTrackingSQL, trackingNumber, mobile)
	if err != nil {
		return nil, fmt.Errorf("finding orders for tracking: %w", err)
	}

	found, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("finding orders for tracking: %w", err)
	}
	return found, nil
}

// List returns one page of orders plus the total count.
func (s *OrderStore) List(ctx context.Context, opts order.ListOptions) ([]order.Order, int, error) {
	sortCol, ok := listSortColumns[opts.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	dir := "DESC"
	if opts.SortOrder == "asc" {
		dir = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM orders ORDER BY %s %s LIMIT $1 OFFSET $2`,
		orderColumns, sortCol, dir)

	rows, err := s.pool.Query(ctx, query, opts.Limit, opts.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}

	found, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}

	var total int
	if err := s.pool.QueryRow(ctx, countOrdersSQL).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	return found, total, nil
}

// orderTx adapts one pgx.Tx to the coordinator's unit-of-work surface.
type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) Ledger() inventory.Ledger {
	return NewInventoryLedger(t.tx)
}

func (t *orderTx) Coupons() coupon.UsageRecorder {
	return NewCouponRepository(t.tx)
}

// Insert persists a new order. Address, items, and history are
// serialized to JSON for the JSONB columns.
func (t *orderTx) Insert(ctx context.Context, o *order.Order) error {
	addressJSON, itemsJSON, historyJSON, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	var couponID *string
	if o.CouponID != "" {
		couponID = &o.CouponID
	}

	_, err = t.tx.Exec(ctx, insertOrderSQL,
		o.ID, o.TrackingNumber, addressJSON, itemsJSON, o.OrderNote,
		o.Subtotal, o.Shipping, couponID, o.DiscountAmount, o.TotalAmount,
		string(o.PaymentStatus), string(o.Status), historyJSON, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, trackingConstraint) {
			return order.ErrDuplicateTracking
		}
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}
	return nil
}

// Save writes back the mutable order fields: payment status, status,
// and the history trail. Everything else is immutable after creation.
func (t *orderTx) Save(ctx context.Context, o *order.Order) error {
	historyJSON, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshaling status history: %w", err)
	}

	tag, err := t.tx.Exec(ctx, saveOrderSQL,
		o.ID, string(o.PaymentStatus), string(o.Status), historyJSON, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// FindByID reads an order inside the transaction with a row lock, so
// concurrent transitions on the same order serialize.
func (t *orderTx) FindByID(ctx context.Context, id string) (*order.Order, error) {
	return findOrderByID(ctx, t.tx, id, " FOR UPDATE")
}

func findOrderByID(ctx context.Context, db Querier, id, suffix string) (*order.Order, error) {
	rows, err := db.Query(ctx, findOrderByIDSQL+suffix, id)
	if err != nil {
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}
	return &o, nil
}

func marshalOrderDocs(o *order.Order) (address, items, history []byte, err error) {
	if address, err = json.Marshal(o.ShippingAddress); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling shipping address: %w", err)
	}
	if items, err = json.Marshal(o.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling order items: %w", err)
	}
	if history, err = json.Marshal(o.StatusHistory); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling status history: %w", err)
	}
	return address, items, history, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		addressJSON   []byte
		itemsJSON     []byte
		historyJSON   []byte
		couponID      *string
		paymentStatus string
		status        string
	)
	err := row.Scan(
		&o.ID, &o.TrackingNumber, &addressJSON, &itemsJSON, &o.OrderNote,
		&o.Subtotal, &o.Shipping, &couponID, &o.DiscountAmount, &o.TotalAmount,
		&paymentStatus, &status, &historyJSON, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}

	if couponID != nil {
		o.CouponID = *couponID
	}
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(status)

	if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &o.StatusHistory); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling status history: %w", err)
	}
	return o, nil
}
