package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/belshop/fulfillment/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT id, code, type, value, min_order_amount, max_discount_amount,
		usage_limit, used_count, valid_from, valid_until, is_active, scope_kind, scope_ids
		FROM coupons WHERE code = UPPER($1)`

	incrementCouponUsageSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND used_count < usage_limit`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`
)

var (
	_ coupon.Repository    = (*CouponRepository)(nil)
	_ coupon.UsageRecorder = (*CouponRepository)(nil)
)

// CouponRepository implements coupon lookup and the conditional usage
// increment backed by PostgreSQL. It runs against a Querier so the
// usage increment can participate in the order-creation transaction.
type CouponRepository struct {
	db Querier
}

// NewCouponRepository returns a CouponRepository that uses the given
// pool or transaction.
func NewCouponRepository(db Querier) *CouponRepository {
	return &CouponRepository{db: db}
}

// FindByCode looks up a coupon by its upper-normalized code.
// Returns coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.db.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// IncrementUsage consumes one use of the coupon. The increment is
// conditional on remaining uses: a zero-row update means either the
// coupon vanished or the limit was hit by a concurrent order.
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string) error {
	tag, err := r.db.Exec(ctx, incrementCouponUsageSQL, couponID)
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, couponExistsSQL, couponID).Scan(&exists); err != nil {
		return fmt.Errorf("checking coupon %q: %w", couponID, err)
	}
	if !exists {
		return coupon.ErrNotFound
	}
	return coupon.ErrUsageExhausted
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c           coupon.Coupon
		minOrder    decimal.NullDecimal
		maxDiscount decimal.NullDecimal
		scopeKind   string
	)
	err := row.Scan(
		&c.ID, &c.Code, (*string)(&c.Type), &c.Value, &minOrder, &maxDiscount,
		&c.UsageLimit, &c.UsedCount, &c.ValidFrom, &c.ValidUntil, &c.IsActive,
		&scopeKind, &c.Scope.IDs,
	)
	if minOrder.Valid {
		v := minOrder.Decimal
		c.MinOrderAmount = &v
	}
	if maxDiscount.Valid {
		v := maxDiscount.Decimal
		c.MaxDiscountAmount = &v
	}
	c.Scope.Kind = coupon.ScopeKind(scopeKind)
	return c, err
}
