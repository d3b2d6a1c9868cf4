package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Line is one cart line as seen by the coupon engine: the resolved unit
// price (size override already applied) plus the product identity used
// for scope matching.
type Line struct {
	ProductID  string
	CategoryID string
	UnitPrice  decimal.Decimal
	Quantity   int
}

// Evaluation is the outcome of checking a code against a cart. A
// failing evaluation is not an error: the cart flow surfaces Message to
// the user and the order is simply not placed.
type Evaluation struct {
	Valid          bool
	DiscountAmount decimal.Decimal
	Message        string
	Coupon         *Coupon
}

// Engine validates coupon codes against cart contents and computes the
// resulting discount. It performs no writes; consuming a use is the
// transaction coordinator's job.
type Engine struct {
	repo Repository
	now  func() time.Time
}

// NewEngine creates an Engine backed by the given Repository.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo, now: time.Now}
}

func reject(message string) Evaluation {
	return Evaluation{DiscountAmount: decimal.Zero, Message: message}
}

// Evaluate looks up the coupon for code and checks it against the cart
// lines. The minimum-order check uses the full cart subtotal while the
// discount itself is computed over the eligible subtotal only; the two
// sums intentionally differ for scoped coupons.
func (e *Engine) Evaluate(ctx context.Context, code string, lines []Line) (Evaluation, error) {
	c, err := e.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reject("Invalid coupon code."), nil
		}
		return Evaluation{}, errors.Wrap(err, "lookup coupon")
	}

	now := e.now()
	switch {
	case !c.IsActive:
		return reject("This coupon is not active."), nil
	case now.Before(c.ValidFrom):
		return reject("This coupon is not yet valid."), nil
	case now.After(c.ValidUntil):
		return reject("This coupon has expired."), nil
	case c.UsedCount >= c.UsageLimit:
		return reject("This coupon has reached its usage limit."), nil
	}

	cartSubtotal := decimal.Zero
	eligibleTotal := decimal.Zero
	for _, l := range lines {
		lineTotal := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		cartSubtotal = cartSubtotal.Add(lineTotal)
		if c.Scope.Covers(l.ProductID, l.CategoryID) {
			eligibleTotal = eligibleTotal.Add(lineTotal)
		}
	}

	if c.MinOrderAmount != nil && cartSubtotal.LessThan(*c.MinOrderAmount) {
		return reject(fmt.Sprintf("Minimum order of $%s required.", c.MinOrderAmount.StringFixed(2))), nil
	}
	if c.Scope.Kind != ScopeAll && eligibleTotal.IsZero() {
		return reject("No items in the cart qualify for this coupon."), nil
	}

	amount, err := discountFor(c, eligibleTotal)
	if err != nil {
		return Evaluation{}, err
	}

	return Evaluation{
		Valid:          true,
		DiscountAmount: amount,
		Message:        "Coupon applied successfully!",
		Coupon:         c,
	}, nil
}

// discountFor computes the discount against the eligible subtotal,
// never against the full cart value.
func discountFor(c *Coupon, eligibleTotal decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch c.Type {
	case TypeFixed:
		amount = decimal.Min(c.Value, eligibleTotal)
	case TypePercentage:
		amount = eligibleTotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscountAmount != nil {
			amount = decimal.Min(amount, *c.MaxDiscountAmount)
		}
		amount = decimal.Min(amount, eligibleTotal)
	default:
		return decimal.Zero, errors.Errorf("unsupported coupon type: %q", c.Type)
	}
	return amount.Round(2), nil
}
