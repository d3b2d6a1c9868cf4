package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage applies a percentage discount to the eligible subtotal.
	TypePercentage Type = "percentage"
	// TypeFixed applies a fixed monetary discount capped at the eligible subtotal.
	TypeFixed Type = "fixed"
)

// ScopeKind discriminates which part of the cart a coupon covers.
type ScopeKind string

const (
	// ScopeAll makes every cart line eligible.
	ScopeAll ScopeKind = "all"
	// ScopeCategories restricts eligibility to lines whose product
	// belongs to one of the listed categories.
	ScopeCategories ScopeKind = "categories"
	// ScopeProducts restricts eligibility to the listed products.
	ScopeProducts ScopeKind = "products"
)

// ErrNotFound is returned when no coupon exists for a given code.
var ErrNotFound = errors.New("coupon not found")

// Scope is a tagged variant: Kind selects the rule, IDs carries the
// category or product IDs for the restricted kinds and is empty for
// ScopeAll.
type Scope struct {
	Kind ScopeKind
	IDs  []string
}

// Covers reports whether a cart line for the given product/category is
// eligible under this scope.
func (s Scope) Covers(productID, categoryID string) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeCategories:
		return contains(s.IDs, categoryID)
	case ScopeProducts:
		return contains(s.IDs, productID)
	default:
		return false
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Coupon is a promotional discount record. UsedCount is mutated only by
// successful order creation and never decremented.
type Coupon struct {
	ID                string
	Code              string
	Type              Type
	Value             decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	UsageLimit        int
	UsedCount         int
	ValidFrom         time.Time
	ValidUntil        time.Time
	IsActive          bool
	Scope             Scope
}

// NormalizeCode upper-cases and trims a user-supplied coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides coupon lookup. Codes are matched after
// normalization; absent codes yield ErrNotFound.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// UsageRecorder consumes one use of a coupon. Implementations must make
// the increment conditional on used_count < usage_limit and report
// ErrUsageExhausted when the limit has been reached, so that two
// concurrent orders cannot both consume the last use.
type UsageRecorder interface {
	IncrementUsage(ctx context.Context, couponID string) error
}

// ErrUsageExhausted is returned by UsageRecorder implementations when
// the conditional increment finds no remaining uses.
var ErrUsageExhausted = errors.New("coupon usage limit reached")
