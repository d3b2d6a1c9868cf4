package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/belshop/fulfillment/internal/domain/coupon"
	"github.com/belshop/fulfillment/internal/domain/inventory"
	"github.com/belshop/fulfillment/internal/domain/product"
)

// ErrDuplicateTracking is reported by Tx.Insert when the generated
// tracking number collides with an existing order. The coordinator
// regenerates and retries inside the same unit.
var ErrDuplicateTracking = errors.New("tracking number already exists")

// Tx is one transactional unit: every write performed through it either
// commits together with the rest or leaves no trace. Reads through the
// unit observe its own uncommitted writes and lock the rows they touch.
type Tx interface {
	Ledger() inventory.Ledger
	Coupons() coupon.UsageRecorder
	Insert(ctx context.Context, o *Order) error
	Save(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
}

// ListOptions controls admin order listing.
type ListOptions struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// withDefaults applies the listing defaults: first page, ten per page,
// newest first.
func (o ListOptions) withDefaults() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.SortBy == "" {
		o.SortBy = "created_at"
	}
	if o.SortOrder != "asc" {
		o.SortOrder = "desc"
	}
	return o
}

// Offset returns the row offset for the selected page.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// Store is the order persistence boundary. WithinTx runs fn inside one
// atomic unit; the remaining methods are plain reads outside any unit.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindForTracking(ctx context.Context, trackingNumber, mobile string) ([]Order, error)
	List(ctx context.Context, opts ListOptions) ([]Order, int, error)
}

// TransitionRequest describes one requested status change.
type TransitionRequest struct {
	Status        Status
	PaymentStatus PaymentStatus
	Note          string
	ChangedBy     string
}

// PublicTracking is the reduced order projection exposed to anonymous
// tracking lookups.
type PublicTracking struct {
	TrackingNumber string         `json:"trackingNumber"`
	Status         Status         `json:"status"`
	PaymentStatus  PaymentStatus  `json:"paymentStatus"`
	Items          []TrackedItem  `json:"items"`
	StatusHistory  []HistoryEntry `json:"statusHistory"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// TrackedItem is the item summary inside a tracking response.
type TrackedItem struct {
	Title    string `json:"title"`
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

// Service coordinates order creation and lifecycle transitions. It owns
// the multi-entity transactional unit: stock reservations, the coupon
// usage counter, and the order record change together or not at all.
type Service struct {
	products product.Repository
	coupons  *coupon.Engine
	store    Store
	now      func() time.Time
}

// NewService creates a Service with the required collaborators.
func NewService(products product.Repository, coupons *coupon.Engine, store Store) *Service {
	return &Service{
		products: products,
		coupons:  coupons,
		store:    store,
		now:      time.Now,
	}
}

// CreateOrder prices the cart, evaluates the coupon, and then reserves
// stock, consumes the coupon use, and persists the order in one atomic
// unit. Any failure before commit leaves zero observable side effects.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	pc, err := priceCart(req.Items, productMap)
	if err != nil {
		return nil, err
	}

	// Read-only coupon evaluation; the usage counter is consumed later,
	// inside the transaction, so a coupon is never spent on an order
	// that does not commit.
	var eval coupon.Evaluation
	if req.CouponCode != "" {
		eval, err = s.coupons.Evaluate(ctx, req.CouponCode, pc.lines)
		if err != nil {
			return nil, errors.Wrap(err, "evaluate coupon")
		}
		if !eval.Valid {
			return nil, &CouponRejectedError{Message: eval.Message}
		}
	}

	o := build(req, pc, eval, s.now())

	err = s.store.WithinTx(ctx, func(tx Tx) error {
		for _, item := range o.Items {
			if err := tx.Ledger().Reserve(ctx, item.ProductID, item.ProductSizeID, item.Quantity); err != nil {
				return err
			}
		}

		if o.CouponID != "" {
			if err := tx.Coupons().IncrementUsage(ctx, o.CouponID); err != nil {
				if errors.Is(err, coupon.ErrUsageExhausted) {
					return &CouponRejectedError{Message: "This coupon has reached its usage limit."}
				}
				return err
			}
		}

		if err := tx.Insert(ctx, o); err != nil {
			if errors.Is(err, ErrDuplicateTracking) {
				o.TrackingNumber = newTrackingNumber(s.now())
				return tx.Insert(ctx, o)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "create order")
	}

	return o, nil
}

// TransitionStatus applies one lifecycle transition. Transitioning to
// the current status is a no-op apart from an optional payment update
// or note-only history entry; cancelling a stock-holding order releases
// every item's reservation inside the same unit as the status write.
func (s *Service) TransitionStatus(ctx context.Context, orderID string, req TransitionRequest) (*Order, error) {
	if !req.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "unknown status " + string(req.Status)}
	}
	if req.PaymentStatus != "" && !req.PaymentStatus.Valid() {
		return nil, &ValidationError{Field: "paymentStatus", Reason: "unknown payment status " + string(req.PaymentStatus)}
	}

	var result *Order
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.now()

		if o.Status == req.Status {
			if req.PaymentStatus == "" && req.Note == "" {
				result = o
				return nil
			}
			if req.PaymentStatus != "" {
				o.PaymentStatus = req.PaymentStatus
			}
			if req.Note != "" {
				o.appendHistory(o.Status, req.Note, req.ChangedBy, now)
			} else {
				o.UpdatedAt = now
			}
			result = o
			return tx.Save(ctx, o)
		}

		if !o.Status.CanTransitionTo(req.Status) {
			return &IllegalTransitionError{From: o.Status, To: req.Status}
		}

		// Reserved stock is held through pending, confirmed, and
		// shipped; cancelling from one of those states returns every
		// item's quantity exactly once.
		if req.Status == StatusCancelled && o.Status.HoldsStock() {
			for _, item := range o.Items {
				if err := tx.Ledger().Release(ctx, item.ProductID, item.ProductSizeID, item.Quantity); err != nil {
					return err
				}
			}
		}

		note := req.Note
		if note == "" {
			note = "Status changed to " + string(req.Status)
		}
		o.appendHistory(req.Status, note, req.ChangedBy, now)
		if req.PaymentStatus != "" {
			o.PaymentStatus = req.PaymentStatus
		}

		result = o
		return tx.Save(ctx, o)
	})
	if err != nil {
		return nil, classify(err, "update order status")
	}

	return result, nil
}

// GetOrder returns a single order by ID.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find order")
	}
	return o, nil
}

// ListOrders returns one page of orders plus the total count.
func (s *Service) ListOrders(ctx context.Context, opts ListOptions) ([]Order, int, error) {
	found, total, err := s.store.List(ctx, opts.withDefaults())
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return found, total, nil
}

// Track performs an anonymous lookup by tracking number or shipping
// mobile. At least one of the two must be provided.
func (s *Service) Track(ctx context.Context, trackingNumber, mobile string) ([]PublicTracking, error) {
	if trackingNumber == "" && mobile == "" {
		return nil, &ValidationError{Field: "trackingNumber", Reason: "either tracking number or mobile number is required"}
	}

	found, err := s.store.FindForTracking(ctx, trackingNumber, mobile)
	if err != nil {
		return nil, errors.Wrap(err, "track orders")
	}

	views := make([]PublicTracking, len(found))
	for i, o := range found {
		items := make([]TrackedItem, len(o.Items))
		for j, item := range o.Items {
			items[j] = TrackedItem{Title: item.Title, Size: item.Size, Quantity: item.Quantity}
		}
		views[i] = PublicTracking{
			TrackingNumber: o.TrackingNumber,
			Status:         o.Status,
			PaymentStatus:  o.PaymentStatus,
			Items:          items,
			StatusHistory:  o.StatusHistory,
			CreatedAt:      o.CreatedAt,
		}
	}
	return views, nil
}

// classify separates the errors a transactional unit may surface:
// business and validation failures pass through with their message
// intact, retryable conflicts stay recognizable, and anything else is
// an infrastructure failure reported generically after rollback.
func classify(err error, op string) error {
	var (
		couponErr     *CouponRejectedError
		stockErr      *inventory.InsufficientStockError
		illegalErr    *IllegalTransitionError
		validationErr *ValidationError
	)
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, inventory.ErrSizeNotFound),
		errors.As(err, &couponErr),
		errors.As(err, &stockErr),
		errors.As(err, &illegalErr),
		errors.As(err, &validationErr):
		return err
	default:
		return &TransactionError{Op: op, Err: err}
	}
}
