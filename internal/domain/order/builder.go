package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/belshop/fulfillment/internal/domain/coupon"
	"github.com/belshop/fulfillment/internal/domain/inventory"
	"github.com/belshop/fulfillment/internal/domain/product"
)

// CartItem is one line of the submitted cart, before pricing.
type CartItem struct {
	ProductID     string `json:"productId"`
	ProductSizeID string `json:"productSizeId"`
	Quantity      int    `json:"quantity"`
}

// CreateRequest holds the input for placing an order. Shipping is a
// pre-computed cost supplied by the caller.
type CreateRequest struct {
	ShippingAddress ShippingAddress
	Items           []CartItem
	OrderNote       string
	Shipping        decimal.Decimal
	CouponCode      string
}

// Validate checks the request shape before any catalog lookups or
// mutations happen.
func (r *CreateRequest) Validate() error {
	if len(r.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range r.Items {
		if item.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: item.ProductID}
		}
	}
	switch {
	case r.ShippingAddress.CustomerName == "":
		return &ValidationError{Field: "shippingAddress.customerName", Reason: "required"}
	case r.ShippingAddress.Mobile == "":
		return &ValidationError{Field: "shippingAddress.mobile", Reason: "required"}
	case r.ShippingAddress.District == "":
		return &ValidationError{Field: "shippingAddress.district", Reason: "required"}
	case r.ShippingAddress.AddressLine == "":
		return &ValidationError{Field: "shippingAddress.addressLine", Reason: "required"}
	}
	if r.Shipping.IsNegative() {
		return &ValidationError{Field: "shipping", Reason: "must not be negative"}
	}
	return nil
}

// pricedCart is the result of resolving a cart against the catalog:
// immutable item snapshots, coupon engine lines, and the cart subtotal.
type pricedCart struct {
	items    []Item
	lines    []coupon.Line
	subtotal decimal.Decimal
}

// priceCart resolves every cart line against the catalog snapshot,
// taking the priceOverride when the size carries one. The stock check
// here is advisory only; the ledger re-checks under the transaction
// because stock can change between pre-check and commit.
func priceCart(cartItems []CartItem, products map[string]product.Product) (pricedCart, error) {
	pc := pricedCart{
		items:    make([]Item, 0, len(cartItems)),
		lines:    make([]coupon.Line, 0, len(cartItems)),
		subtotal: decimal.Zero,
	}

	for _, item := range cartItems {
		p, ok := products[item.ProductID]
		if !ok {
			return pricedCart{}, &ProductUnavailableError{ProductID: item.ProductID, Missing: true}
		}
		if !p.IsActive {
			return pricedCart{}, &ProductUnavailableError{ProductID: p.ID, Title: p.Title}
		}

		size := p.FindSize(item.ProductSizeID)
		if size == nil {
			return pricedCart{}, &InvalidSizeError{ProductID: p.ID, SizeID: item.ProductSizeID, Title: p.Title}
		}
		if size.Stock < item.Quantity {
			return pricedCart{}, &inventory.InsufficientStockError{
				ProductID: p.ID,
				SizeID:    size.ID,
				Available: size.Stock,
				Requested: item.Quantity,
			}
		}

		unitPrice := p.UnitPrice(size)
		totalPrice := unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		pc.subtotal = pc.subtotal.Add(totalPrice)

		pc.items = append(pc.items, Item{
			ProductID:     p.ID,
			ProductSizeID: size.ID,
			Title:         p.Title,
			Size:          size.Label,
			Image:         p.FirstImage(),
			Quantity:      item.Quantity,
			UnitPrice:     unitPrice,
			TotalPrice:    totalPrice,
		})
		pc.lines = append(pc.lines, coupon.Line{
			ProductID:  p.ID,
			CategoryID: p.Category,
			UnitPrice:  unitPrice,
			Quantity:   item.Quantity,
		})
	}

	return pc, nil
}

const trackingPrefix = "BEL"

var trackingAlphabet = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ")

// newTrackingNumber generates a short, shareable identifier: the last
// eight digits of the unix timestamp plus four random characters, e.g.
// BEL-78886400-K7QD. The generator does not guarantee uniqueness; the
// storage layer's unique index does.
func newTrackingNumber(now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	if len(ts) > 8 {
		ts = ts[len(ts)-8:]
	}

	suffix := make([]byte, 4)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(trackingAlphabet))))
		if err != nil {
			// crypto/rand failing means the platform entropy source is
			// broken; no meaningful recovery exists here.
			panic(err)
		}
		suffix[i] = trackingAlphabet[n.Int64()]
	}

	return fmt.Sprintf("%s-%s-%s", trackingPrefix, ts, suffix)
}

// build assembles a new Order from the priced cart and the coupon
// evaluation. The discount is already clamped to the eligible subtotal,
// so the total is non-negative by construction.
func build(req CreateRequest, pc pricedCart, eval coupon.Evaluation, now time.Time) *Order {
	discount := decimal.Zero
	couponID := ""
	if eval.Valid && eval.Coupon != nil {
		discount = eval.DiscountAmount
		couponID = eval.Coupon.ID
	}

	o := &Order{
		ID:              uuid.New().String(),
		TrackingNumber:  newTrackingNumber(now),
		ShippingAddress: req.ShippingAddress,
		Items:           pc.items,
		OrderNote:       req.OrderNote,
		Subtotal:        pc.subtotal,
		Shipping:        req.Shipping,
		CouponID:        couponID,
		DiscountAmount:  discount,
		TotalAmount:     pc.subtotal.Add(req.Shipping).Sub(discount),
		PaymentStatus:   PaymentPending,
		CreatedAt:       now,
	}
	o.appendHistory(StatusPending, "Order placed", "", now)
	return o
}
