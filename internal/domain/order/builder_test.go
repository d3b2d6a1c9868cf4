package order

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belshop/fulfillment/internal/domain/coupon"
	"github.com/belshop/fulfillment/internal/domain/inventory"
	"github.com/belshop/fulfillment/internal/domain/product"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testAddress() ShippingAddress {
	return ShippingAddress{
		CustomerName: "Ayesha Rahman",
		Mobile:       "01711111111",
		District:     "Dhaka",
		AddressLine:  "12 Green Road",
		PostalCode:   "1205",
	}
}

func testCatalog() map[string]product.Product {
	override := dec("124.00")
	return map[string]product.Product{
		"sneaker": {
			ID:        "sneaker",
			Title:     "Classic Leather Sneaker",
			BasePrice: dec("20.00"),
			Category:  "shoes",
			Images:    []string{"sneaker-1.jpg", "sneaker-2.jpg"},
			IsActive:  true,
			Sizes: []product.Size{
				{ID: "sneaker-42", Label: "42", Stock: 5},
				{ID: "sneaker-43", Label: "43", Stock: 0},
			},
		},
		"runner": {
			ID:        "runner",
			Title:     "Trail Runner Pro",
			BasePrice: dec("119.00"),
			Category:  "shoes",
			IsActive:  true,
			Sizes: []product.Size{
				{ID: "runner-42", Label: "42", Stock: 10, PriceOverride: &override},
			},
		},
		"retired": {
			ID:        "retired",
			Title:     "Retired Model",
			BasePrice: dec("10.00"),
			Category:  "shoes",
			IsActive:  false,
			Sizes:     []product.Size{{ID: "retired-40", Label: "40", Stock: 3}},
		},
	}
}

func TestCreateRequest_Validate(t *testing.T) {
	valid := CreateRequest{
		ShippingAddress: testAddress(),
		Items:           []CartItem{{ProductID: "sneaker", ProductSizeID: "sneaker-42", Quantity: 1}},
		Shipping:        dec("5.00"),
	}
	require.NoError(t, valid.Validate())

	t.Run("empty items", func(t *testing.T) {
		r := valid
		r.Items = nil
		assert.ErrorIs(t, r.Validate(), ErrEmptyItems)
	})

	t.Run("zero quantity", func(t *testing.T) {
		r := valid
		r.Items = []CartItem{{ProductID: "sneaker", ProductSizeID: "sneaker-42", Quantity: 0}}
		var qtyErr *InvalidQuantityError
		assert.ErrorAs(t, r.Validate(), &qtyErr)
	})

	t.Run("negative quantity", func(t *testing.T) {
		r := valid
		r.Items = []CartItem{{ProductID: "sneaker", ProductSizeID: "sneaker-42", Quantity: -2}}
		var qtyErr *InvalidQuantityError
		assert.ErrorAs(t, r.Validate(), &qtyErr)
	})

	t.Run("missing address fields", func(t *testing.T) {
		for _, field := range []string{"customerName", "mobile", "district", "addressLine"} {
			r := valid
			addr := testAddress()
			switch field {
			case "customerName":
				addr.CustomerName = ""
			case "mobile":
				addr.Mobile = ""
			case "district":
				addr.District = ""
			case "addressLine":
				addr.AddressLine = ""
			}
			r.ShippingAddress = addr

			var vErr *ValidationError
			require.ErrorAs(t, r.Validate(), &vErr, "field %s", field)
		}
	})

	t.Run("negative shipping", func(t *testing.T) {
		r := valid
		r.Shipping = dec("-1.00")
		var vErr *ValidationError
		require.ErrorAs(t, r.Validate(), &vErr)
		assert.Equal(t, "shipping", vErr.Field)
	})
}

func TestPriceCart(t *testing.T) {
	catalog := testCatalog()

	t.Run("snapshots title size image and price", func(t *testing.T) {
		pc, err := priceCart([]CartItem{
			{ProductID: "sneaker", ProductSizeID: "sneaker-42", Quantity: 2},
		}, catalog)
		require.NoError(t, err)

		require.Len(t, pc.items, 1)
		item := pc.items[0]
		assert.Equal(t, "Classic Leather Sneaker", item.Title)
		assert.Equal(t, "42", item.Size)
		assert.Equal(t, "sneaker-1.jpg", item.Image)
		assert.Equal(t, 2, item.Quantity)
		assert.Equal(t, "20.00", item.UnitPrice.StringFixed(2))
		assert.Equal(t, "40.00", item.TotalPrice.StringFixed(2))
		assert.Equal(t, "40.00", pc.subtotal.StringFixed(2))
	})

	t.Run("size price override wins over base price", func(t *testing.T) {
		pc, err := priceCart([]CartItem{
			{ProductID: "runner", ProductSizeID: "runner-42", Quantity: 1},
		}, catalog)
		require.NoError(t, err)
		assert.Equal(t, "124.00", pc.items[0].UnitPrice.StringFixed(2))
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := priceCart([]CartItem{
			{ProductID: "ghost", ProductSizeID: "ghost-1", Quantity: 1},
		}, catalog)
		var unavailable *ProductUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.True(t, unavailable.Missing)
	})

	t.Run("inactive product", func(t *testing.T) {
		_, err := priceCart([]CartItem{
			{ProductID: "retired", ProductSizeID: "retired-40", Quantity: 1},
		}, catalog)
		var unavailable *ProductUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.False(t, unavailable.Missing)
	})

	t.Run("unknown size", func(t *testing.T) {
		_, err := priceCart([]CartItem{
			{ProductID: "sneaker", ProductSizeID: "sneaker-99", Quantity: 1},
		}, catalog)
		var sizeErr *InvalidSizeError
		require.ErrorAs(t, err, &sizeErr)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		_, err := priceCart([]CartItem{
			{ProductID: "sneaker", ProductSizeID: "sneaker-42", Quantity: 6},
		}, catalog)
		var stockErr *inventory.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 5, stockErr.Available)
		assert.Equal(t, 6, stockErr.Requested)
	})
}

func TestNewTrackingNumber(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	re := regexp.MustCompile(`^BEL-\d{8}-[0-9A-Z]{4}$`)

	seen := make(map[string]bool)
	for range 50 {
		tn := newTrackingNumber(now)
		assert.Regexp(t, re, tn)
		seen[tn] = true
	}
	// 50 draws over a 36^4 suffix space should not all collide.
	assert.Greater(t, len(seen), 1)
}

func TestBuild(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	catalog := testCatalog()

	req := CreateRequest{
		ShippingAddress: testAddress(),
		Items:           []CartItem{{ProductID: "sneaker", ProductSizeID: "sneaker-42", Quantity: 2}},
		OrderNote:       "leave at the door",
		Shipping:        dec("5.00"),
	}
	pc, err := priceCart(req.Items, catalog)
	require.NoError(t, err)

	t.Run("without coupon", func(t *testing.T) {
		o := build(req, pc, coupon.Evaluation{}, now)

		assert.NotEmpty(t, o.ID)
		assert.Equal(t, "40.00", o.Subtotal.StringFixed(2))
		assert.Equal(t, "5.00", o.Shipping.StringFixed(2))
		assert.Equal(t, "0.00", o.DiscountAmount.StringFixed(2))
		assert.Equal(t, "45.00", o.TotalAmount.StringFixed(2))
		assert.Empty(t, o.CouponID)
		assert.Equal(t, StatusPending, o.Status)
		assert.Equal(t, PaymentPending, o.PaymentStatus)
		assert.Equal(t, "leave at the door", o.OrderNote)

		require.Len(t, o.StatusHistory, 1)
		assert.Equal(t, StatusPending, o.StatusHistory[0].Status)
		assert.Equal(t, "Order placed", o.StatusHistory[0].Note)
	})

	t.Run("with coupon", func(t *testing.T) {
		eval := coupon.Evaluation{
			Valid:          true,
			DiscountAmount: dec("4.00"),
			Coupon:         &coupon.Coupon{ID: "c1", Code: "SAVE10"},
		}
		o := build(req, pc, eval, now)

		assert.Equal(t, "c1", o.CouponID)
		assert.Equal(t, "4.00", o.DiscountAmount.StringFixed(2))
		assert.Equal(t, "41.00", o.TotalAmount.StringFixed(2))
	})
}
