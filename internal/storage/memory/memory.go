// Package memory provides in-memory implementations of the fulfillment
// storage interfaces. The whole store sits behind one mutex and the
// unit of work restores a snapshot on failure, which gives tests the
// same all-or-nothing and isolation guarantees as the real database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/belshop/fulfillment/internal/domain/coupon"
	"github.com/belshop/fulfillment/internal/domain/inventory"
	"github.com/belshop/fulfillment/internal/domain/order"
	"github.com/belshop/fulfillment/internal/domain/product"
)

// Store is an in-memory database holding products, coupons, and orders.
// It implements product.Repository, coupon.Repository, and order.Store.
type Store struct {
	mu       sync.Mutex
	products map[string]product.Product
	coupons  map[string]coupon.Coupon
	byCode   map[string]string
	orders   map[string]order.Order

	// InsertErr, when non-nil, is returned by the next order insert.
	// Tests use it to simulate an infrastructure failure mid-unit.
	InsertErr error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		products: make(map[string]product.Product),
		coupons:  make(map[string]coupon.Coupon),
		byCode:   make(map[string]string),
		orders:   make(map[string]order.Order),
	}
}

// AddProduct seeds a product (with its sizes) into the store.
func (s *Store) AddProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = copyProduct(p)
}

// AddCoupon seeds a coupon into the store.
func (s *Store) AddCoupon(c coupon.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[c.ID] = copyCoupon(c)
	s.byCode[coupon.NormalizeCode(c.Code)] = c.ID
}

// Stock returns the current stock of a size, or -1 if it is unknown.
func (s *Store) Stock(productID, sizeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return -1
	}
	if size := p.FindSize(sizeID); size != nil {
		return size.Stock
	}
	return -1
}

// UsedCount returns a coupon's usage counter, or -1 if it is unknown.
func (s *Store) UsedCount(couponID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[couponID]
	if !ok {
		return -1
	}
	return c.UsedCount
}

// OrderCount returns the number of persisted orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// GetByIDs implements product.Repository.
func (s *Store) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := make([]product.Product, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := s.products[id]; ok {
			found = append(found, copyProduct(p))
		}
	}
	return found, nil
}

// FindByCode implements coupon.Repository.
func (s *Store) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	c := copyCoupon(s.coupons[id])
	return &c, nil
}

// WithinTx implements order.Store. The store mutex is held for the
// whole unit, serializing concurrent units; on error every mutation the
// unit made is rolled back from a snapshot.
func (s *Store) WithinTx(_ context.Context, fn func(tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// FindByID implements order.Store.
func (s *Store) FindByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findOrderLocked(id)
}

// FindForTracking implements order.Store.
func (s *Store) FindForTracking(_ context.Context, trackingNumber, mobile string) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []order.Order
	for _, o := range s.orders {
		if (trackingNumber != "" && o.TrackingNumber == trackingNumber) ||
			(mobile != "" && o.ShippingAddress.Mobile == mobile) {
			found = append(found, copyOrder(o))
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].CreatedAt.After(found[j].CreatedAt)
	})
	return found, nil
}

// List implements order.Store.
func (s *Store) List(_ context.Context, opts order.ListOptions) ([]order.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		all = append(all, copyOrder(o))
	}
	asc := opts.SortOrder == "asc"
	sort.Slice(all, func(i, j int) bool {
		before := all[i].CreatedAt.Before(all[j].CreatedAt)
		if asc {
			return before
		}
		return !before
	})

	total := len(all)
	start := opts.Offset()
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// findOrderLocked returns a copy of the stored order. Caller holds mu.
func (s *Store) findOrderLocked(id string) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	c := copyOrder(o)
	return &c, nil
}

// storeSnapshot captures the mutable state a unit of work may touch.
type storeSnapshot struct {
	products map[string]product.Product
	coupons  map[string]coupon.Coupon
	orders   map[string]order.Order
}

func (s *Store) snapshot() storeSnapshot {
	snap := storeSnapshot{
		products: make(map[string]product.Product, len(s.products)),
		coupons:  make(map[string]coupon.Coupon, len(s.coupons)),
		orders:   make(map[string]order.Order, len(s.orders)),
	}
	for id, p := range s.products {
		snap.products[id] = copyProduct(p)
	}
	for id, c := range s.coupons {
		snap.coupons[id] = copyCoupon(c)
	}
	for id, o := range s.orders {
		snap.orders[id] = copyOrder(o)
	}
	return snap
}

func (s *Store) restore(snap storeSnapshot) {
	s.products = snap.products
	s.coupons = snap.coupons
	s.orders = snap.orders
}

// memTx is one unit of work over the locked store.
type memTx struct {
	store *Store
}

func (t *memTx) Ledger() inventory.Ledger { return &memLedger{store: t.store} }

func (t *memTx) Coupons() coupon.UsageRecorder { return &memUsage{store: t.store} }

func (t *memTx) Insert(_ context.Context, o *order.Order) error {
	if err := t.store.InsertErr; err != nil {
		t.store.InsertErr = nil
		return err
	}
	for _, existing := range t.store.orders {
		if existing.TrackingNumber == o.TrackingNumber {
			return order.ErrDuplicateTracking
		}
	}
	t.store.orders[o.ID] = copyOrder(*o)
	return nil
}

func (t *memTx) Save(_ context.Context, o *order.Order) error {
	if _, ok := t.store.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	t.store.orders[o.ID] = copyOrder(*o)
	return nil
}

func (t *memTx) FindByID(_ context.Context, id string) (*order.Order, error) {
	return t.store.findOrderLocked(id)
}

// memLedger mutates stock counters under the unit's lock.
type memLedger struct {
	store *Store
}

func (l *memLedger) Reserve(_ context.Context, productID, sizeID string, qty int) error {
	size, err := l.findSize(productID, sizeID)
	if err != nil {
		return err
	}
	if size.Stock < qty {
		return &inventory.InsufficientStockError{
			ProductID: productID,
			SizeID:    sizeID,
			Available: size.Stock,
			Requested: qty,
		}
	}
	size.Stock -= qty
	return nil
}

func (l *memLedger) Release(_ context.Context, productID, sizeID string, qty int) error {
	size, err := l.findSize(productID, sizeID)
	if err != nil {
		return err
	}
	size.Stock += qty
	return nil
}

func (l *memLedger) findSize(productID, sizeID string) (*product.Size, error) {
	p, ok := l.store.products[productID]
	if !ok {
		return nil, inventory.ErrSizeNotFound
	}
	size := p.FindSize(sizeID)
	if size == nil {
		return nil, inventory.ErrSizeNotFound
	}
	return size, nil
}

// memUsage consumes coupon uses under the unit's lock.
type memUsage struct {
	store *Store
}

func (u *memUsage) IncrementUsage(_ context.Context, couponID string) error {
	c, ok := u.store.coupons[couponID]
	if !ok {
		return coupon.ErrNotFound
	}
	if c.UsedCount >= c.UsageLimit {
		return coupon.ErrUsageExhausted
	}
	c.UsedCount++
	u.store.coupons[couponID] = c
	return nil
}

func copyProduct(p product.Product) product.Product {
	cp := p
	cp.Images = append([]string(nil), p.Images...)
	cp.Sizes = make([]product.Size, len(p.Sizes))
	for i, size := range p.Sizes {
		cp.Sizes[i] = size
		if size.PriceOverride != nil {
			v := *size.PriceOverride
			cp.Sizes[i].PriceOverride = &v
		}
	}
	return cp
}

func copyCoupon(c coupon.Coupon) coupon.Coupon {
	cc := c
	cc.Scope.IDs = append([]string(nil), c.Scope.IDs...)
	if c.MinOrderAmount != nil {
		v := *c.MinOrderAmount
		cc.MinOrderAmount = &v
	}
	if c.MaxDiscountAmount != nil {
		v := *c.MaxDiscountAmount
		cc.MaxDiscountAmount = &v
	}
	return cc
}

func copyOrder(o order.Order) order.Order {
	co := o
	co.Items = append([]order.Item(nil), o.Items...)
	co.StatusHistory = append([]order.HistoryEntry(nil), o.StatusHistory...)
	return co
}
