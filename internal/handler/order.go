package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/belshop/fulfillment/internal/domain/order"
)

// createOrderRequest is the wire shape of a cart submission.
type createOrderRequest struct {
	ShippingAddress order.ShippingAddress `json:"shippingAddress"`
	Items           []order.CartItem      `json:"items"`
	OrderNote       string                `json:"orderNote"`
	Shipping        decimal.Decimal       `json:"shipping"`
	CouponCode      string                `json:"couponCode"`
}

// updateStatusRequest is the wire shape of an admin status change.
type updateStatusRequest struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	Note          string `json:"note"`
}

// trackOrderRequest is the wire shape of a public tracking lookup.
type trackOrderRequest struct {
	TrackingNumber string `json:"trackingNumber"`
	Mobile         string `json:"mobile"`
}

// orderResponse is the wire shape of a full order.
type orderResponse struct {
	ID              string                `json:"id"`
	TrackingNumber  string                `json:"trackingNumber"`
	ShippingAddress order.ShippingAddress `json:"shippingAddress"`
	Items           []order.Item          `json:"items"`
	OrderNote       string                `json:"orderNote,omitempty"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	Shipping        decimal.Decimal       `json:"shipping"`
	CouponID        string                `json:"couponId,omitempty"`
	DiscountAmount  decimal.Decimal       `json:"discountAmount"`
	TotalAmount     decimal.Decimal       `json:"totalAmount"`
	PaymentStatus   order.PaymentStatus   `json:"paymentStatus"`
	Status          order.Status          `json:"status"`
	StatusHistory   []order.HistoryEntry  `json:"statusHistory"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		TrackingNumber:  o.TrackingNumber,
		ShippingAddress: o.ShippingAddress,
		Items:           o.Items,
		OrderNote:       o.OrderNote,
		Subtotal:        o.Subtotal,
		Shipping:        o.Shipping,
		CouponID:        o.CouponID,
		DiscountAmount:  o.DiscountAmount,
		TotalAmount:     o.TotalAmount,
		PaymentStatus:   o.PaymentStatus,
		Status:          o.Status,
		StatusHistory:   o.StatusHistory,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// CreateOrder handles POST /api/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body.")
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), order.CreateRequest{
		ShippingAddress: req.ShippingAddress,
		Items:           req.Items,
		OrderNote:       req.OrderNote,
		Shipping:        req.Shipping,
		CouponCode:      req.CouponCode,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, toOrderResponse(o))
}

// TrackOrder handles POST /api/orders/track.
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	var req trackOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body.")
		return
	}

	views, err := h.orders.Track(r.Context(), req.TrackingNumber, req.Mobile)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, views)
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

// listResponse wraps one page of orders with pagination metadata.
type listResponse struct {
	Meta listMeta        `json:"meta"`
	Data []orderResponse `json:"data"`
}

type listMeta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := order.ListOptions{
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		opts.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = v
	}

	found, total, err := h.orders.ListOrders(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	data := make([]orderResponse, len(found))
	for i := range found {
		data[i] = toOrderResponse(&found[i])
	}

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 10
	}
	writeJSON(w, r, http.StatusOK, listResponse{
		Meta: listMeta{Page: opts.Page, Limit: opts.Limit, Total: total},
		Data: data,
	})
}

// UpdateOrderStatus handles PATCH /api/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body.")
		return
	}

	o, err := h.orders.TransitionStatus(r.Context(), chi.URLParam(r, "id"), order.TransitionRequest{
		Status:        order.Status(req.Status),
		PaymentStatus: order.PaymentStatus(req.PaymentStatus),
		Note:          req.Note,
		ChangedBy:     APIKeyNameFromContext(r.Context()),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}
