// Package handler exposes the fulfillment core over HTTP. Routing is
// chi; business logic lives in the order service, and this package only
// maps requests and domain errors to wire shapes.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/belshop/fulfillment/internal/domain/inventory"
	"github.com/belshop/fulfillment/internal/domain/order"
)

// Handler wires the order service to the HTTP routes.
type Handler struct {
	orders   *order.Service
	security *Security
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(orders *order.Service, security *Security) *Handler {
	return &Handler{
		orders:   orders,
		security: security,
	}
}

// Routes returns the chi router for the /api surface. Order creation
// and tracking are public; listing, lookup, and status changes require
// an API key.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Post("/track", h.TrackOrder)

		r.Group(func(r chi.Router) {
			r.Use(h.security.RequireAPIKey)
			r.Get("/", h.ListOrders)
			r.Get("/{id}", h.GetOrder)
			r.Patch("/{id}/status", h.UpdateOrderStatus)
		})
	})
	return r
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorBody{Code: status, Message: message})
}

// writeDomainError maps domain errors to HTTP statuses. Business and
// validation failures keep their original message; infrastructure
// failures are reported generically.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *order.ValidationError
		quantityErr   *order.InvalidQuantityError
		unavailErr    *order.ProductUnavailableError
		sizeErr       *order.InvalidSizeError
		stockErr      *inventory.InsufficientStockError
		couponErr     *order.CouponRejectedError
		illegalErr    *order.IllegalTransitionError
		txErr         *order.TransactionError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.As(err, &validationErr),
		errors.As(err, &quantityErr):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Order not found.")
	case errors.As(err, &unavailErr),
		errors.As(err, &sizeErr),
		errors.As(err, &stockErr),
		errors.As(err, &couponErr),
		errors.As(err, &illegalErr),
		errors.Is(err, inventory.ErrSizeNotFound):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrConflict):
		writeError(w, r, http.StatusConflict, "The order could not be placed due to a concurrent update. Please retry.")
	case errors.As(err, &txErr):
		zctx.From(r.Context()).Error("transaction failed", zap.Error(txErr.Err))
		writeError(w, r, http.StatusInternalServerError, txErr.Error())
	default:
		zctx.From(r.Context()).Error("unhandled error", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "Internal server error.")
	}
}
