// Package handler is the JSON-over-HTTP adapter in front of the cart, order
// and coupon engines.
package handler

import (
	"net/http"

	"github.com/xenking/platter/internal/domain/cart"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/order"
)

// CustomerIDHeader carries the customer identity asserted by the gateway.
const CustomerIDHeader = "X-Customer-ID"

// APIKeyHeader carries the operator API key.
const APIKeyHeader = "api_key"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the public and operator API.
type Handler struct {
	carts   *cart.Service
	orders  *order.Service
	status  *order.StatusMachine
	coupons *coupon.Engine
	auth    *Authenticator
}

// New constructs a Handler with the required domain dependencies.
func New(
	carts *cart.Service,
	orders *order.Service,
	status *order.StatusMachine,
	coupons *coupon.Engine,
	auth *Authenticator,
) *Handler {
	return &Handler{
		carts:   carts,
		orders:  orders,
		status:  status,
		coupons: coupons,
		auth:    auth,
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cart", h.customer(h.viewCart))
	mux.HandleFunc("POST /api/cart/items", h.customer(h.addItem))
	mux.HandleFunc("PATCH /api/cart/items/{itemId}", h.customer(h.updateItem))
	mux.HandleFunc("DELETE /api/cart/items/{itemId}", h.customer(h.removeItem))
	mux.HandleFunc("DELETE /api/cart/items", h.customer(h.clearCart))
	mux.HandleFunc("PUT /api/cart/store", h.customer(h.changeStore))
	mux.HandleFunc("PUT /api/cart/order-type", h.customer(h.setOrderType))

	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("GET /api/orders/{orderId}", h.getOrder)
	mux.HandleFunc("GET /api/coupons/{code}", h.validateCoupon)

	mux.HandleFunc("POST /api/stores/{storeId}/orders/{orderId}/status", h.operator(h.transition))
	mux.HandleFunc("POST /api/coupons", h.operator(h.createCoupon))
}

type customerHandler func(w http.ResponseWriter, r *http.Request, customerID string)

// customer rejects requests without a customer identity.
func (h *Handler) customer(next customerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CustomerIDHeader)
		if id == "" {
			writeMessage(w, http.StatusUnauthorized, "customer identity required")
			return
		}
		next(w, r, id)
	}
}
