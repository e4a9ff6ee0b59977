package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/loyalty-orders/internal/domain/order"
)

// PlaceOrder handles POST /api/orders. The response carries the priced order;
// the customer's new tier is visible through the customer routes.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodePlaceOrder(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, *res.Order) })
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, *o) })
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeOrders(w, list)
}

// ListCustomerOrders handles GET /api/orders/customer/{customerId}.
func (h *Handler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListByCustomer(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeOrders(w, list)
}

func writeOrders(w http.ResponseWriter, list []order.Order) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, o := range list {
				encodeOrder(e, o)
			}
		})
	})
}
