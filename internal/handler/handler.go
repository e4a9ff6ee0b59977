// Package handler exposes customers and orders over a JSON REST API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/order"
)

// Handler serves the /api routes.
type Handler struct {
	customers *customer.Service
	orders    *order.Service
}

// NewHandler creates a Handler.
func NewHandler(customers *customer.Service, orders *order.Service) *Handler {
	return &Handler{
		customers: customers,
		orders:    orders,
	}
}

// Router returns the API routes. Mutating routes pass through write, which
// is usually RequireAPIKey. A nil write leaves them open.
func (h *Handler) Router(write func(http.Handler) http.Handler) chi.Router {
	if write == nil {
		write = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/customers", func(r chi.Router) {
		r.Get("/", h.ListCustomers)
		r.Get("/{id}", h.GetCustomer)
		r.Get("/email/{email}", h.GetCustomerByEmail)
		r.Group(func(r chi.Router) {
			r.Use(write)
			r.Post("/", h.CreateCustomer)
			r.Put("/{id}", h.UpdateCustomer)
			r.Delete("/{id}", h.DeleteCustomer)
		})
	})
	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Get("/customer/{customerId}", h.ListCustomerOrders)
		r.With(write).Post("/", h.PlaceOrder)
	})
	return r
}
