package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
)

// CreateCustomer handles POST /api/customers.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	in, err := decodeCustomer(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.customers.Create(r.Context(), customer.CreateRequest{
		Name:  in.Name,
		Email: in.Email,
		Tier:  in.Tier,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCustomer(e, *c) })
}

// GetCustomer handles GET /api/customers/{id}.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCustomer(e, *c) })
}

// GetCustomerByEmail handles GET /api/customers/email/{email}.
func (h *Handler) GetCustomerByEmail(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.GetByEmail(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCustomer(e, *c) })
}

// ListCustomers handles GET /api/customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	list, err := h.customers.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, c := range list {
				encodeCustomer(e, c)
			}
		})
	})
}

// UpdateCustomer handles PUT /api/customers/{id}. Only name and email change;
// a tier in the body is ignored.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	in, err := decodeCustomer(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.customers.Update(r.Context(), chi.URLParam(r, "id"), customer.UpdateRequest{
		Name:  in.Name,
		Email: in.Email,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCustomer(e, *c) })
}

// DeleteCustomer handles DELETE /api/customers/{id}.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.customers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
