package memory

import (
	"context"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository on a Store.
type OrderRepository struct {
	s *Store
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if tx := txFrom(ctx); tx != nil {
		tx.orders = append(tx.orders, *o)
		return nil
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.customers[o.CustomerID]; !ok {
		return customer.ErrNotFound
	}
	r.s.orders[o.ID] = *o
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	if tx := txFrom(ctx); tx != nil {
		for _, o := range tx.orders {
			if o.ID == id {
				return &o, nil
			}
		}
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (r *OrderRepository) ListByCustomer(_ context.Context, customerID string) ([]order.Order, error) {
	r.s.mu.RLock()
	var out []order.Order
	for _, o := range r.s.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	r.s.mu.RUnlock()

	sortOrders(out)
	return out, nil
}

func (r *OrderRepository) List(_ context.Context) ([]order.Order, error) {
	r.s.mu.RLock()
	out := make([]order.Order, 0, len(r.s.orders))
	for _, o := range r.s.orders {
		out = append(out, o)
	}
	r.s.mu.RUnlock()

	sortOrders(out)
	return out, nil
}
