package memory

import (
	"context"
	"time"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/tier"
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository on a Store.
type CustomerRepository struct {
	s *Store
}

func (r *CustomerRepository) Create(_ context.Context, c *customer.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.emails[c.Email]; ok {
		return customer.ErrDuplicateEmail
	}
	r.s.putCustomerLocked(c.ID, *c)
	return nil
}

func (r *CustomerRepository) Update(ctx context.Context, c *customer.Customer) error {
	if tx := txFrom(ctx); tx != nil {
		tx.customers[c.ID] = *c
		return nil
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.customers[c.ID]; !ok {
		return customer.ErrNotFound
	}
	if owner, ok := r.s.emails[c.Email]; ok && owner != c.ID {
		return customer.ErrDuplicateEmail
	}
	r.s.putCustomerLocked(c.ID, *c)
	return nil
}

// Rename takes the customer's lock, so it never interleaves with a unit of
// work staging a new order count.
func (r *CustomerRepository) Rename(_ context.Context, id, name, email string, at time.Time) (*customer.Customer, error) {
	unlock := r.s.lock(id)
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	if owner, ok := r.s.emails[email]; ok && owner != id {
		return nil, customer.ErrDuplicateEmail
	}
	c.Name = name
	c.Email = email
	c.UpdatedAt = at
	r.s.putCustomerLocked(id, c)
	return &c, nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	if tx := txFrom(ctx); tx != nil {
		if c, ok := tx.customers[id]; ok {
			return &c, nil
		}
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

func (r *CustomerRepository) FindByEmail(_ context.Context, email string) (*customer.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.emails[email]
	if !ok {
		return nil, customer.ErrNotFound
	}
	c := r.s.customers[id]
	return &c, nil
}

func (r *CustomerRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	_, ok := r.s.emails[email]
	return ok, nil
}

func (r *CustomerRepository) List(_ context.Context) ([]customer.Customer, error) {
	r.s.mu.RLock()
	out := make([]customer.Customer, 0, len(r.s.customers))
	for _, c := range r.s.customers {
		out = append(out, c)
	}
	r.s.mu.RUnlock()

	sortCustomers(out)
	return out, nil
}

// Delete removes the customer and its orders.
func (r *CustomerRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.customers[id]
	if !ok {
		return customer.ErrNotFound
	}
	delete(r.s.customers, id)
	delete(r.s.emails, c.Email)
	for oid, o := range r.s.orders {
		if o.CustomerID == id {
			delete(r.s.orders, oid)
		}
	}
	return nil
}

func (r *CustomerRepository) FindByTierAndOrderCount(_ context.Context, t tier.Tier, count int) ([]customer.Customer, error) {
	r.s.mu.RLock()
	var out []customer.Customer
	for _, c := range r.s.customers {
		if c.Tier == t && c.TotalOrders == count {
			out = append(out, c)
		}
	}
	r.s.mu.RUnlock()

	sortCustomers(out)
	return out, nil
}
