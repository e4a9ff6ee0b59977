// Package memory implements the repositories in process memory. It backs the
// "memory" storage mode and the behaviour tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xenking/loyalty-orders/internal/domain/auth"
	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/order"
)

var _ order.UnitOfWork = (*Store)(nil)

// Store holds all entities. Writes made inside WithCustomerLock are staged
// and applied atomically when the callback succeeds.
type Store struct {
	mu        sync.RWMutex
	customers map[string]customer.Customer
	emails    map[string]string
	orders    map[string]order.Order
	keys      map[string]auth.Key

	locksMu sync.Mutex
	locks   map[string]*customerLock
}

type customerLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		customers: map[string]customer.Customer{},
		emails:    map[string]string{},
		orders:    map[string]order.Order{},
		keys:      map[string]auth.Key{},
		locks:     map[string]*customerLock{},
	}
}

// Customers returns the customer repository view of the store.
func (s *Store) Customers() *CustomerRepository { return &CustomerRepository{s: s} }

// Orders returns the order repository view of the store.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// APIKeys returns the API key repository view of the store.
func (s *Store) APIKeys() *APIKeyRepository { return &APIKeyRepository{s: s} }

type txKey struct{}

// txn collects writes until the unit of work completes.
type txn struct {
	customers map[string]customer.Customer
	orders    []order.Order
}

func txFrom(ctx context.Context) *txn {
	tx, _ := ctx.Value(txKey{}).(*txn)
	return tx
}

// WithCustomerLock serializes fn with every other call for customerID and
// applies the writes fn made through ctx only if it returns nil.
func (s *Store) WithCustomerLock(ctx context.Context, customerID string, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	unlock := s.lock(customerID)
	defer unlock()

	s.mu.RLock()
	_, ok := s.customers[customerID]
	s.mu.RUnlock()
	if !ok {
		return customer.ErrNotFound
	}

	tx := &txn{customers: map[string]customer.Customer{}}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) lock(id string) (unlock func()) {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &customerLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

func (s *Store) commit(tx *txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range tx.customers {
		if _, ok := s.customers[id]; !ok {
			return customer.ErrNotFound
		}
		if owner, ok := s.emails[c.Email]; ok && owner != id {
			return customer.ErrDuplicateEmail
		}
	}
	for _, o := range tx.orders {
		if _, ok := s.customers[o.CustomerID]; !ok {
			return customer.ErrNotFound
		}
	}

	for id, c := range tx.customers {
		s.putCustomerLocked(id, c)
	}
	for _, o := range tx.orders {
		s.orders[o.ID] = o
	}
	return nil
}

func (s *Store) putCustomerLocked(id string, c customer.Customer) {
	if prev, ok := s.customers[id]; ok && prev.Email != c.Email {
		delete(s.emails, prev.Email)
	}
	s.customers[id] = c
	s.emails[c.Email] = id
}

func sortCustomers(cs []customer.Customer) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}

func sortOrders(list []order.Order) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].OrderDate.Equal(list[j].OrderDate) {
			return list[i].OrderDate.Before(list[j].OrderDate)
		}
		return list[i].ID < list[j].ID
	})
}
