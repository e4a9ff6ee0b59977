package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/loyalty-orders/internal/domain/tier"
)

// CreateRequest holds the input for registering a customer.
type CreateRequest struct {
	Name  string
	Email string
	// Tier is optional. Empty means Regular.
	Tier tier.Tier
}

// UpdateRequest holds the editable customer fields.
type UpdateRequest struct {
	Name  string
	Email string
}

// Service encapsulates customer management.
type Service struct {
	customers Repository
	now       func() time.Time
}

// NewService creates a customer Service.
func NewService(customers Repository) *Service {
	return &Service{
		customers: customers,
		now:       time.Now,
	}
}

// Create registers a new customer with zero completed orders.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Customer, error) {
	c, err := New(req.Name, req.Email, req.Tier, s.now().UTC())
	if err != nil {
		return nil, err
	}

	exists, err := s.customers.ExistsByEmail(ctx, c.Email)
	if err != nil {
		return nil, errors.Wrap(err, "check email")
	}
	if exists {
		return nil, ErrDuplicateEmail
	}

	if err := s.customers.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create customer")
	}
	return c, nil
}

// Get returns the customer with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Customer, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	return s.customers.FindByID(ctx, id)
}

// GetByEmail returns the customer registered under email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*Customer, error) {
	return s.customers.FindByEmail(ctx, strings.TrimSpace(email))
}

// List returns all customers.
func (s *Service) List(ctx context.Context) ([]Customer, error) {
	return s.customers.List(ctx)
}

// Update changes name and email of an existing customer.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Customer, error) {
	c, err := s.customers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := c.Email
	if err := c.Rename(req.Name, req.Email); err != nil {
		return nil, err
	}
	if previous != c.Email {
		exists, err := s.customers.ExistsByEmail(ctx, c.Email)
		if err != nil {
			return nil, errors.Wrap(err, "check email")
		}
		if exists {
			return nil, ErrDuplicateEmail
		}
	}

	stored, err := s.customers.Rename(ctx, id, c.Name, c.Email, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateEmail) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update customer")
	}
	return stored, nil
}

// Delete removes a customer together with its orders.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.customers.Delete(ctx, id)
}
