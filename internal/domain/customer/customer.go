// Package customer holds the customer aggregate. A customer's tier is never
// below the tier its completed order count earns (tier >= policy(count)); it
// can be higher when seeded for a migrated customer. After creation it only
// changes through RecordOrderCompleted.
package customer

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/loyalty-orders/internal/domain/tier"
	"github.com/xenking/loyalty-orders/internal/domain/validation"
)

var (
	// ErrNotFound is returned when no customer has the requested id or email.
	ErrNotFound = errors.New("customer not found")
	// ErrDuplicateEmail is returned when an email is already registered to
	// another customer.
	ErrDuplicateEmail = errors.New("email already exists")
)

// Customer is the loyalty aggregate.
type Customer struct {
	ID          string
	Name        string
	Email       string
	Tier        tier.Tier
	TotalOrders int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transition captures the effect of one completed order on a customer.
type Transition struct {
	PreviousTier tier.Tier
	NewTier      tier.Tier
	OrderCount   int
}

// Upgraded reports whether the order moved the customer into a new tier.
func (t Transition) Upgraded() bool {
	return t.PreviousTier != t.NewTier
}

// New validates the input and returns a customer with no orders. An empty
// tier defaults to Regular. A non-default tier seeds the customer above what
// its zero order count would earn, which is how migrated customers keep their
// standing.
func New(name, email string, t tier.Tier, now time.Time) (*Customer, error) {
	name, email, err := normalize(name, email)
	if err != nil {
		return nil, err
	}
	if t == "" {
		t = tier.Regular
	}
	if !t.Valid() {
		return nil, validation.New("tier", "unknown tier "+string(t))
	}
	return &Customer{
		ID:          uuid.New().String(),
		Name:        name,
		Email:       email,
		Tier:        t,
		TotalOrders: 0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// RecordOrderCompleted counts one more order and raises the tier to what the
// new count earns. It keeps tier >= policy(count) and never lowers the tier,
// so a seeded PLATINUM customer stays PLATINUM at 10 orders.
func (c *Customer) RecordOrderCompleted() Transition {
	prev := c.Tier
	c.TotalOrders++
	c.Tier = tier.Max(c.Tier, tier.ForOrderCount(c.TotalOrders))
	return Transition{
		PreviousTier: prev,
		NewTier:      c.Tier,
		OrderCount:   c.TotalOrders,
	}
}

// Rename replaces name and email. Tier and order count are left untouched.
// Email ownership is checked by the Service, which can see other customers.
func (c *Customer) Rename(name, email string) error {
	name, email, err := normalize(name, email)
	if err != nil {
		return err
	}
	c.Name = name
	c.Email = email
	return nil
}

// OrdersUntilNextTier returns how many more orders move the customer up.
func (c *Customer) OrdersUntilNextTier() int {
	return tier.OrdersUntilNext(c.Tier, c.TotalOrders)
}

func normalize(name, email string) (string, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return "", "", validation.New("name", "name is required")
	}
	if email == "" {
		return "", "", validation.New("email", "email is required")
	}
	if !ValidEmail(email) {
		return "", "", validation.New("email", "invalid email format")
	}
	return name, email, nil
}

// ValidEmail reports whether s is a bare address such as "a@example.com".
// Display-name forms like "A <a@example.com>" are rejected.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && at < len(s)-1
}

// Repository defines persistence operations for customers.
type Repository interface {
	// Create inserts c. It returns ErrDuplicateEmail when the email is taken.
	Create(ctx context.Context, c *Customer) error
	// Update stores c. It returns ErrNotFound when c no longer exists and
	// ErrDuplicateEmail when c's email belongs to another customer.
	Update(ctx context.Context, c *Customer) error
	// Rename sets name and email only and returns the stored customer. It
	// never writes tier or order count, so it cannot undo a concurrent order.
	Rename(ctx context.Context, id, name, email string, at time.Time) (*Customer, error)
	FindByID(ctx context.Context, id string) (*Customer, error)
	FindByEmail(ctx context.Context, email string) (*Customer, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context) ([]Customer, error)
	// Delete removes the customer and its orders.
	Delete(ctx context.Context, id string) error
	FindByTierAndOrderCount(ctx context.Context, t tier.Tier, count int) ([]Customer, error)
}
