package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no order has the requested id.
var ErrNotFound = errors.New("order not found")

// Order is a priced order. Discount and final amount are fixed at creation
// from the tier the customer held at that moment.
type Order struct {
	ID             string
	CustomerID     string
	Amount         decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	OrderDate      time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
}

// UnitOfWork serializes work on a single customer. WithCustomerLock runs fn
// so that concurrent calls for the same customer id never overlap, and all
// repository writes made through the ctx passed to fn are committed together
// or not at all.
type UnitOfWork interface {
	WithCustomerLock(ctx context.Context, customerID string, fn func(ctx context.Context) error) error
}
