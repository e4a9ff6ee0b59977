// Package order implements order creation: validation, tier pricing,
// persistence, customer progression and notification.
package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/notification"
	"github.com/xenking/loyalty-orders/internal/domain/tier"
	"github.com/xenking/loyalty-orders/internal/domain/validation"
)

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	CustomerID string
	Amount     decimal.NullDecimal
	// OrderDate is optional. Zero means now.
	OrderDate time.Time
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order      *Order
	Customer   customer.Customer
	Transition customer.Transition
	Decision   notification.Decision
}

// Service encapsulates order placement business logic.
type Service struct {
	customers customer.Repository
	orders    Repository
	uow       UnitOfWork
	notifier  notification.Notifier
	now       func() time.Time

	placed   metric.Int64Counter
	upgraded metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	customers customer.Repository,
	orders Repository,
	uow UnitOfWork,
	notifier notification.Notifier,
	meter metric.Meter,
) (*Service, error) {
	placed, err := meter.Int64Counter("loyalty.orders.placed",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	upgraded, err := meter.Int64Counter("loyalty.customers.upgraded",
		metric.WithDescription("Customers moved into a higher tier"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create upgrades counter")
	}
	return &Service{
		customers: customers,
		orders:    orders,
		uow:       uow,
		notifier:  notifier,
		now:       time.Now,
		placed:    placed,
		upgraded:  upgraded,
	}, nil
}

// maxAmount is the first value that no longer fits NUMERIC(12,2).
var maxAmount = decimal.New(1, 10)

func validate(req PlaceOrderRequest) error {
	if strings.TrimSpace(req.CustomerID) == "" {
		return validation.New("customerId", "customer id required")
	}
	if !req.Amount.Valid {
		return validation.New("amount", "amount required")
	}
	amount := req.Amount.Decimal
	if !amount.IsPositive() {
		return validation.New("amount", "amount must be positive")
	}
	if !amount.Equal(amount.Truncate(2)) {
		return validation.New("amount", "amount must have at most 2 decimal places")
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return validation.New("amount", "amount must be less than "+maxAmount.String())
	}
	return nil
}

// PlaceOrder prices the order at the customer's current tier, stores it,
// advances the customer and then notifies. Pricing, the order insert and the
// customer update run under the customer's lock and commit together.
// Notification failures are logged and never fail the order.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var result PlaceOrderResult
	if err := s.uow.WithCustomerLock(ctx, req.CustomerID, func(ctx context.Context) error {
		c, err := s.customers.FindByID(ctx, req.CustomerID)
		if err != nil {
			return err
		}

		pricing := tier.Apply(req.Amount.Decimal, c.Tier)
		date := req.OrderDate
		if date.IsZero() {
			date = s.now()
		}
		o := &Order{
			ID:             uuid.New().String(),
			CustomerID:     c.ID,
			Amount:         req.Amount.Decimal,
			DiscountAmount: pricing.Discount,
			FinalAmount:    pricing.Final,
			OrderDate:      date.UTC(),
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		tr := c.RecordOrderCompleted()
		c.UpdatedAt = s.now().UTC()
		if err := s.customers.Update(ctx, c); err != nil {
			return errors.Wrap(err, "update customer")
		}

		result = PlaceOrderResult{
			Order:      o,
			Customer:   *c,
			Transition: tr,
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.placed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", string(result.Transition.PreviousTier)),
	))
	if result.Transition.Upgraded() {
		s.upgraded.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tier", string(result.Transition.NewTier)),
		))
	}

	result.Decision = notification.Decide(result.Transition)
	if err := notification.Dispatch(ctx, s.notifier, result.Customer, result.Decision); err != nil {
		zctx.From(ctx).Warn("Notification dispatch failed",
			zap.String("customer_id", result.Customer.ID),
			zap.String("kind", string(result.Decision.Kind)),
			zap.Error(err),
		)
	}

	return &result, nil
}

// Get returns the order with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	return s.orders.FindByID(ctx, id)
}

// List returns all orders.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

// ListByCustomer returns the orders of an existing customer.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	if _, err := s.customers.FindByID(ctx, customerID); err != nil {
		return nil, err
	}
	return s.orders.ListByCustomer(ctx, customerID)
}
