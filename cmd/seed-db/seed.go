package main

import (
	"context"
	"os"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/order"
	"github.com/xenking/loyalty-orders/internal/domain/tier"
)

type seedFile struct {
	Customers []seedCustomer `yaml:"customers"`
}

type seedCustomer struct {
	Name   string            `yaml:"name"`
	Email  string            `yaml:"email"`
	Tier   string            `yaml:"tier"`
	Orders []decimal.Decimal `yaml:"orders"`
}

func readSeed(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read customers file")
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse customers file")
	}
	return &f, nil
}

type seeder struct {
	lg        *zap.Logger
	customers *customer.Service
	orders    *order.Service
}

// seedCustomers creates each customer once. Customers already present by
// email are left alone, so running the seed twice does not double orders.
func (s *seeder) seedCustomers(ctx context.Context, list []seedCustomer) error {
	for _, sc := range list {
		var t tier.Tier
		if sc.Tier != "" {
			parsed, err := tier.Parse(sc.Tier)
			if err != nil {
				return errors.Wrapf(err, "customer %s", sc.Email)
			}
			t = parsed
		}

		c, err := s.customers.Create(ctx, customer.CreateRequest{Name: sc.Name, Email: sc.Email, Tier: t})
		if errors.Is(err, customer.ErrDuplicateEmail) {
			s.lg.Info("Customer exists, skipping", zap.String("email", sc.Email))
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "create customer %s", sc.Email)
		}

		for _, amount := range sc.Orders {
			if _, err := s.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
				CustomerID: c.ID,
				Amount:     decimal.NewNullDecimal(amount),
			}); err != nil {
				return errors.Wrapf(err, "place order for %s", sc.Email)
			}
		}

		got, err := s.customers.Get(ctx, c.ID)
		if err != nil {
			return errors.Wrapf(err, "reload customer %s", sc.Email)
		}
		s.lg.Info("Seeded customer",
			zap.String("email", got.Email),
			zap.String("tier", got.Tier.String()),
			zap.Int("orders", got.TotalOrders),
		)
	}
	return nil
}
