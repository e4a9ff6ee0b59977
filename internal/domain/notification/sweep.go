package notification

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/tier"
)

// CustomerFinder is the part of customer.Repository the sweep reads from.
type CustomerFinder interface {
	FindByTierAndOrderCount(ctx context.Context, t tier.Tier, count int) ([]customer.Customer, error)
}

// Ledger remembers which progression alerts were already sent. Mark returns
// true the first time it sees a (customer, order count) pair.
type Ledger interface {
	Mark(ctx context.Context, customerID string, orderCount int) (bool, error)
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Candidates int
	Sent       int
	Failed     int
}

// Sweeper re-sends progression alerts to every customer one order away from
// the next tier. It only reads customers and may run alongside order
// creation.
type Sweeper struct {
	customers CustomerFinder
	notifier  Notifier
	alerts    metric.Int64Counter
}

// NewSweeper creates a Sweeper.
func NewSweeper(customers CustomerFinder, notifier Notifier, meter metric.Meter) (*Sweeper, error) {
	alerts, err := meter.Int64Counter("loyalty.sweep.alerts",
		metric.WithDescription("Progression alerts issued by the scheduled sweep"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create sweep counter")
	}
	return &Sweeper{
		customers: customers,
		notifier:  notifier,
		alerts:    alerts,
	}, nil
}

// Run performs one sweep. Delivery failures are logged and counted; a store
// failure aborts the run.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	lg := zctx.From(ctx)

	var report SweepReport
	for _, cp := range tier.Checkpoints() {
		candidates, err := s.customers.FindByTierAndOrderCount(ctx, cp.Tier, cp.Orders)
		if err != nil {
			return report, errors.Wrapf(err, "find %s customers at %d orders", cp.Tier, cp.Orders)
		}
		report.Candidates += len(candidates)

		for _, c := range candidates {
			if err := s.notifier.SendProgressionAlert(ctx, c, 1); err != nil {
				report.Failed++
				lg.Warn("Progression alert failed",
					zap.String("customer_id", c.ID),
					zap.Error(err),
				)
				s.alerts.Add(ctx, 1, metric.WithAttributes(
					attribute.String("tier", string(cp.Tier)),
					attribute.String("result", "error"),
				))
				continue
			}
			report.Sent++
			s.alerts.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tier", string(cp.Tier)),
				attribute.String("result", "ok"),
			))
		}
	}

	lg.Info("Progression sweep finished",
		zap.Int("candidates", report.Candidates),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
