// Package notify delivers loyalty notifications by email, either inline from
// an in-process backlog drained by a fixed set of goroutines or through a
// queue drained by Worker.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/notification"
	"github.com/xenking/loyalty-orders/internal/mailer"
	"github.com/xenking/loyalty-orders/internal/queue"
)

// Config configures a Dispatcher. Exactly one of Sender and Publisher
// selects the delivery mode; Publisher wins when both are set.
type Config struct {
	From      string
	Sender    mailer.Sender
	Publisher queue.Publisher
	// Ledger, when set, suppresses repeated progression alerts for the same
	// customer and order count.
	Ledger      notification.Ledger
	Concurrency int
	// Backlog bounds inline deliveries waiting for a free goroutine. When it
	// is full new notifications are dropped instead of blocking the caller.
	Backlog int
	Timeout time.Duration
}

// delivery is an inline job together with the context that carries the
// logger of the call that produced it.
type delivery struct {
	ctx  context.Context
	kind notification.Kind
	job  queue.Job
}

var _ notification.Notifier = (*Dispatcher)(nil)

// Dispatcher implements notification.Notifier.
type Dispatcher struct {
	from      string
	sender    mailer.Sender
	publisher queue.Publisher
	ledger    notification.Ledger
	timeout   time.Duration

	mu      sync.RWMutex
	closed  bool
	backlog chan delivery
	wg      sync.WaitGroup

	results metric.Int64Counter
	now     func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config, meter metric.Meter) (*Dispatcher, error) {
	if cfg.Sender == nil && cfg.Publisher == nil {
		return nil, errors.New("either sender or publisher is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.Backlog < 1 {
		cfg.Backlog = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	results, err := meter.Int64Counter("loyalty.notifications",
		metric.WithDescription("Notifications by kind and result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create notifications counter")
	}
	d := &Dispatcher{
		from:      cfg.From,
		sender:    cfg.Sender,
		publisher: cfg.Publisher,
		ledger:    cfg.Ledger,
		timeout:   cfg.Timeout,
		results:   results,
		now:       time.Now,
	}
	if d.publisher == nil {
		d.backlog = make(chan delivery, cfg.Backlog)
		for range cfg.Concurrency {
			d.wg.Add(1)
			go d.deliverLoop()
		}
	}
	return d, nil
}

// SendUpgrade notifies c of the tier it now holds.
func (d *Dispatcher) SendUpgrade(ctx context.Context, c customer.Customer) error {
	return d.dispatch(ctx, notification.KindUpgrade, c, notification.UpgradeMessage(c))
}

// SendProgressionAlert tells c how many orders remain until the next tier.
func (d *Dispatcher) SendProgressionAlert(ctx context.Context, c customer.Customer, ordersRemaining int) error {
	if d.ledger != nil {
		first, err := d.ledger.Mark(ctx, c.ID, c.TotalOrders)
		switch {
		case err != nil:
			zctx.From(ctx).Warn("Alert ledger unavailable, sending anyway",
				zap.String("customer_id", c.ID),
				zap.Error(err),
			)
		case !first:
			d.record(ctx, notification.KindProgression, "skipped")
			return nil
		}
	}
	return d.dispatch(ctx, notification.KindProgression, c, notification.ProgressionMessage(c, ordersRemaining))
}

func (d *Dispatcher) dispatch(ctx context.Context, kind notification.Kind, c customer.Customer, msg notification.Message) error {
	job := queue.Job{
		ID:         uuid.New().String(),
		Kind:       string(kind),
		CustomerID: c.ID,
		To:         c.Email,
		Subject:    msg.Subject,
		Text:       msg.Body,
		CreatedAt:  d.now().UTC(),
	}

	if d.publisher != nil {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		if err := d.publisher.Publish(ctx, job); err != nil {
			d.record(ctx, kind, "error")
			return errors.Wrapf(err, "publish %s notification", kind)
		}
		d.record(ctx, kind, "queued")
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.record(ctx, kind, "dropped")
		return errors.New("dispatcher closed")
	}

	// Delivery outlives the request that triggered it.
	select {
	case d.backlog <- delivery{ctx: context.WithoutCancel(ctx), kind: kind, job: job}:
		return nil
	default:
		d.record(ctx, kind, "dropped")
		zctx.From(ctx).Warn("Notification backlog full, dropping",
			zap.String("customer_id", job.CustomerID),
			zap.String("kind", job.Kind),
		)
		return nil
	}
}

func (d *Dispatcher) deliverLoop() {
	defer d.wg.Done()
	for dl := range d.backlog {
		d.deliver(dl)
	}
}

func (d *Dispatcher) deliver(dl delivery) {
	ctx, cancel := context.WithTimeout(dl.ctx, d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, d.email(dl.job)); err != nil {
		d.record(ctx, dl.kind, "error")
		zctx.From(ctx).Error("Notification delivery failed",
			zap.String("customer_id", dl.job.CustomerID),
			zap.String("kind", dl.job.Kind),
			zap.Error(err),
		)
		return
	}
	d.record(ctx, dl.kind, "sent")
}

func (d *Dispatcher) email(job queue.Job) mailer.Email {
	return mailer.Email{
		From:    d.from,
		To:      []string{job.To},
		Subject: job.Subject,
		Text:    job.Text,
	}
}

func (d *Dispatcher) record(ctx context.Context, kind notification.Kind, result string) {
	d.results.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("result", result),
	))
}

// Close stops accepting inline notifications and waits until the backlog
// is delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		if d.backlog != nil {
			close(d.backlog)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}
