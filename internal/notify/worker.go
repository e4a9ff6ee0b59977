package notify

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-orders/internal/mailer"
	"github.com/xenking/loyalty-orders/internal/queue"
)

// Worker drains the notification queue into a mailer.
type Worker struct {
	consumer  queue.Consumer
	sender    mailer.Sender
	from      string
	delivered metric.Int64Counter
}

// NewWorker creates a Worker.
func NewWorker(consumer queue.Consumer, sender mailer.Sender, from string, meter metric.Meter) (*Worker, error) {
	delivered, err := meter.Int64Counter("loyalty.notifications.delivered",
		metric.WithDescription("Queued notifications handed to the mailer"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create delivered counter")
	}
	return &Worker{
		consumer:  consumer,
		sender:    sender,
		from:      from,
		delivered: delivered,
	}, nil
}

// Run consumes until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.Handle)
}

// Handle delivers one job.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	err := w.sender.Send(ctx, mailer.Email{
		From:    w.from,
		To:      []string{job.To},
		Subject: job.Subject,
		Text:    job.Text,
	})

	result := "sent"
	if err != nil {
		result = "error"
	}
	w.delivered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", job.Kind),
		attribute.String("result", result),
	))
	if err != nil {
		return errors.Wrapf(err, "deliver job %s", job.ID)
	}

	zctx.From(ctx).Debug("Notification delivered",
		zap.String("job_id", job.ID),
		zap.String("customer_id", job.CustomerID),
		zap.String("kind", job.Kind),
	)
	return nil
}
