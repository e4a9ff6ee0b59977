package app

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-orders/internal/domain/notification"
	"github.com/xenking/loyalty-orders/internal/mailer"
	"github.com/xenking/loyalty-orders/internal/notify"
	"github.com/xenking/loyalty-orders/internal/queue"
)

func newRedis(cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return redis.NewClient(opts), nil
}

func newSender(lg *zap.Logger, cfg NotifyConfig) mailer.Sender {
	if cfg.Mailer == MailerResend {
		return mailer.NewResendSender(cfg.ResendURL, cfg.ResendAPIKey,
			mailer.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		)
	}
	return mailer.NewLogSender(lg.Named("mail"))
}

// closer collects cleanup functions and runs them in reverse order.
type closer []func()

func (c *closer) add(fn func()) { *c = append(*c, fn) }

func (c closer) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// notifyStack is the notification side of the process.
type notifyStack struct {
	dispatcher *notify.Dispatcher
	// worker is set when the queue is drained in this process.
	worker *notify.Worker
	rdb    *redis.Client
}

func newNotifyStack(lg *zap.Logger, cfg *Config, meter metric.Meter, cleanup *closer) (*notifyStack, error) {
	var (
		s   notifyStack
		err error
	)
	if cfg.Redis.URL != "" && (cfg.Notify.Transport == TransportRedis || cfg.Sweep.Dedup) {
		if s.rdb, err = newRedis(cfg.Redis); err != nil {
			return nil, err
		}
		rdb := s.rdb
		cleanup.add(func() { _ = rdb.Close() })
	}

	var ledger notification.Ledger
	if cfg.Sweep.Dedup {
		if s.rdb != nil {
			ledger = notify.NewRedisLedger(s.rdb, cfg.Sweep.DedupTTL)
		} else {
			ledger = notify.NewMemoryLedger(cfg.Sweep.DedupTTL)
		}
	}

	sender := newSender(lg, cfg.Notify)
	var (
		publisher queue.Publisher
		consumer  queue.Consumer
	)
	switch cfg.Notify.Transport {
	case TransportRedis:
		q := queue.NewRedis(s.rdb, cfg.Redis.Key, cfg.Notify.Concurrency)
		publisher, consumer = q, q
	case TransportKafka:
		p := queue.NewKafkaPublisher(cfg.Kafka.queue())
		cleanup.add(func() { _ = p.Close() })
		publisher = p
		if cfg.Notify.EmbeddedWorker {
			c := queue.NewKafkaConsumer(cfg.Kafka.queue())
			cleanup.add(func() { _ = c.Close() })
			consumer = c
		}
	}

	s.dispatcher, err = notify.NewDispatcher(notify.Config{
		From:        cfg.Notify.From,
		Sender:      sender,
		Publisher:   publisher,
		Ledger:      ledger,
		Concurrency: cfg.Notify.Concurrency,
		Backlog:     cfg.Notify.Backlog,
		Timeout:     cfg.Notify.Timeout,
	}, meter)
	if err != nil {
		return nil, errors.Wrap(err, "create dispatcher")
	}
	cleanup.add(s.dispatcher.Close)

	if cfg.Notify.EmbeddedWorker && consumer != nil {
		if s.worker, err = notify.NewWorker(consumer, sender, cfg.Notify.From, meter); err != nil {
			return nil, errors.Wrap(err, "create worker")
		}
	}
	return &s, nil
}

// RunWorker drains the notification queue until ctx is done. It backs the
// notify-worker command.
func RunWorker(ctx context.Context, lg *zap.Logger, meter metric.Meter, cfg *Config) error {
	var consumer queue.Consumer
	switch cfg.Notify.Transport {
	case TransportRedis:
		rdb, err := newRedis(cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		consumer = queue.NewRedis(rdb, cfg.Redis.Key, cfg.Notify.Concurrency)
	case TransportKafka:
		c := queue.NewKafkaConsumer(cfg.Kafka.queue())
		defer func() { _ = c.Close() }()
		consumer = c
	default:
		return errors.Errorf("transport %q has no queue to consume", cfg.Notify.Transport)
	}

	w, err := notify.NewWorker(consumer, newSender(lg, cfg.Notify), cfg.Notify.From, meter)
	if err != nil {
		return errors.Wrap(err, "create worker")
	}
	lg.Info("Worker consuming", zap.String("transport", cfg.Notify.Transport))
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "consume")
	}
	return nil
}
