// Command seed-db applies migrations, loads demo customers from a YAML file
// and registers an API key.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-orders/internal/domain/auth"
	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/order"
	"github.com/xenking/loyalty-orders/internal/mailer"
	"github.com/xenking/loyalty-orders/internal/notify"
	"github.com/xenking/loyalty-orders/internal/storage/postgres"
)

func main() {
	var (
		databaseURL   string
		customersFile string
		apiKey        string
		apiKeyPepper  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&customersFile, "customers-file", "db/seed/customers.yaml", "path to customers YAML file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or LOYALTY_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or LOYALTY_AUTH_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("LOYALTY_SEED_API_KEY")
	}
	if apiKey == "" {
		lg.Fatal("API key is required: set --api-key or LOYALTY_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("LOYALTY_AUTH_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, customersFile, apiKey, apiKeyPepper); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, customersFile, apiKey, pepper string) error {
	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	seed, err := readSeed(customersFile)
	if err != nil {
		return err
	}

	meter := noop.NewMeterProvider().Meter("seed")
	dispatcher, err := notify.NewDispatcher(notify.Config{
		From:   "seed@localhost",
		Sender: mailer.NewLogSender(lg.Named("mail")),
	}, meter)
	if err != nil {
		return errors.Wrap(err, "create dispatcher")
	}
	defer dispatcher.Close()

	customers := postgres.NewCustomerRepository(pool)
	orders, err := order.NewService(customers, postgres.NewOrderRepository(pool), postgres.NewUnitOfWork(pool), dispatcher, meter)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	s := &seeder{
		lg:        lg,
		customers: customer.NewService(customers),
		orders:    orders,
	}
	if err := s.seedCustomers(ctx, seed.Customers); err != nil {
		return errors.Wrap(err, "seed customers")
	}

	return seedAPIKey(ctx, lg, postgres.NewAPIKeyRepository(pool), apiKey, pepper)
}

func seedAPIKey(ctx context.Context, lg *zap.Logger, keys *postgres.APIKeyRepository, apiKey, pepper string) error {
	key := auth.Key{
		ID:     "default",
		Hash:   auth.Hash([]byte(pepper), apiKey),
		Name:   "Default key",
		Scopes: []string{auth.ScopeWrite},
	}
	if err := keys.Upsert(ctx, key); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}
	lg.Info("Upserted API key", zap.String("id", key.ID), zap.Strings("scopes", key.Scopes))
	return nil
}
