package app

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-orders/internal/domain/auth"
	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/order"
	"github.com/xenking/loyalty-orders/internal/storage/memory"
	"github.com/xenking/loyalty-orders/internal/storage/postgres"
	"github.com/xenking/loyalty-orders/pkg/health"
)

// storage is the set of repositories behind one backend.
type storage struct {
	customers customer.Repository
	orders    order.Repository
	uow       order.UnitOfWork
	apikeys   auth.Repository
	// ping is nil for backends without a remote dependency.
	ping  health.CheckFunc
	close func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	switch cfg.Storage {
	case StorageMemory:
		return openMemory(ctx, lg, cfg)
	default:
		return openPostgres(ctx, cfg)
	}
}

func openPostgres(ctx context.Context, cfg *Config) (*storage, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &storage{
		customers: postgres.NewCustomerRepository(pool),
		orders:    postgres.NewOrderRepository(pool),
		uow:       postgres.NewUnitOfWork(pool),
		apikeys:   postgres.NewAPIKeyRepository(pool),
		ping:      health.PingCheck(pool),
		close:     pool.Close,
	}, nil
}

func openMemory(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	lg.Warn("Using in-memory storage, data is lost on restart")

	store := memory.NewStore()
	for i, raw := range cfg.Auth.Keys {
		err := store.APIKeys().Upsert(ctx, auth.Key{
			ID:     fmt.Sprintf("static-%d", i+1),
			Hash:   auth.Hash([]byte(cfg.Auth.Pepper), raw),
			Name:   "static",
			Scopes: []string{auth.ScopeAll},
		})
		if err != nil {
			return nil, errors.Wrap(err, "register static key")
		}
	}
	return &storage{
		customers: store.Customers(),
		orders:    store.Orders(),
		uow:       store,
		apikeys:   store.APIKeys(),
		close:     func() {},
	}, nil
}
