// Package app loads configuration and wires the loyalty services together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/loyalty-orders/internal/domain/auth"
	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/notification"
	"github.com/xenking/loyalty-orders/internal/domain/order"
	"github.com/xenking/loyalty-orders/internal/handler"
	"github.com/xenking/loyalty-orders/internal/scheduler"
	"github.com/xenking/loyalty-orders/pkg/health"
	"github.com/xenking/loyalty-orders/pkg/httpmiddleware"
)

const meterName = "github.com/xenking/loyalty-orders"

// services is everything Run starts, built by wire.
type services struct {
	health        *health.Health
	router        chi.Router
	sweeper       *notification.Sweeper
	notifications *notifyStack
	cleanup       closer
}

// wire builds storage, notification delivery, domain services and the
// router. The caller owns cleanup.
func wire(ctx context.Context, lg *zap.Logger, meter metric.Meter, cfg *Config) (_ *services, rerr error) {
	s := &services{health: health.New()}
	defer func() {
		if rerr != nil {
			s.cleanup.close()
		}
	}()

	store, err := openStorage(ctx, lg, cfg)
	if err != nil {
		return nil, err
	}
	s.cleanup.add(store.close)

	s.notifications, err = newNotifyStack(lg, cfg, meter, &s.cleanup)
	if err != nil {
		return nil, err
	}

	if store.ping != nil {
		s.health.AddReadinessCheck("postgres", 5*time.Second, store.ping)
	}
	if rdb := s.notifications.rdb; rdb != nil {
		s.health.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	s.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Domain services.
	dispatcher := s.notifications.dispatcher
	customerService := customer.NewService(store.customers)
	orderService, err := order.NewService(store.customers, store.orders, store.uow, dispatcher, meter)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	if s.sweeper, err = notification.NewSweeper(store.customers, dispatcher, meter); err != nil {
		return nil, errors.Wrap(err, "create sweeper")
	}

	var write func(http.Handler) http.Handler
	if cfg.Auth.Enabled {
		write = handler.RequireAPIKey(auth.NewAuthenticator(store.apikeys, []byte(cfg.Auth.Pepper)), auth.ScopeWrite)
	} else {
		lg.Warn("API key authentication is disabled")
	}
	s.router = handler.NewHandler(customerService, orderService).Router(write)
	s.router.Get("/livez", s.health.LiveEndpoint)
	s.router.Get("/readyz", s.health.ReadyEndpoint)
	return s, nil
}

// Run creates all dependencies, starts the HTTP server, the sweep scheduler
// and optionally the notification worker, and handles graceful shutdown. It
// is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.String("transport", cfg.Notify.Transport),
	)

	s, err := wire(ctx, lg, m.MeterProvider().Meter(meterName), cfg)
	if err != nil {
		return err
	}
	defer s.cleanup.close()

	return s.serve(ctx, lg, cfg, m.MeterProvider(), m.TracerProvider())
}

func (s *services) serve(ctx context.Context, lg *zap.Logger, cfg *Config, mp metric.MeterProvider, tp trace.TracerProvider) error {
	s.health.Start(ctx, 10*time.Second)
	defer s.health.Stop()

	g, gctx := errgroup.WithContext(ctx)
	routeFinder := httpmiddleware.MakeRouteFinder(s.router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(s.router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(gctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("loyalty-api", routeFinder, mp, tp),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	if cfg.Sweep.Enabled {
		loc, err := time.LoadLocation(cfg.Sweep.Timezone)
		if err != nil {
			return errors.Wrap(err, "load sweep timezone")
		}
		sched := scheduler.New(lg, loc)
		if err := sched.Add("progression-sweep", cfg.Sweep.Schedule, s.sweep); err != nil {
			return errors.Wrap(err, "schedule sweep")
		}
		lg.Info("Progression sweep scheduled",
			zap.String("schedule", cfg.Sweep.Schedule),
			zap.String("timezone", cfg.Sweep.Timezone),
		)
		g.Go(func() error { return sched.Run(gctx) })
	}

	if w := s.notifications.worker; w != nil {
		g.Go(func() error {
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return errors.Wrap(err, "notification worker")
			}
			return nil
		})
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		s.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})

	g.Go(func() error {
		s.health.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

func (s *services) sweep(ctx context.Context) error {
	if _, err := s.sweeper.Run(ctx); err != nil {
		return errors.Wrap(err, "progression sweep")
	}
	return nil
}
