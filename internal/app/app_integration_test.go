//go:build integration

package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/loyalty-orders/internal/domain/auth"
	"github.com/xenking/loyalty-orders/internal/storage/postgres"
)

func endpoint(ctx context.Context, t *testing.T, dc *tc.DockerCompose, service, port string) string {
	t.Helper()

	c, err := dc.ServiceContainer(ctx, service)
	require.NoError(t, err)
	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func TestWirePostgresRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("testdata/docker-compose.yml")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = dc.Down(context.Background(), tc.RemoveOrphans(true), tc.RemoveVolumes(true))
	})
	require.NoError(t, dc.
		WaitForService("postgres", wait.ForListeningPort("5432/tcp")).
		WaitForService("redis", wait.ForLog("Ready to accept connections")).
		Up(ctx, tc.Wait(true)))

	cfg := memoryConfig()
	cfg.Storage = StoragePostgres
	cfg.DatabaseURL = "postgres://loyalty:loyalty@" + endpoint(ctx, t, dc, "postgres", "5432/tcp") + "/loyalty?sslmode=disable"
	cfg.Auth.Keys = nil
	cfg.Redis = RedisConfig{URL: "redis://" + endpoint(ctx, t, dc, "redis", "6379/tcp"), Key: "test:notifications"}
	cfg.Notify.Transport = TransportRedis
	cfg.Notify.EmbeddedWorker = true
	cfg.Sweep.Dedup = true
	cfg.Sweep.DedupTTL = time.Hour

	core, logs := observer.New(zap.InfoLevel)
	s, err := wire(ctx, zap.New(core), noop.NewMeterProvider().Meter("test"), cfg)
	require.NoError(t, err)
	defer s.cleanup.close()
	require.NotNil(t, s.notifications.worker)

	// wire ran migrations, so the key table exists.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, postgres.NewAPIKeyRepository(pool).Upsert(ctx, auth.Key{
		ID:     "test",
		Hash:   auth.Hash([]byte(cfg.Auth.Pepper), testKey),
		Name:   "Test key",
		Scopes: []string{auth.ScopeWrite},
	}))

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go func() { _ = s.notifications.worker.Run(workerCtx) }()

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	s.health.Start(ctx, time.Second)
	defer s.health.Stop()
	require.Eventually(t, func() bool {
		resp, err := srv.Client().Get(srv.URL + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 200*time.Millisecond)

	id := post(t, srv, "/api/customers", `{"name":"Ada","email":"ada@example.com"}`)
	for range 10 {
		post(t, srv, "/api/orders", `{"customerId":"`+id+`","amount":"25.00"}`)
	}
	require.NoError(t, s.sweep(ctx))

	require.Eventually(t, func() bool {
		return len(subjects(logs)) == 2
	}, 30*time.Second, 100*time.Millisecond)
	assert.ElementsMatch(t, []string{
		"Almost there! You're close to a tier upgrade!",
		"Congratulations on Your Tier Upgrade!",
	}, subjects(logs))
}
