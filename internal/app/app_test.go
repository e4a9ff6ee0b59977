package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/loyalty-orders/internal/handler"
)

const testKey = "dev-key"

func memoryConfig() *Config {
	return &Config{
		Storage: StorageMemory,
		Auth:    AuthConfig{Enabled: true, Pepper: "pepper", Keys: []string{testKey}},
		Notify: NotifyConfig{
			Transport:   TransportInline,
			Mailer:      MailerLog,
			From:        "loyalty@example.com",
			Concurrency: 2,
		},
		Sweep: SweepConfig{Enabled: true, Schedule: "0 0 * * *", Timezone: "UTC"},
	}
}

func post(t *testing.T, srv *httptest.Server, path, body string) string {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(handler.APIKeyHeader, testKey)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	var id string
	require.NoError(t, jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) == "id" {
			v, err := d.Str()
			id = v
			return err
		}
		return d.Skip()
	}))
	return id
}

func subjects(logs *observer.ObservedLogs) []string {
	var out []string
	for _, e := range logs.FilterMessage("Email").All() {
		out = append(out, e.ContextMap()["subject"].(string))
	}
	return out
}

func TestWireMemory(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := context.Background()

	s, err := wire(ctx, zap.New(core), noop.NewMeterProvider().Meter("test"), memoryConfig())
	require.NoError(t, err)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/livez")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ada := post(t, srv, "/api/customers", `{"name":"Ada","email":"ada@example.com"}`)
	bob := post(t, srv, "/api/customers", `{"name":"Bob","email":"bob@example.com"}`)
	for range 10 {
		post(t, srv, "/api/orders", `{"customerId":"`+ada+`","amount":10}`)
	}
	for range 9 {
		post(t, srv, "/api/orders", `{"customerId":"`+bob+`","amount":10}`)
	}

	require.NoError(t, s.sweep(ctx))
	// Waits for inline deliveries.
	s.cleanup.close()

	got := subjects(logs)
	assert.ElementsMatch(t, []string{
		"Almost there! You're close to a tier upgrade!", // ada, 9th order
		"Congratulations on Your Tier Upgrade!",         // ada, 10th order
		"Almost there! You're close to a tier upgrade!", // bob, 9th order
		"Almost there! You're close to a tier upgrade!", // bob, sweep
	}, got)
}

func TestWireMemoryDedup(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := context.Background()

	cfg := memoryConfig()
	cfg.Sweep.Dedup = true
	cfg.Sweep.DedupTTL = time.Hour

	s, err := wire(ctx, zap.New(core), noop.NewMeterProvider().Meter("test"), cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	id := post(t, srv, "/api/customers", `{"name":"Cy","email":"cy@example.com"}`)
	for range 9 {
		post(t, srv, "/api/orders", `{"customerId":"`+id+`","amount":10}`)
	}
	require.NoError(t, s.sweep(ctx))
	require.NoError(t, s.sweep(ctx))
	s.cleanup.close()

	assert.Equal(t, []string{"Almost there! You're close to a tier upgrade!"}, subjects(logs))
}

func TestWireRejectsBadRedisURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.Notify.Transport = TransportRedis
	cfg.Redis.URL = "://bad"

	_, err := wire(context.Background(), zap.NewNop(), noop.NewMeterProvider().Meter("test"), cfg)
	assert.ErrorContains(t, err, "parse redis url")
}
