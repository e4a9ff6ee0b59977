package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status struct {
	Status string
	Checks map[string]string
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) status {
	t.Helper()

	var s status
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "status":
			v, err := d.Str()
			s.Status = v
			return err
		case "checks":
			s.Checks = map[string]string{}
			return d.ObjBytes(func(d *jx.Decoder, name []byte) error {
				v, err := d.Str()
				s.Checks[string(name)] = v
				return err
			})
		default:
			return d.Skip()
		}
	}))
	return s
}

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestLiveEndpoint(t *testing.T) {
	t.Parallel()

	h := New()
	h.AddLivenessCheck("a", time.Second, passing)
	h.AddLivenessCheck("db", time.Second, failing("connection refused"))
	// Readiness failures never show up on /livez.
	h.AddReadinessCheck("cache", time.Second, failing("cold"))

	w := serve(h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, w.Code, "checks start healthy")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, `{"status":"ok"}`, w.Body.String())

	ctx := context.Background()
	for _, s := range h.checks {
		for range 3 {
			s.run(ctx)
		}
	}

	w = serve(h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, status{Status: "unhealthy", Checks: map[string]string{"db": "connection refused"}}, decodeStatus(t, w))
}

func TestThresholds(t *testing.T) {
	t.Parallel()

	fail := true
	h := New()
	h.Add(Check{
		Name:             "flaky",
		Probe:            Liveness,
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Func: func(context.Context) error {
			if fail {
				return errors.New("down")
			}
			return nil
		},
	})
	s := h.checks[0]
	ctx := context.Background()

	s.run(ctx)
	assert.True(t, s.healthy.Load(), "one failure is below threshold")
	s.run(ctx)
	assert.False(t, s.healthy.Load())
	assert.EqualError(t, s.err(), "down")

	fail = false
	s.run(ctx)
	assert.False(t, s.healthy.Load(), "one pass is below threshold")
	s.run(ctx)
	assert.True(t, s.healthy.Load())
	assert.NoError(t, s.err())
}

func TestAddDefaults(t *testing.T) {
	t.Parallel()

	h := New()
	h.Add(Check{Name: "x", Func: passing})

	s := h.checks[0]
	assert.Equal(t, time.Second, s.Timeout)
	assert.Equal(t, 3, s.FailureThreshold)
	assert.Equal(t, 1, s.SuccessThreshold)
	assert.Nil(t, s.err())
}

func TestReadyEndpoint(t *testing.T) {
	t.Parallel()

	h := New()
	h.AddReadinessCheck("db", time.Second, passing)
	h.AddReadinessCheck("cache", time.Second, failing("cache miss"))

	w := serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, map[string]string{"_readiness": "service is not ready"}, decodeStatus(t, w).Checks)
	assert.False(t, h.IsReady())

	h.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(h.ReadyEndpoint).Code)
	assert.True(t, h.IsReady())

	for range 3 {
		h.checks[1].run(context.Background())
	}
	w = serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, map[string]string{"cache": "cache miss"}, decodeStatus(t, w).Checks)
	assert.False(t, h.IsReady())

	h.SetReady(false)
	assert.Len(t, decodeStatus(t, serve(h.ReadyEndpoint)).Checks, 2)
}

func TestNoChecks(t *testing.T) {
	t.Parallel()

	h := New()
	assert.Equal(t, http.StatusOK, serve(h.LiveEndpoint).Code)
	h.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(h.ReadyEndpoint).Code)
}

func TestCheckTimeout(t *testing.T) {
	t.Parallel()

	h := New()
	h.Add(Check{Name: "slow", Probe: Readiness, Timeout: 10 * time.Millisecond, FailureThreshold: 1, Func: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	h.checks[0].run(context.Background())
	assert.ErrorIs(t, h.checks[0].err(), context.DeadlineExceeded)
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	runs := 0
	h := New()
	h.AddLivenessCheck("count", time.Second, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		runs++
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 3
	}, 2*time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	h := New()
	h.AddLivenessCheck("concurrent", time.Second, failing("err"))
	h.AddReadinessCheck("concurrent", time.Second, passing)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()
				serve(h.LiveEndpoint)
				serve(h.ReadyEndpoint)
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.NoError(t, PingCheck(pinger{})(ctx))
	assert.ErrorContains(t, PingCheck(pinger{err: errors.New("refused")})(ctx), "refused")

	assert.NoError(t, GoroutineCountCheck(100000)(ctx))
	assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")

	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))
}
