package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgredis "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/resilience"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingCheckAgainstRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := pkgredis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })

	check := PingCheck(client, 0)
	assert.Equal(t, StatusUp, check(context.Background()).Status)

	mr.Close()
	down := check(context.Background())
	assert.Equal(t, StatusDown, down.Status)
	assert.NotEmpty(t, down.Message)
}

func TestPingCheckSlow(t *testing.T) {
	slow := pingFunc(func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	assert.Equal(t, StatusDegraded, PingCheck(slow, time.Millisecond)(context.Background()).Status)
}

func TestRunReportsWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("redis", PingCheck(pingFunc(func(context.Context) error { return nil }), 0))
	c.Register("cache", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded} })

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Len(t, report.Components, 2)

	c.Register("postgres", PingCheck(pingFunc(func(context.Context) error { return errors.New("refused") }), 0))
	report = c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Len(t, report.Components, 3, "every component is reported even when one is down")
}

func TestBreakerCheck(t *testing.T) {
	cb := resilience.NewCircuitBreaker("log", resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	check := BreakerCheck(cb)
	assert.Equal(t, StatusUp, check(context.Background()).Status)

	_ = cb.Execute(func() error { return errors.New("boom") })
	got := check(context.Background())
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, "circuit open", got.Message)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("cache", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded} })
	mux := http.NewServeMux()
	c.Routes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("redis", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDown} })
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDown, report.Status)
}
