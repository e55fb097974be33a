package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/envmon/internal/config"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, ErrorRateThreshold: 0.1}
	checker := NewChecker(NewCollector(), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, defaultCheckInterval, checker.interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckUsesWindow(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, ErrorRateThreshold: 0.5, MinRequests: 4}
	collector := NewCollector()
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	// A bad first window.
	for i := 0; i < 4; i++ {
		collector.RecordError("unavailable")
	}
	checker.prev = &MetricsSnapshot{}
	assert.Equal(t, 1, checker.check(context.Background(), zap.NewNop()))

	// A healthy second window: the earlier errors no longer count.
	for i := 0; i < 4; i++ {
		collector.RecordPrediction(time.Millisecond, false)
	}
	assert.Equal(t, 0, checker.check(context.Background(), zap.NewNop()))
	assert.Equal(t, int32(1), hits.Load())
}

func TestChecker_PersistentConditionAlertsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, ErrorRateThreshold: 1}
	state := "open"
	collector := NewCollector(WithBreakerState(func() string { return state }))
	checker := NewChecker(collector, NewAlerter(cfg), cfg)
	checker.prev = collector.Snapshot()
	ctx := context.Background()

	assert.Equal(t, 1, checker.check(ctx, zap.NewNop()))
	assert.Equal(t, 0, checker.check(ctx, zap.NewNop()), "still open, already reported")

	state = "closed"
	assert.Equal(t, 0, checker.check(ctx, zap.NewNop()))

	state = "open"
	assert.Equal(t, 1, checker.check(ctx, zap.NewNop()), "re-opened after clearing")
	assert.Equal(t, int32(2), hits.Load())
}

func TestChecker_RetriesUndeliveredAlerts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, ErrorRateThreshold: 1}
	collector := NewCollector(WithBreakerState(func() string { return "open" }))
	checker := NewChecker(collector, NewAlerter(cfg), cfg)
	checker.prev = collector.Snapshot()

	assert.Equal(t, 0, checker.check(context.Background(), zap.NewNop()))
	assert.Equal(t, 1, checker.check(context.Background(), zap.NewNop()))
}
