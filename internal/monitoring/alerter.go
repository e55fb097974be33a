package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/envmon/internal/config"
)

// AlertType identifies the condition that raised an alert.
type AlertType string

const (
	AlertErrorRate   AlertType = "error_rate"
	AlertBreakerOpen AlertType = "breaker_open"
	AlertLatency     AlertType = "latency"
)

// Alert is one degraded condition observed in a window.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Model     string         `json:"model,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// webhookPayload is the body posted to the alert webhook.
type webhookPayload struct {
	Service string  `json:"service"`
	Alerts  []Alert `json:"alerts"`
}

// rule inspects a window and reports whether its condition holds.
type rule func(cfg config.MonitoringConfig, w *MetricsSnapshot) (Alert, bool)

var rules = []rule{errorRateRule, breakerRule, latencyRule}

// Alerter evaluates window snapshots against thresholds and posts any
// alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates an Alerter for cfg.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate returns the alerts whose conditions hold for window.
func (a *Alerter) Evaluate(window *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()
	for _, r := range rules {
		alert, ok := r(a.cfg, window)
		if !ok {
			continue
		}
		alert.Model = window.Model
		alert.Timestamp = now
		alerts = append(alerts, alert)
	}
	return alerts
}

func errorRateRule(cfg config.MonitoringConfig, w *MetricsSnapshot) (Alert, bool) {
	if w.Requests == 0 || w.Requests < int64(cfg.MinRequests) || w.ErrorRate <= cfg.ErrorRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertErrorRate,
		Severity: "high",
		Message: fmt.Sprintf("Prediction error rate %.1f%% exceeds threshold %.1f%% (%d failed / %d requests)",
			w.ErrorRate*100, cfg.ErrorRateThreshold*100, w.Errors, w.Requests),
		Details: map[string]any{
			"error_rate": w.ErrorRate,
			"threshold":  cfg.ErrorRateThreshold,
			"errors":     w.ErrorsByKind,
			"requests":   w.Requests,
		},
	}, true
}

func breakerRule(_ config.MonitoringConfig, w *MetricsSnapshot) (Alert, bool) {
	if w.BreakerState != "open" {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertBreakerOpen,
		Severity: "critical",
		Message:  "Model service circuit breaker is open; predictions are failing fast",
	}, true
}

func latencyRule(cfg config.MonitoringConfig, w *MetricsSnapshot) (Alert, bool) {
	if cfg.LatencyThresholdMs <= 0 || w.Predictions == 0 || w.AvgLatencyMs <= cfg.LatencyThresholdMs {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertLatency,
		Severity: "warning",
		Message: fmt.Sprintf("Average prediction latency %.0fms exceeds %.0fms over %d predictions",
			w.AvgLatencyMs, cfg.LatencyThresholdMs, w.Predictions),
		Details: map[string]any{
			"avg_latency_ms": w.AvgLatencyMs,
			"threshold_ms":   cfg.LatencyThresholdMs,
		},
	}, true
}

// SendAlerts posts alerts to the webhook in one request and returns how
// many were delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	if err := a.post(ctx, webhookPayload{Service: "envmon", Alerts: alerts}); err != nil {
		zap.L().Error("monitoring: failed to send alerts",
			zap.Int("alerts", len(alerts)),
			zap.Error(err),
		)
		return 0
	}
	for _, alert := range alerts {
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
	}
	return len(alerts)
}

func (a *Alerter) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alerts")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
