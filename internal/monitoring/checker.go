package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/envmon/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker periodically evaluates the traffic since its last check. A
// condition that stays bad across windows is reported once, and again only
// after it has cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration

	prev   *MetricsSnapshot
	active map[AlertType]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		active:    make(map[AlertType]bool),
	}
}

// Run checks every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", c.interval))

	c.prev = c.collector.Snapshot()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check evaluates one window and returns the number of alerts sent.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	cur := c.collector.Snapshot()
	window := cur.Since(c.prev)
	c.prev = cur

	firing := c.alerter.Evaluate(window)
	now := make(map[AlertType]bool, len(firing))
	var fresh []Alert
	for _, a := range firing {
		now[a.Type] = true
		if !c.active[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for t := range c.active {
		if !now[t] {
			log.Info("monitoring: condition cleared", zap.String("type", string(t)))
		}
	}
	c.active = now

	if len(fresh) == 0 {
		log.Debug("monitoring: no new alerts",
			zap.Int64("requests", window.Requests),
			zap.Int("firing", len(firing)),
		)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	if sent == 0 {
		// Undelivered alerts fire again next window.
		for _, a := range fresh {
			delete(c.active, a.Type)
		}
	}
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return sent
}
