package daemon

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/yarad/libs/go/core/otelinit"
	"github.com/swarmguard/yarad/services/yarad/scanner"
)

// Metrics holds the daemon's otel instruments. Without an exporter the global
// provider is a no-op and recording is free.
type Metrics struct {
	scans       metric.Int64Counter
	matches     metric.Int64Counter
	scanErrors  metric.Int64Counter
	reloads     metric.Int64Counter
	commands    metric.Int64Counter
	scanDur     metric.Float64Histogram
	reloadDur   metric.Float64Histogram
	rulesLoaded metric.Int64UpDownCounter

	mu         sync.Mutex
	lastLoaded int64
}

// NewMetrics creates the instruments on the shared meter.
func NewMetrics() *Metrics {
	meter := otelinit.Meter()
	m := &Metrics{}
	m.scans, _ = meter.Int64Counter("yarad_scans_total")
	m.matches, _ = meter.Int64Counter("yarad_scan_matches_total")
	m.scanErrors, _ = meter.Int64Counter("yarad_scan_errors_total")
	m.reloads, _ = meter.Int64Counter("yarad_reloads_total")
	m.commands, _ = meter.Int64Counter("yarad_commands_total")
	m.scanDur, _ = meter.Float64Histogram("yarad_scan_duration_seconds")
	m.reloadDur, _ = meter.Float64Histogram("yarad_reload_duration_seconds")
	m.rulesLoaded, _ = meter.Int64UpDownCounter("yarad_rules_loaded")
	return m
}

func (m *Metrics) Command(ctx context.Context, name string) {
	m.commands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", name)))
}

func (m *Metrics) Scan(ctx context.Context, r scanner.ScanResult, d time.Duration) {
	m.scans.Add(ctx, 1)
	m.scanDur.Record(ctx, d.Seconds())
	if r.Err != nil {
		m.scanErrors.Add(ctx, 1)
		return
	}
	if n := len(r.Matches); n > 0 {
		m.matches.Add(ctx, int64(n))
	}
}

func (m *Metrics) Reload(ctx context.Context, trigger string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.reloads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("trigger", trigger)))
	m.reloadDur.Record(ctx, d.Seconds())
}

// Installed moves the rules gauge to the size of g.
func (m *Metrics) Installed(g *scanner.Generation) {
	n := int64(g.RuleCount())
	m.mu.Lock()
	delta := n - m.lastLoaded
	m.lastLoaded = n
	m.mu.Unlock()
	m.rulesLoaded.Add(context.Background(), delta)
}
