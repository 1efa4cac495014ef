// Package events publishes detections to NATS.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/swarmguard/yarad/libs/go/core/natsctx"
	"github.com/swarmguard/yarad/libs/go/core/resilience"
)

// Detection is published for every scanned file with at least one match.
type Detection struct {
	Path       string    `json:"path"`
	Rules      []string  `json:"rules"`
	Generation uint64    `json:"generation"`
	Digest     string    `json:"digest"`
	Engine     string    `json:"engine"`
	ScannedAt  time.Time `json:"scanned_at"`
}

// Publisher delivers detections. Publish never blocks a scan on delivery
// failures; they are logged and dropped.
type Publisher interface {
	Publish(ctx context.Context, d Detection)
	Close()
}

// Noop drops every detection.
type Noop struct{}

func (Noop) Publish(context.Context, Detection) {}
func (Noop) Close()                             {}

// NATSPublisher publishes JSON detections on one subject. A token bucket
// caps the publish rate so a heavily infected tree cannot flood the subject,
// and a circuit breaker stops publishing while the server keeps failing.
type NATSPublisher struct {
	conn    natsctx.MsgPublisher
	nc      *nats.Conn
	subject string
	limiter *resilience.RateLimiter
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewNATSPublisher wraps an existing connection. maxRate is the sustained
// number of detections per second; bursts of the same size are allowed.
func NewNATSPublisher(conn natsctx.MsgPublisher, subject string, maxRate float64, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	burst := int64(maxRate)
	if burst < 1 {
		burst = 1
	}
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		limiter: resilience.NewRateLimiter("detections", burst, maxRate),
		breaker: resilience.NewCircuitBreaker("nats_publish", 30*time.Second, 6, 5, 0.5, 10*time.Second, 1),
		logger:  logger,
	}
}

func (p *NATSPublisher) Publish(ctx context.Context, d Detection) {
	if !p.limiter.Allow() {
		p.logger.Debug("detection dropped, rate limited", "path", d.Path)
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		p.logger.Error("detection marshal failed", "path", d.Path, "error", err)
		return
	}
	// Every Allow must be matched by a Record, or a half-open probe leaks.
	if !p.breaker.Allow() {
		p.logger.Debug("detection dropped, circuit open", "path", d.Path)
		return
	}
	err = natsctx.Publish(ctx, p.conn, p.subject, data)
	p.breaker.Record(err == nil)
	if err != nil {
		p.logger.Warn("detection publish failed", "subject", p.subject, "path", d.Path, "error", err)
	}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
		}
	}
}

// Connect dials url with retries. When url is empty, or every attempt fails,
// a Noop publisher is returned and the reason logged; detections are optional.
func Connect(ctx context.Context, url, subject string, maxRate float64, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		return Noop{}
	}
	nc, err := resilience.Retry(ctx, "nats_connect", 3, 500*time.Millisecond, func() (*nats.Conn, error) {
		return nats.Connect(url, nats.Name("yarad"), nats.MaxReconnects(-1))
	})
	if err != nil {
		logger.Warn("NATS connect failed, detections will not be published", "url", url, "error", err)
		return Noop{}
	}
	logger.Info("publishing detections", "url", url, "subject", subject)
	p := NewNATSPublisher(nc, subject, maxRate, logger)
	p.nc = nc
	return p
}
