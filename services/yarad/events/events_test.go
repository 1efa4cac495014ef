package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmguard/yarad/libs/go/core/resilience"
)

type captureConn struct {
	msgs []*nats.Msg
	err  error
}

func (c *captureConn) PublishMsg(m *nats.Msg) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func TestPublishDetection(t *testing.T) {
	conn := &captureConn{}
	p := NewNATSPublisher(conn, "yarad.detections", 100, nil)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.Publish(context.Background(), Detection{
		Path: "/tmp/eicar.com", Rules: []string{"EICAR"}, Generation: 3, Digest: "abc", Engine: "yara", ScannedAt: at,
	})

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "yarad.detections", conn.msgs[0].Subject)
	var got Detection
	require.NoError(t, json.Unmarshal(conn.msgs[0].Data, &got))
	assert.Equal(t, "/tmp/eicar.com", got.Path)
	assert.Equal(t, []string{"EICAR"}, got.Rules)
	assert.Equal(t, uint64(3), got.Generation)
	assert.True(t, at.Equal(got.ScannedAt))
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	conn := &captureConn{err: errors.New("broken pipe")}
	p := NewNATSPublisher(conn, "s", 100, nil)
	assert.NotPanics(t, func() { p.Publish(context.Background(), Detection{Path: "/x"}) })
}

func TestConnectWithoutURL(t *testing.T) {
	assert.IsType(t, Noop{}, Connect(context.Background(), "", "s", 100, nil))
}

func TestConnectUnreachableFallsBack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := Connect(ctx, "nats://127.0.0.1:1", "s", 100, nil)
	assert.IsType(t, Noop{}, p)
	p.Close()
}

func TestPublishRateLimited(t *testing.T) {
	conn := &captureConn{}
	p := NewNATSPublisher(conn, "s", 3, nil)
	for i := 0; i < 10; i++ {
		p.Publish(context.Background(), Detection{Path: "/x"})
	}
	assert.Len(t, conn.msgs, 3)
}

func TestPublishCircuitOpensAfterFailures(t *testing.T) {
	conn := &captureConn{err: errors.New("nats: connection closed")}
	p := NewNATSPublisher(conn, "s", 100, nil)
	for i := 0; i < 5; i++ {
		p.Publish(context.Background(), Detection{Path: "/x"})
	}
	assert.Equal(t, resilience.StateOpen, p.breaker.State())

	conn.err = nil
	p.Publish(context.Background(), Detection{Path: "/y"})
	assert.Empty(t, conn.msgs, "open circuit drops detections")
}

func TestMarshalFailureKeepsHalfOpenProbe(t *testing.T) {
	conn := &captureConn{err: errors.New("nats: timeout")}
	p := NewNATSPublisher(conn, "s", 100, nil)
	p.breaker = resilience.NewCircuitBreaker("test", time.Minute, 1, 1, 0.5, 10*time.Millisecond, 1)

	p.Publish(context.Background(), Detection{Path: "/a"})
	require.Equal(t, resilience.StateOpen, p.breaker.State())
	time.Sleep(20 * time.Millisecond)

	// a year outside 0-9999 cannot be encoded as RFC 3339
	p.Publish(context.Background(), Detection{Path: "/bad", ScannedAt: time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)})

	conn.err = nil
	p.Publish(context.Background(), Detection{Path: "/b"})
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, resilience.StateClosed, p.breaker.State())
}
