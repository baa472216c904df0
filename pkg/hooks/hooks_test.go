package hooks

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// servePipe starts a connection with the given hooks over an in-memory
// pipe. It returns the connection, the peer end and Serve's result.
func servePipe(t *testing.T, v packet.Version, register func(*connection.Conn), hooks ...connection.Hook) (*connection.Conn, net.Conn, <-chan error) {
	t.Helper()
	local, peer := net.Pipe()
	cfg := connection.DefaultConfig()
	cfg.Version = v
	cfg.Hooks = hooks
	c := connection.New(local, cfg)
	if register != nil {
		register(c)
	}
	errc := make(chan error, 1)
	go func() { errc <- c.Serve(context.Background()) }()
	t.Cleanup(func() {
		c.Destroy()
		peer.Close()
	})
	return c, peer, errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Serve")
		return nil
	}
}

func mustEncode(t *testing.T, v packet.Version, pkts ...packet.Packet) []byte {
	t.Helper()
	var wire []byte
	for _, p := range pkts {
		var err error
		if wire, err = packet.Append(wire, p, v); err != nil {
			t.Fatal(err)
		}
	}
	return wire
}

func pingPong(c *connection.Conn) {
	c.OnPingreq(func(ctx context.Context, _ *packet.Pingreq) {
		c.Pingresp(ctx)
	})
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestMetricsHook(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetricsHook(WithRegistry(reg), WithNamespace("test"))
	_, peer, errc := servePipe(t, packet.Version311, pingPong, m)

	peer.Write([]byte{0xC0, 0x00})
	if p, err := packet.NewReader(peer, nil).ReadPacket(); err != nil || p.Type() != packet.TypePingresp {
		t.Fatalf("peer read %v, %v", p, err)
	}
	peer.Close()
	waitErr(t, errc)

	if got := counterValue(t, m.packetsReceived.WithLabelValues("PINGREQ")); got != 1 {
		t.Errorf("packets_received_total{PINGREQ} = %v, want 1", got)
	}
	if got := counterValue(t, m.packetsSent.WithLabelValues("PINGRESP")); got != 1 {
		t.Errorf("packets_sent_total{PINGRESP} = %v, want 1", got)
	}
	if got := counterValue(t, m.bytesReceived); got != 2 {
		t.Errorf("bytes_received_total = %v, want 2", got)
	}
	if got := counterValue(t, m.bytesSent); got != 2 {
		t.Errorf("bytes_sent_total = %v, want 2", got)
	}
	if got := counterValue(t, m.connectionsTotal); got != 1 {
		t.Errorf("connections_total = %v, want 1", got)
	}
	if got := gaugeValue(t, m.activeConnections); got != 0 {
		t.Errorf("active_connections = %v, want 0", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_frame_size_bytes" {
			found = true
		}
	}
	if !found {
		t.Error("test_frame_size_bytes not registered")
	}
}

func TestMetricsHookCountsDecodeErrors(t *testing.T) {
	t.Parallel()

	m := NewMetricsHook(WithRegistry(prometheus.NewRegistry()))
	_, peer, errc := servePipe(t, packet.Version311, nil, m)

	peer.Write([]byte{0x00, 0x00})
	if err := waitErr(t, errc); err == nil {
		t.Fatal("Serve = nil, want decode error")
	}
	if got := counterValue(t, m.errorsTotal.WithLabelValues("decode")); got != 1 {
		t.Errorf("errors_total{decode} = %v, want 1", got)
	}
}

func TestLoggerHook(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, peer, errc := servePipe(t, packet.Version311, pingPong, NewLoggerHook(LoggerConfig{Logger: logger}))

	peer.Write(mustEncode(t, packet.Version311,
		&packet.Connect{ClientID: "logged", CleanStart: true},
		&packet.Pingreq{},
	))
	packet.NewReader(peer, nil).ReadPacket()
	peer.Close()
	waitErr(t, errc)

	out := buf.String()
	for _, want := range []string{
		"connection opened",
		"type=CONNECT",
		"client_id=logged",
		"type=PINGREQ",
		"type=PINGRESP",
		"connection closed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLoggerHookLevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hook := NewLoggerHook(LoggerConfig{Logger: logger, Level: LogLevelConnection})
	_, peer, errc := servePipe(t, packet.Version311, nil, hook)

	peer.Write([]byte{0xC0, 0x00})
	peer.Close()
	waitErr(t, errc)

	out := buf.String()
	if strings.Contains(out, "packet received") {
		t.Errorf("packet events logged at LogLevelConnection:\n%s", out)
	}
	if !strings.Contains(out, "connection closed") {
		t.Errorf("close not logged:\n%s", out)
	}
}

func TestAuthHook(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		version  packet.Version
		password string
		accepted bool
		reason   packet.ReasonCode
	}{
		{"valid 3.1.1", packet.Version311, "secret", true, packet.ConnackAccepted},
		{"wrong password 3.1.1", packet.Version311, "nope", false, packet.ConnackBadUsernameOrPassword},
		{"wrong password 5.0", packet.Version5, "nope", false, packet.ReasonBadUserNameOrPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			auth := NewAuthHook(AuthConfig{Credentials: map[string]string{"alice": "secret"}})
			var handled atomic.Bool
			register := func(c *connection.Conn) {
				c.OnConnect(func(ctx context.Context, _ *packet.Connect) {
					handled.Store(true)
					c.Connack(ctx, &packet.Connack{})
				})
			}
			_, peer, errc := servePipe(t, packet.Version311, register, auth)

			peer.Write(mustEncode(t, tt.version, &packet.Connect{
				ProtocolVersion: tt.version,
				ClientID:        "c",
				Username:        "alice",
				Password:        []byte(tt.password),
			}))
			r := packet.NewReader(peer, &packet.ParserConfig{Version: tt.version})
			p, err := r.ReadPacket()
			if err != nil {
				t.Fatal(err)
			}
			if code := p.(*packet.Connack).ReasonCode; code != tt.reason {
				t.Fatalf("CONNACK reason = %s, want %s", code, tt.reason)
			}
			if handled.Load() != tt.accepted {
				t.Errorf("CONNECT handler ran = %v, want %v", handled.Load(), tt.accepted)
			}
			if !tt.accepted {
				if err := waitErr(t, errc); err != nil {
					t.Errorf("Serve = %v, want nil after rejection", err)
				}
			}
		})
	}
}

func TestAuthHookValidator(t *testing.T) {
	t.Parallel()

	auth := NewAuthHook(AuthConfig{
		Credentials: map[string]string{"ignored": "x"},
		Validator: func(_ context.Context, username string, _ []byte) bool {
			return username == "service"
		},
	})
	if !auth.allowed(context.Background(), &packet.Connect{Username: "service"}) {
		t.Error("validator rejected service")
	}
	if auth.allowed(context.Background(), &packet.Connect{Username: "ignored", Password: []byte("x")}) {
		t.Error("credentials consulted despite validator")
	}

	open := NewAuthHook(AuthConfig{})
	if !open.allowed(context.Background(), &packet.Connect{}) {
		t.Error("hook without credentials rejected a client")
	}
	open.AddUser("bob", "pw")
	if open.allowed(context.Background(), &packet.Connect{Username: "bob"}) {
		t.Error("missing password accepted")
	}
	open.RemoveUser("bob")
	if !open.allowed(context.Background(), &packet.Connect{}) {
		t.Error("hook with all users removed rejected a client")
	}
}

func TestRateLimitHookDisconnects(t *testing.T) {
	t.Parallel()

	limiter := NewRateLimitHook(RateLimitConfig{PublishRate: 1, BurstSize: 2})
	now := time.Unix(1000, 0)
	limiter.now = func() time.Time { return now }

	var handled atomic.Int32
	register := func(c *connection.Conn) {
		c.OnPublish(func(context.Context, *packet.Publish) { handled.Add(1) })
	}
	_, peer, errc := servePipe(t, packet.Version5, register, limiter)

	peer.Write(mustEncode(t, packet.Version5,
		&packet.Publish{Topic: "a"},
		&packet.Publish{Topic: "a"},
		&packet.Publish{Topic: "a"},
	))
	p, err := packet.NewReader(peer, &packet.ParserConfig{Version: packet.Version5}).ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if d, ok := p.(*packet.Disconnect); !ok || d.ReasonCode != packet.ReasonMessageRateTooHigh {
		t.Fatalf("peer read %+v, want DISCONNECT 0x96", p)
	}
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Serve = %v", err)
	}
	if n := handled.Load(); n != 2 {
		t.Errorf("handled %d publishes, want 2", n)
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.buckets) != 0 {
		t.Errorf("%d buckets left after close", len(limiter.buckets))
	}
}

func TestRateLimitRefill(t *testing.T) {
	t.Parallel()

	h := NewRateLimitHook(RateLimitConfig{PublishRate: 10, BurstSize: 1})
	now := time.Unix(0, 0)
	h.now = func() time.Time { return now }

	if !h.take("c") {
		t.Fatal("first publish rejected")
	}
	if h.take("c") {
		t.Fatal("burst exceeded but publish accepted")
	}
	now = now.Add(100 * time.Millisecond)
	if !h.take("c") {
		t.Fatal("publish rejected after refill interval")
	}
	if !h.take("other") {
		t.Fatal("buckets are not per connection")
	}
}
