package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// RateLimitHook limits inbound PUBLISH rates per connection. A connection
// that exceeds its budget is disconnected (with reason 0x96 under MQTT 5.0)
// before the offending packet reaches any handler.
type RateLimitHook struct {
	publishRate int           // max publishes per interval
	interval    time.Duration // rate limit interval
	burstSize   int           // max burst before limiting
	now         func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// RateLimitConfig configures the rate limiter.
type RateLimitConfig struct {
	// PublishRate is the max number of publishes per interval per connection.
	PublishRate int

	// Interval is the rate limit window (default: 1s).
	Interval time.Duration

	// BurstSize is the max burst allowed (default: PublishRate * 2).
	BurstSize int
}

// NewRateLimitHook creates a new rate limiting hook.
func NewRateLimitHook(cfg RateLimitConfig) *RateLimitHook {
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = cfg.PublishRate * 2
	}
	return &RateLimitHook{
		publishRate: cfg.PublishRate,
		interval:    cfg.Interval,
		burstSize:   cfg.BurstSize,
		now:         time.Now,
		buckets:     make(map[string]*bucket),
	}
}

func (h *RateLimitHook) ID() string { return "ratelimit" }

// OnPacketReceived charges a PUBLISH against the connection's bucket.
func (h *RateLimitHook) OnPacketReceived(ctx context.Context, c *connection.Conn, p packet.Packet) {
	if h.publishRate <= 0 || p.Type() != packet.TypePublish {
		return
	}
	if h.take(c.ID()) {
		return
	}
	if c.Version() >= packet.Version5 {
		_ = c.Disconnect(ctx, &packet.Disconnect{ReasonCode: packet.ReasonMessageRateTooHigh})
	}
	c.Destroy()
}

func (h *RateLimitHook) OnPacketSent(context.Context, *connection.Conn, packet.Packet, int) {}

// LifecycleHook implementation (cleanup on close)

func (h *RateLimitHook) OnOpen(context.Context, *connection.Conn) {}

func (h *RateLimitHook) OnClose(_ context.Context, c *connection.Conn, _ error) {
	h.mu.Lock()
	delete(h.buckets, c.ID())
	h.mu.Unlock()
}

// take refills the bucket for the elapsed time and spends one token.
func (h *RateLimitHook) take(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	b, ok := h.buckets[connID]
	if !ok {
		b = &bucket{tokens: float64(h.burstSize), lastFill: now}
		h.buckets[connID] = b
	}

	if elapsed := now.Sub(b.lastFill); elapsed > 0 {
		b.tokens += float64(h.publishRate) * elapsed.Seconds() / h.interval.Seconds()
		if b.tokens > float64(h.burstSize) {
			b.tokens = float64(h.burstSize)
		}
		b.lastFill = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
