package hooks

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// MetricsConfig configures the Prometheus metrics hook.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "mqttwire").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics hook.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "mqttwire",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// MetricsHook exports connection traffic as Prometheus metrics.
//
// Metrics collected:
//   - mqttwire_packets_received_total: Counter of decoded packets by type
//   - mqttwire_packets_sent_total: Counter of written packets by type
//   - mqttwire_bytes_received_total / mqttwire_bytes_sent_total: Frame bytes
//   - mqttwire_frame_size_bytes: Histogram of frame sizes by direction
//   - mqttwire_errors_total: Counter of connection errors by kind
//   - mqttwire_active_connections: Gauge of serving connections
//   - mqttwire_connections_total: Counter of connections served
type MetricsHook struct {
	packetsReceived   *prometheus.CounterVec
	packetsSent       *prometheus.CounterVec
	bytesReceived     prometheus.Counter
	bytesSent         prometheus.Counter
	frameSize         *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter
}

// NewMetricsHook registers the metrics and returns the hook. Registering
// twice against the same registry panics, as with promauto.
func NewMetricsHook(opts ...MetricsOption) *MetricsHook {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &MetricsHook{
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "packets_received_total",
			Help:        "Total number of MQTT packets decoded",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "packets_sent_total",
			Help:        "Total number of MQTT packets written",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bytes_received_total",
			Help:        "Total bytes of decoded frames",
			ConstLabels: config.ConstLabels,
		}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bytes_sent_total",
			Help:        "Total bytes of written frames",
			ConstLabels: config.ConstLabels,
		}),

		frameSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_size_bytes",
			Help:        "Size of MQTT frames in bytes",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(16, 4, 8), // 16B to 256KB
		}, []string{"direction"}),

		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Total connection errors by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_connections",
			Help:        "Number of connections currently serving",
			ConstLabels: config.ConstLabels,
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_total",
			Help:        "Total number of connections served",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (h *MetricsHook) ID() string { return "metrics" }

func (h *MetricsHook) OnOpen(context.Context, *connection.Conn) {
	h.connectionsTotal.Inc()
	h.activeConnections.Inc()
}

func (h *MetricsHook) OnClose(context.Context, *connection.Conn, error) {
	h.activeConnections.Dec()
}

func (h *MetricsHook) OnPacketReceived(_ context.Context, _ *connection.Conn, p packet.Packet) {
	h.packetsReceived.WithLabelValues(p.Type().String()).Inc()
}

func (h *MetricsHook) OnPacketSent(_ context.Context, _ *connection.Conn, p packet.Packet, _ int) {
	h.packetsSent.WithLabelValues(p.Type().String()).Inc()
}

func (h *MetricsHook) OnFrame(_ context.Context, _ *connection.Conn, dir connection.Direction, _ packet.Version, frame []byte) {
	size := float64(len(frame))
	switch dir {
	case connection.Inbound:
		h.bytesReceived.Add(size)
	case connection.Outbound:
		h.bytesSent.Add(size)
	}
	h.frameSize.WithLabelValues(dir.String()).Observe(size)
}

func (h *MetricsHook) OnError(_ context.Context, _ *connection.Conn, err error) {
	h.errorsTotal.WithLabelValues(errorKind(err)).Inc()
}

// errorKind keeps the error label to a fixed set of values.
func errorKind(err error) string {
	var (
		decErr *packet.DecodeError
		tErr   *connection.TransportError
	)
	switch {
	case errors.As(err, &decErr):
		return "decode"
	case errors.As(err, &tErr):
		return "transport"
	}
	return "other"
}
