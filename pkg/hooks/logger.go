// Package hooks provides composable connection hooks.
package hooks

import (
	"context"
	"log/slog"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// LoggerHook logs connection events using slog.
type LoggerHook struct {
	logger *slog.Logger
	level  LogLevel
}

// LogLevel controls which events are logged.
type LogLevel int

const (
	// LogLevelConnection logs open, close and error events.
	LogLevelConnection LogLevel = 1 << iota
	// LogLevelControl logs CONNECT, SUBSCRIBE, DISCONNECT, AUTH and their acks.
	LogLevelControl
	// LogLevelPublish logs PUBLISH and the QoS acknowledgement flow.
	LogLevelPublish
	// LogLevelPing logs PINGREQ and PINGRESP.
	LogLevelPing
	// LogLevelAll logs all events.
	LogLevelAll = LogLevelConnection | LogLevelControl | LogLevelPublish | LogLevelPing
)

// LoggerConfig configures the logger hook.
type LoggerConfig struct {
	// Logger is the slog.Logger to use (default: slog.Default()).
	Logger *slog.Logger

	// Level controls which events are logged (default: LogLevelAll).
	Level LogLevel
}

// NewLoggerHook creates a new logging hook.
func NewLoggerHook(cfg LoggerConfig) *LoggerHook {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Level == 0 {
		cfg.Level = LogLevelAll
	}
	return &LoggerHook{
		logger: cfg.Logger,
		level:  cfg.Level,
	}
}

func (h *LoggerHook) ID() string { return "logger" }

// LifecycleHook implementation

func (h *LoggerHook) OnOpen(ctx context.Context, c *connection.Conn) {
	if h.level&LogLevelConnection == 0 {
		return
	}
	h.logger.InfoContext(ctx, "connection opened",
		"conn_id", c.ID(),
		"protocol", c.Version(),
	)
}

func (h *LoggerHook) OnClose(ctx context.Context, c *connection.Conn, err error) {
	if h.level&LogLevelConnection == 0 {
		return
	}
	if err != nil {
		h.logger.InfoContext(ctx, "connection closed",
			"conn_id", c.ID(),
			"error", err.Error(),
		)
	} else {
		h.logger.InfoContext(ctx, "connection closed",
			"conn_id", c.ID(),
		)
	}
}

// ErrorHook implementation

func (h *LoggerHook) OnError(ctx context.Context, c *connection.Conn, err error) {
	if h.level&LogLevelConnection == 0 {
		return
	}
	h.logger.WarnContext(ctx, "connection error",
		"conn_id", c.ID(),
		"error", err.Error(),
	)
}

// PacketHook implementation

func (h *LoggerHook) OnPacketReceived(ctx context.Context, c *connection.Conn, p packet.Packet) {
	h.logPacket(ctx, "packet received", c, p)
}

func (h *LoggerHook) OnPacketSent(ctx context.Context, c *connection.Conn, p packet.Packet, size int) {
	h.logPacket(ctx, "packet sent", c, p, "size", size)
}

func (h *LoggerHook) logPacket(ctx context.Context, msg string, c *connection.Conn, p packet.Packet, extra ...any) {
	category, level := classify(p.Type())
	if h.level&category == 0 {
		return
	}
	args := append([]any{"conn_id", c.ID(), "type", p.Type().String()}, packetAttrs(p)...)
	h.logger.Log(ctx, level, msg, append(args, extra...)...)
}

// classify maps a packet type to its log category and level.
func classify(t packet.Type) (LogLevel, slog.Level) {
	switch t {
	case packet.TypePublish, packet.TypePuback, packet.TypePubrec, packet.TypePubrel, packet.TypePubcomp:
		return LogLevelPublish, slog.LevelDebug
	case packet.TypePingreq, packet.TypePingresp:
		return LogLevelPing, slog.LevelDebug
	}
	return LogLevelControl, slog.LevelInfo
}

func packetAttrs(p packet.Packet) []any {
	switch p := p.(type) {
	case *packet.Connect:
		return []any{
			"client_id", p.ClientID,
			"username", p.Username,
			"protocol", p.ProtocolVersion,
			"clean_start", p.CleanStart,
			"keep_alive", p.KeepAlive,
			"will", p.Will != nil,
		}
	case *packet.Connack:
		return []any{"reason", p.ReasonCode.String(), "session_present", p.SessionPresent}
	case *packet.Publish:
		return []any{
			"topic", p.Topic,
			"qos", p.QoS,
			"retain", p.Retain,
			"packet_id", p.PacketID,
			"payload_size", len(p.Payload),
		}
	case *packet.Subscribe:
		filters := make([]string, len(p.Subscriptions))
		for i, s := range p.Subscriptions {
			filters[i] = s.Topic
		}
		return []any{"packet_id", p.PacketID, "filters", filters}
	case *packet.Unsubscribe:
		return []any{"packet_id", p.PacketID, "filters", p.Topics}
	case *packet.Disconnect:
		return []any{"reason", p.ReasonCode.String()}
	case *packet.Auth:
		return []any{"reason", p.ReasonCode.String()}
	}
	if id := packet.PacketID(p); id != 0 {
		return []any{"packet_id", id}
	}
	return nil
}
