package connection

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Config holds connection configuration.
type Config struct {
	// ID identifies the connection in logs, spans and hook calls.
	// A sequential identifier is assigned when empty.
	ID string

	// Version is the protocol version used until a CONNECT is sent or
	// received (default: 3.1.1).
	Version packet.Version

	// MaxPacketSize bounds inbound frames in bytes (0 = protocol maximum).
	MaxPacketSize int

	// InternStrings deduplicates decoded topics and identifiers.
	InternStrings bool

	// ReadBufferSize is the size of each transport read (default: 8192).
	ReadBufferSize int

	// WriteQueueSize is the number of encoded packets that may wait for the
	// write loop before senders block (default: 256).
	WriteQueueSize int

	// Logger receives connection diagnostics (default: slog.Default()).
	Logger *slog.Logger

	// Tracer creates spans around dispatch and send. Defaults to the tracer
	// of the global otel provider, which is a no-op unless one is installed.
	Tracer trace.Tracer

	// Hooks observe the connection. See Hook for the optional interfaces.
	Hooks []Hook
}

// DefaultConfig returns the default connection configuration.
func DefaultConfig() *Config {
	return &Config{
		Version:        packet.Version311,
		ReadBufferSize: 8192,
		WriteQueueSize: 256,
	}
}
