package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Config is the configuration of the serve command. It is loaded from
// YAML and can be overridden by MQTTWIRE_* environment variables.
type Config struct {
	Listeners ListenersConfig `yaml:"listeners"`
	Server    ServerConfig    `yaml:"server"`
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Capture   CaptureConfig   `yaml:"capture"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ListenersConfig selects the transports to accept. An empty address
// disables the listener.
type ListenersConfig struct {
	TCP       string          `yaml:"tcp"`
	TLS       TLSConfig       `yaml:"tls"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	GRPC      string          `yaml:"grpc"`
}

// TLSConfig enables a TLS listener when Addr, CertFile and KeyFile are set.
type TLSConfig struct {
	Addr     string `yaml:"addr"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// WebSocketConfig configures the WebSocket listener. Without Addr the
// endpoint is mounted on the HTTP server.
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// ServerConfig contains per-connection limits.
type ServerConfig struct {
	MaxConnections int    `yaml:"max_connections"`
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
	MaxPacketSize  uint32 `yaml:"max_packet_size"`
	MaxQoS         int    `yaml:"max_qos"`
	WriteQueueSize int    `yaml:"write_queue_size"`
	InternStrings  bool   `yaml:"intern_strings"`
}

// HTTPConfig configures the side server for /metrics and /healthz.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// AuthConfig holds static credentials. No credentials means no auth.
type AuthConfig struct {
	Credentials map[string]string `yaml:"credentials"`
}

// RateLimitConfig limits inbound publishes per connection. Zero disables it.
type RateLimitConfig struct {
	PublishRate int `yaml:"publish_rate"`
	Burst       int `yaml:"burst"`
}

// CaptureConfig records frames to a file and/or a Redis stream.
type CaptureConfig struct {
	File  string             `yaml:"file"`
	Redis RedisCaptureConfig `yaml:"redis"`
}

// RedisCaptureConfig configures the Redis capture sink. Empty Addr disables it.
type RedisCaptureConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration at path. An empty path yields the defaults
// with environment overrides applied.
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Listeners: ListenersConfig{
			TCP: ":1883",
			WebSocket: WebSocketConfig{
				Path: "/mqtt",
			},
		},
		Server: ServerConfig{
			ConnectTimeout: 10,
			MaxQoS:         2,
			WriteQueueSize: 256,
		},
		HTTP: HTTPConfig{
			Addr: ":9090",
		},
		Capture: CaptureConfig{
			Redis: RedisCaptureConfig{
				Stream: "mqttwire:capture",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTTWIRE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Listeners
	if v, ok := os.LookupEnv("MQTTWIRE_LISTENERS_TCP"); ok {
		cfg.Listeners.TCP = v
	}
	if v := os.Getenv("MQTTWIRE_LISTENERS_GRPC"); v != "" {
		cfg.Listeners.GRPC = v
	}
	if v := os.Getenv("MQTTWIRE_LISTENERS_WEBSOCKET_ADDR"); v != "" {
		cfg.Listeners.WebSocket.Enabled = true
		cfg.Listeners.WebSocket.Addr = v
	}

	// Server
	if v := os.Getenv("MQTTWIRE_SERVER_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MaxConnections = n
		}
	}

	// HTTP
	if v, ok := os.LookupEnv("MQTTWIRE_HTTP_ADDR"); ok {
		cfg.HTTP.Addr = v
	}

	// Capture
	if v := os.Getenv("MQTTWIRE_CAPTURE_FILE"); v != "" {
		cfg.Capture.File = v
	}
	if v := os.Getenv("MQTTWIRE_REDIS_ADDR"); v != "" {
		cfg.Capture.Redis.Addr = v
	}
	if v := os.Getenv("MQTTWIRE_REDIS_PASSWORD"); v != "" {
		cfg.Capture.Redis.Password = v
	}

	// Logging
	if v := os.Getenv("MQTTWIRE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MQTTWIRE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Listeners.TCP == "" && c.Listeners.TLS.Addr == "" && c.Listeners.GRPC == "" && !c.Listeners.WebSocket.Enabled {
		errs = append(errs, "at least one listener is required")
	}
	tls := c.Listeners.TLS
	if tls.Addr != "" && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, "listeners.tls requires cert_file and key_file")
	}
	if ws := c.Listeners.WebSocket; ws.Enabled {
		if !strings.HasPrefix(ws.Path, "/") {
			errs = append(errs, "listeners.websocket.path must start with /")
		}
		if ws.Addr == "" && c.HTTP.Addr == "" {
			errs = append(errs, "listeners.websocket needs an addr or http.addr")
		}
	}

	if c.Server.MaxConnections < 0 {
		errs = append(errs, "server.max_connections must not be negative")
	}
	if c.Server.ConnectTimeout < 0 {
		errs = append(errs, "server.connect_timeout must not be negative")
	}
	if c.Server.MaxQoS < 0 || c.Server.MaxQoS > 2 {
		errs = append(errs, "server.max_qos must be 0, 1, or 2")
	}
	if c.Server.MaxPacketSize > packet.MaxFrameSize {
		errs = append(errs, "server.max_packet_size exceeds the protocol maximum")
	}

	if c.RateLimit.PublishRate < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, "rate_limit values must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, "logging.format must be text or json")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// GetConnectTimeout returns the connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Server.ConnectTimeout) * time.Second
}
