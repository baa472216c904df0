package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/bromq-dev/mqttwire/pkg/capture"
	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/hooks"
	"github.com/bromq-dev/mqttwire/pkg/listeners"
	"github.com/bromq-dev/mqttwire/pkg/packet"
	"github.com/bromq-dev/mqttwire/pkg/server"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an acknowledging MQTT endpoint",
		Long: `Run an MQTT endpoint that answers every protocol handshake without
routing messages. Useful for load tests, client conformance checks and
capturing traffic.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Load(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	return cmd
}

// runServe starts the endpoint and blocks until ctx ends or a listener fails.
func runServe(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	connHooks := []connection.Hook{
		hooks.NewLoggerHook(hooks.LoggerConfig{Logger: logger}),
		hooks.NewMetricsHook(hooks.WithRegistry(reg)),
	}
	if len(cfg.Auth.Credentials) > 0 {
		connHooks = append(connHooks, hooks.NewAuthHook(hooks.AuthConfig{
			Credentials: cfg.Auth.Credentials,
		}))
		logger.Info("authentication enabled", "users", len(cfg.Auth.Credentials))
	}
	if cfg.RateLimit.PublishRate > 0 {
		connHooks = append(connHooks, hooks.NewRateLimitHook(hooks.RateLimitConfig{
			PublishRate: cfg.RateLimit.PublishRate,
			BurstSize:   cfg.RateLimit.Burst,
		}))
	}

	sink, err := openCapture(ctx, cfg.Capture)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
		connHooks = append(connHooks, capture.NewRecorder(sink, logger))
	}

	srv := server.New(&server.Config{
		MaxConnections: cfg.Server.MaxConnections,
		ConnectTimeout: cfg.GetConnectTimeout(),
		MaxPacketSize:  cfg.Server.MaxPacketSize,
		MaxQoS:         packet.QoS(cfg.Server.MaxQoS),
		WriteQueueSize: cfg.Server.WriteQueueSize,
		InternStrings:  cfg.Server.InternStrings,
		Hooks:          connHooks,
		Logger:         logger,
	})

	mounted, err := addListeners(srv, cfg.Listeners, logger)
	if err != nil {
		return err
	}

	errc := make(chan error, 2)
	go func() { errc <- srv.Serve() }()

	var httpSrv *http.Server
	if cfg.HTTP.Addr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           buildRouter(srv, reg, mounted),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("http server listening", "addr", cfg.HTTP.Addr)
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	if err = wait(ctx, errc); err != nil {
		logger.Error("server failed", "error", err)
	} else {
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if httpSrv != nil {
		httpSrv.Shutdown(shutdownCtx)
	}
	if mounted != nil {
		mounted.Close()
	}
	if serr := srv.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, server.ErrServerClosed) {
		logger.Warn("shutdown incomplete", "error", serr)
	}
	logger.Info("server stopped")
	return err
}

// wait blocks until ctx ends or a non-nil error arrives. Serve returns nil
// right away when every listener is mounted on the HTTP server.
func wait(ctx context.Context, errc <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return err
			}
		}
	}
}

// addListeners registers the configured listeners. A WebSocket listener
// without its own address is returned for mounting on the HTTP router.
func addListeners(srv *server.Server, cfg ListenersConfig, logger *slog.Logger) (*listeners.WebSocket, error) {
	if cfg.TCP != "" {
		if err := srv.AddListener(listeners.NewTCP("tcp", cfg.TCP, nil)); err != nil {
			return nil, err
		}
		logger.Info("tcp listener configured", "addr", cfg.TCP)
	}

	if cfg.TLS.Addr != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS certificate: %w", err)
		}
		l := listeners.NewTCP("tcp+tls", cfg.TLS.Addr, &listeners.TCPConfig{
			TLSConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		})
		if err := srv.AddListener(l); err != nil {
			return nil, err
		}
		logger.Info("tls listener configured", "addr", cfg.TLS.Addr)
	}

	if cfg.GRPC != "" {
		if err := srv.AddListener(listeners.NewGRPCTunnel("grpc", cfg.GRPC, nil)); err != nil {
			return nil, err
		}
		logger.Info("grpc tunnel listener configured", "addr", cfg.GRPC)
	}

	if !cfg.WebSocket.Enabled {
		return nil, nil
	}
	ws := listeners.NewWebSocket("ws", cfg.WebSocket.Addr, &listeners.WebSocketConfig{
		Path: cfg.WebSocket.Path,
	})
	if cfg.WebSocket.Addr == "" {
		return ws, nil
	}
	if err := srv.AddListener(ws); err != nil {
		return nil, err
	}
	logger.Info("websocket listener configured", "addr", cfg.WebSocket.Addr, "path", cfg.WebSocket.Path)
	return nil, nil
}

// buildRouter serves metrics, health and, when ws is non-nil, the
// WebSocket endpoint.
func buildRouter(srv *server.Server, reg *prometheus.Registry, ws *listeners.WebSocket) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"connections": srv.Connections(),
		})
	})
	if ws != nil {
		r.Handle(ws.Path(), ws.Handler(srv))
	}
	return r
}

// openCapture opens the configured capture sinks, or returns nil if none are.
func openCapture(ctx context.Context, cfg CaptureConfig) (capture.Sink, error) {
	var sinks []capture.Sink
	if cfg.File != "" {
		f, err := capture.CreateFile(cfg.File)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
	}
	if cfg.Redis.Addr != "" {
		rs := capture.NewRedisSink(&capture.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
		})
		if err := rs.Ping(ctx); err != nil {
			capture.MultiSink(sinks...).Close()
			rs.Close()
			return nil, err
		}
		sinks = append(sinks, rs)
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return capture.MultiSink(sinks...), nil
}
