package listeners

import (
	"crypto/tls"
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/bromq-dev/mqttwire/pkg/transport/grpctunnel"
)

// GRPCTunnelConfig holds configuration for gRPC tunnel listeners.
type GRPCTunnelConfig struct {
	// TLSConfig enables TLS if set. It is applied as gRPC transport
	// credentials, not on the raw socket.
	TLSConfig *tls.Config

	// ServerOptions are passed to grpc.NewServer.
	ServerOptions []grpc.ServerOption
}

// GRPCTunnel accepts MQTT streams tunnelled over the mqttwire.Tunnel
// gRPC service.
type GRPCTunnel struct {
	socket
	opts   []grpc.ServerOption
	server *grpc.Server
}

// NewGRPCTunnel creates a new gRPC tunnel listener.
func NewGRPCTunnel(id, addr string, config *GRPCTunnelConfig) *GRPCTunnel {
	if config == nil {
		config = &GRPCTunnelConfig{}
	}
	opts := append([]grpc.ServerOption(nil), config.ServerOptions...)
	if config.TLSConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(config.TLSConfig)))
	}
	return &GRPCTunnel{
		socket: newSocket(id, addr, nil, 0),
		opts:   opts,
	}
}

// Serve runs a gRPC server exposing the tunnel service. Each tunnel
// stream is handed to handler as a transport.
func (g *GRPCTunnel) Serve(handler ConnectionHandler) error {
	server := grpc.NewServer(g.opts...)
	grpctunnel.NewServer(func(c *grpctunnel.Conn) {
		handler.HandleConnection(c)
	}).Register(server)

	ln, err := g.bind(func(net.Listener) { g.server = server })
	if err != nil || ln == nil {
		return err
	}
	defer g.wg.Done()

	if err := server.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Close stops the gRPC server and ends all open tunnels.
func (g *GRPCTunnel) Close() error {
	return g.shutdown(func() { g.server.Stop() })
}
