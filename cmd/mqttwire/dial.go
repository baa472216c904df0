package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/transport"
	"github.com/bromq-dev/mqttwire/pkg/transport/grpctunnel"
)

// dial opens a transport for addr. Supported schemes are tcp (default),
// tls, ws, wss, grpc and grpcs.
func dial(ctx context.Context, addr string) (connection.Transport, error) {
	if !strings.Contains(addr, "://") {
		addr = "tcp://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	switch u.Scheme {
	case "tcp", "mqtt":
		var d net.Dialer
		return d.DialContext(ctx, "tcp", hostPort(u, "1883"))
	case "tls", "ssl", "mqtts":
		d := tls.Dialer{Config: &tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS12}}
		return d.DialContext(ctx, "tcp", hostPort(u, "8883"))
	case "ws", "wss":
		return transport.DialWebSocket(ctx, u.String(), nil)
	case "grpc", "grpcs":
		creds := insecure.NewCredentials()
		if u.Scheme == "grpcs" {
			creds = credentials.NewTLS(&tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS12})
		}
		cc, err := grpc.NewClient(u.Host, grpc.WithTransportCredentials(creds))
		if err != nil {
			return nil, err
		}
		conn, err := grpctunnel.Dial(ctx, cc)
		if err != nil {
			cc.Close()
			return nil, err
		}
		return &tunnelTransport{Conn: conn, cc: cc}, nil
	}
	return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
}

func hostPort(u *url.URL, defaultPort string) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), defaultPort)
}

// tunnelTransport closes the client connection along with the tunnel.
type tunnelTransport struct {
	*grpctunnel.Conn
	cc *grpc.ClientConn
}

func (t *tunnelTransport) Close() error {
	return errors.Join(t.Conn.Close(), t.cc.Close())
}
