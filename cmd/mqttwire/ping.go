package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

type pingOptions struct {
	addr     string
	version  string
	clientID string
	username string
	password string
	count    int
	interval time.Duration
	timeout  time.Duration
}

func pingCmd() *cobra.Command {
	opts := pingOptions{}

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Connect to an MQTT server and time PINGREQ round trips",
		Example: `  mqttwire ping --addr localhost:1883
  mqttwire ping --addr ws://localhost:9090/mqtt --version 5 --count 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "localhost:1883", "Server address (tcp://, tls://, ws://, wss://, grpc://)")
	cmd.Flags().StringVarP(&opts.version, "version", "V", "3.1.1", "Protocol version (3.1, 3.1.1, 5)")
	cmd.Flags().StringVar(&opts.clientID, "client-id", "", "Client identifier (default: generated)")
	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&opts.password, "password", "P", "", "Password")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 3, "Number of pings")
	cmd.Flags().DurationVarP(&opts.interval, "interval", "i", time.Second, "Time between pings")
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 5*time.Second, "Time to wait for each reply")

	return cmd
}

func runPing(ctx context.Context, cmd *cobra.Command, opts pingOptions) error {
	v, ok := packet.ParseVersion(opts.version)
	if !ok {
		return fmt.Errorf("unknown protocol version %q", opts.version)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.clientID == "" {
		opts.clientID = fmt.Sprintf("mqttwire-ping-%d", time.Now().UnixNano()%1e6)
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	t, err := dial(dialCtx, opts.addr)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.addr, err)
	}

	cfg := connection.DefaultConfig()
	cfg.Version = v
	c := connection.New(t, cfg)
	defer c.Destroy()

	connacks := make(chan *packet.Connack, 1)
	pongs := make(chan struct{}, 1)
	c.OnConnack(func(_ context.Context, p *packet.Connack) { connacks <- p })
	c.OnPingresp(func(context.Context, *packet.Pingresp) { pongs <- struct{}{} })
	c.OnDisconnect(func(_ context.Context, p *packet.Disconnect) {
		fmt.Fprintf(cmd.ErrOrStderr(), "server disconnected: %s\n", p.ReasonCode)
	})

	errc := make(chan error, 1)
	go func() { errc <- c.Serve(ctx) }()

	connect := &packet.Connect{
		ProtocolVersion: v,
		ClientID:        opts.clientID,
		CleanStart:      true,
		KeepAlive:       uint16(max(opts.interval*2, 10*time.Second) / time.Second),
		Username:        opts.username,
		Password:        []byte(opts.password),
	}
	if opts.password == "" {
		connect.Password = nil
	}
	if err := c.Connect(ctx, connect); err != nil {
		return err
	}

	select {
	case ack := <-connacks:
		if ack.ReasonCode != packet.ReasonSuccess {
			return fmt.Errorf("connection refused: %s", ack.ReasonCode)
		}
	case err := <-errc:
		return connectionEnded(err)
	case <-time.After(opts.timeout):
		return fmt.Errorf("no CONNACK within %s", opts.timeout)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "connected to %s (MQTT %s)\n", opts.addr, v)
	for i := 1; i <= opts.count; i++ {
		start := time.Now()
		if err := c.Pingreq(ctx); err != nil {
			return err
		}
		select {
		case <-pongs:
			fmt.Fprintf(out, "PINGRESP seq=%d time=%s\n", i, time.Since(start).Round(time.Microsecond))
		case err := <-errc:
			return connectionEnded(err)
		case <-time.After(opts.timeout):
			return fmt.Errorf("no PINGRESP within %s", opts.timeout)
		}
		if i < opts.count {
			select {
			case <-time.After(opts.interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return c.Disconnect(ctx, nil)
}

func connectionEnded(err error) error {
	if err == nil {
		return fmt.Errorf("connection closed by server")
	}
	return err
}
