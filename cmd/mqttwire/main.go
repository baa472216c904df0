// Command mqttwire decodes, captures and serves MQTT traffic.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mqttwire",
		Short: "MQTT packet codec toolkit",
		Long: `mqttwire works with MQTT 3.1, 3.1.1 and 5.0 traffic.

  decode   decode packets from hex or a raw capture
  serve    run an acknowledging endpoint over TCP, TLS, WebSocket and gRPC
  ping     connect to a server and measure PINGREQ round trips
  replay   print a frame capture`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		decodeCmd(),
		serveCmd(),
		pingCmd(),
		replayCmd(),
		versionCmd(),
	)
	return cmd
}
