package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bromq-dev/mqttwire/pkg/capture"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

func replayCmd() *cobra.Command {
	var (
		redisAddr string
		stream    string
		count     int64
	)

	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Decode and print a frame capture",
		Long: `Replay a capture written by "mqttwire serve" through the parser, from
a capture file or from a Redis stream (--redis).`,
		Args: func(cmd *cobra.Command, args []string) error {
			if redisAddr == "" && len(args) != 1 {
				return fmt.Errorf("expected a capture file or --redis")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if redisAddr == "" {
				r, err := capture.OpenFile(args[0])
				if err != nil {
					return err
				}
				defer r.Close()
				return capture.Replay(r, func(rec *capture.Record, p packet.Packet) error {
					return printRecord(out, rec, p)
				})
			}

			sink := capture.NewRedisSink(&capture.RedisConfig{Addr: redisAddr, Stream: stream})
			defer sink.Close()
			recs, err := sink.Range(cmd.Context(), "-", "+", count)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				p, err := rec.Decode()
				if err != nil {
					return err
				}
				if err := printRecord(out, rec, p); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&redisAddr, "redis", "", "Read from the Redis server at this address")
	cmd.Flags().StringVar(&stream, "stream", "mqttwire:capture", "Redis stream key")
	cmd.Flags().Int64VarP(&count, "count", "n", 0, "Maximum records to read from Redis (0 = all)")

	return cmd
}

func printRecord(w io.Writer, rec *capture.Record, p packet.Packet) error {
	_, err := fmt.Fprintf(w, "%s %s %-3s %-5s %s %+v\n",
		rec.Time.Format(time.RFC3339Nano), rec.ConnID, rec.Direction, rec.Version, p.Type(), p)
	return err
}
