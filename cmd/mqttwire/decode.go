package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

func decodeCmd() *cobra.Command {
	var (
		versionFlag string
		file        string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "decode [hex...]",
		Short: "Decode MQTT packets",
		Long: `Decode MQTT packets from hex arguments, hex on stdin, or a raw
binary file (--file, "-" for stdin). Decoding stops at the first malformed
packet; the packets before it are still printed.`,
		Example: `  mqttwire decode 10 0c 00 04 4d 51 54 54 04 02 00 3c 00 00
  mqttwire decode --version 5 --file session.bin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok := packet.ParseVersion(versionFlag)
			if !ok {
				return fmt.Errorf("unknown protocol version %q", versionFlag)
			}

			data, err := decodeInput(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}

			pkts, err := packet.ParseAll(data, v)
			out := cmd.OutOrStdout()
			for _, p := range pkts {
				if perr := printPacket(out, p, asJSON); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&versionFlag, "version", "V", "3.1.1", "Protocol version (3.1, 3.1.1, 5)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read raw bytes from a file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print packets as JSON")

	return cmd
}

func decodeInput(stdin io.Reader, file string, args []string) ([]byte, error) {
	switch {
	case file == "-":
		return io.ReadAll(stdin)
	case file != "":
		return os.ReadFile(file)
	}

	text := strings.Join(args, "")
	if len(args) == 0 {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		text = string(b)
	}
	text = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, text)
	text = strings.TrimPrefix(text, "0x")

	data, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return data, nil
}

func printPacket(w io.Writer, p packet.Packet, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(struct {
			Type   string        `json:"type"`
			Packet packet.Packet `json:"packet"`
		}{p.Type().String(), p})
	}
	_, err := fmt.Fprintf(w, "%s %+v\n", p.Type(), p)
	return err
}
