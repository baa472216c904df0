package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := httptest.NewServer(WebSocketHandler(NewUpgrader(nil), func(ws *WebSocket) {
		c := connection.New(ws, nil)
		c.OnPingreq(func(ctx context.Context, _ *packet.Pingreq) { c.Pingresp(ctx) })
		c.Serve(ctx)
	}))
	defer srv.Close()

	ws, err := DialWebSocket(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatal(err)
	}
	if ws.Subprotocol() != Subprotocol {
		t.Errorf("subprotocol = %q, want %q", ws.Subprotocol(), Subprotocol)
	}

	client := connection.New(ws, nil)
	defer client.Destroy()
	pong := make(chan struct{}, 1)
	client.OnPingresp(func(context.Context, *packet.Pingresp) { pong <- struct{}{} })
	go client.Serve(ctx)

	if err := client.Pingreq(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case <-pong:
	case <-ctx.Done():
		t.Fatal("no PINGRESP over WebSocket")
	}
}

func TestWebSocketFlattensMessages(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan packet.Packet, 2)
	srv := httptest.NewServer(WebSocketHandler(NewUpgrader(nil), func(ws *WebSocket) {
		r := packet.NewReader(ws, nil)
		for range 2 {
			p, err := r.ReadPacket()
			if err != nil {
				return
			}
			got <- p
		}
	}))
	defer srv.Close()

	raw, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()

	wire, err := packet.Encode(&packet.Publish{Topic: "ws", Payload: []byte("split")}, packet.Version311)
	if err != nil {
		t.Fatal(err)
	}
	// A packet split across two messages, then a text message that must be
	// skipped, then two packets in one message.
	raw.WriteMessage(websocket.BinaryMessage, wire[:4])
	raw.WriteMessage(websocket.BinaryMessage, wire[4:])
	raw.WriteMessage(websocket.TextMessage, []byte("ignored"))
	raw.WriteMessage(websocket.BinaryMessage, []byte{0xC0, 0x00})

	for _, want := range []packet.Type{packet.TypePublish, packet.TypePingreq} {
		select {
		case p := <-got:
			if p.Type() != want {
				t.Fatalf("got %s, want %s", p.Type(), want)
			}
		case <-ctx.Done():
			t.Fatal("timed out")
		}
	}
}
